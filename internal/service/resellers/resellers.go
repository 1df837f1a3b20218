// Package resellers is the administrative surface over reseller accounts:
// creation, credential rotation and deactivation. Plaintext credentials
// pass through here exactly once on their way into the vault and are never
// read back out.
package resellers

import (
	"context"

	"github.com/faxretriever/broker/internal/audit"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/repository"
	"github.com/faxretriever/broker/internal/vault"
)

type recorder interface {
	Record(ctx context.Context, e audit.Event)
}

type Service struct {
	resellers repository.ResellerRepo
	vault     *vault.Vault
	audit     recorder
	logger    logger.Logger
}

func NewService(resellers repository.ResellerRepo, v *vault.Vault, rec recorder, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOp()
	}
	return &Service{
		resellers: resellers,
		vault:     v,
		audit:     rec,
		logger:    l,
	}
}

// Create registers a reseller and, when credentials are provided, seals
// them right away.
func (s *Service) Create(ctx context.Context, reseller models.Reseller, creds *models.ProviderCredentials, actor string) (models.Reseller, error) {
	reseller.Active = true
	created, err := s.resellers.Create(ctx, reseller)
	if err != nil {
		return created, err
	}

	s.recordAdmin(ctx, created.ID, actor, "reseller_created", "create", "reseller registered")

	if creds != nil {
		if err := s.RotateCredentials(ctx, created.ID, *creds, actor); err != nil {
			return created, err
		}
	}

	return created, nil
}

// RotateCredentials seals fresh provider credentials for the reseller,
// replacing any previous blob. Safe to call at any time; the next bearer
// refresh picks up the new pair.
func (s *Service) RotateCredentials(ctx context.Context, id string, creds models.ProviderCredentials, actor string) error {
	blob, err := s.vault.EncryptCredentials(id, creds)
	if err != nil {
		return err
	}

	if err := s.resellers.SetCredentials(ctx, id, blob); err != nil {
		return err
	}

	s.recordAdmin(ctx, id, actor, "reseller_credentials_rotated", "rotate", "provider credentials sealed")
	return nil
}

// SetActive toggles the reseller. Deactivated resellers stop refreshing
// bearer tokens; their clients lose /bearer access once the cache expires.
func (s *Service) SetActive(ctx context.Context, id string, active bool, actor string) error {
	if err := s.resellers.SetActive(ctx, id, active); err != nil {
		return err
	}

	note := "reseller deactivated"
	if active {
		note = "reseller activated"
	}
	s.recordAdmin(ctx, id, actor, "reseller_active_toggled", "update", note)
	return nil
}

// List returns reseller records for the admin GUI. Sealed blobs stay out
// of the response; only presence flags and bearer timestamps travel.
func (s *Service) List(ctx context.Context) ([]models.Reseller, error) {
	return s.resellers.List(ctx)
}

func (s *Service) recordAdmin(ctx context.Context, tenantID string, actor string, eventType string, op string, note string) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = "admin"
	}
	s.audit.Record(ctx, audit.Event{
		Type:      eventType,
		Stream:    models.StreamAudit,
		TenantID:  tenantID,
		Actor:     actor,
		Object:    "reseller",
		Operation: op,
		Note:      note,
	})
}
