// Package bearer keeps one live provider bearer token per reseller. Tokens
// are stored sealed at rest, refreshed through the vault-decrypted
// credentials, and handed out decrypted only to the owning client domain.
package bearer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/audit"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/obs"
	"github.com/faxretriever/broker/internal/repository"
	"github.com/faxretriever/broker/internal/vault"
)

// Refresh threshold: a cached token inside this window of expiry is
// replaced proactively
const defaultRefreshThreshold = time.Hour

type tokenExchanger interface {
	ExchangeToken(ctx context.Context, creds models.ProviderCredentials) (models.BearerToken, error)
}

type recorder interface {
	Record(ctx context.Context, e audit.Event)
}

type Config struct {
	// If not set than default (1 hour) is used
	RefreshThreshold time.Duration
}

type Service struct {
	resellers repository.ResellerRepo
	vault     *vault.Vault
	exchanger tokenExchanger
	audit     recorder
	logger    logger.Logger

	// At most one in-flight provider exchange per reseller; concurrent
	// callers share the winner's result
	flight singleflight.Group

	refreshThreshold time.Duration
}

func NewService(cfg Config, resellers repository.ResellerRepo, v *vault.Vault, exchanger tokenExchanger, rec recorder, l logger.Logger) *Service {
	if cfg.RefreshThreshold == 0 {
		cfg.RefreshThreshold = defaultRefreshThreshold
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	return &Service{
		resellers:        resellers,
		vault:            v,
		exchanger:        exchanger,
		audit:            rec,
		logger:           l,
		refreshThreshold: cfg.RefreshThreshold,
	}
}

// GetToken returns a live bearer token for the reseller, refreshing it
// through the provider when absent or inside the refresh threshold.
func (s *Service) GetToken(ctx context.Context, resellerID string) (models.BearerToken, error) {
	// The refresh outlives any single caller: a disconnecting winner must
	// not poison the waiters sharing its flight
	refreshCtx := context.WithoutCancel(ctx)

	result, err, _ := s.flight.Do(resellerID, func() (any, error) {
		return s.getOrRefresh(refreshCtx, resellerID)
	})
	if err != nil {
		return models.BearerToken{}, err
	}

	return result.(models.BearerToken), nil
}

func (s *Service) getOrRefresh(ctx context.Context, resellerID string) (models.BearerToken, error) {
	var token models.BearerToken

	reseller, err := s.resellers.GetByID(ctx, resellerID)
	if err != nil {
		return token, err
	}
	if !reseller.Active {
		return token, fmt.Errorf("reseller %q: %w", resellerID, apperrors.ErrResellerInactive)
	}

	now := time.Now().UTC()

	// Fresh enough: return the cached token unchanged
	if !reseller.Bearer.ExpiringWithin(s.refreshThreshold, now) {
		return s.openCached(ctx, reseller)
	}

	token, err = s.refresh(ctx, reseller)
	if err == nil {
		return token, nil
	}

	// Exchange failed: keep serving the previous token while it is valid
	if reseller.Bearer != nil && now.Before(reseller.Bearer.ExpiresAt) {
		s.logger.Warn("Provider exchange failed, serving still-valid cached token",
			"reseller_id", resellerID, "error", err)
		return s.openCached(ctx, reseller)
	}

	return models.BearerToken{}, err
}

// refresh performs the provider exchange and replaces the cached token.
func (s *Service) refresh(ctx context.Context, reseller models.Reseller) (models.BearerToken, error) {
	var token models.BearerToken

	if reseller.Credentials == nil {
		s.recordRefresh(ctx, reseller.ID, "refresh_skipped", "reseller has no sealed credentials")
		return token, fmt.Errorf("reseller %q has no credentials: %w", reseller.ID, apperrors.ErrUpstreamAuth)
	}

	creds, err := s.vault.DecryptCredentials(ctx, reseller.ID, *reseller.Credentials)
	if err != nil {
		s.recordRefresh(ctx, reseller.ID, "refresh_failed", "credential decryption failed")
		return token, err
	}

	token, err = s.exchanger.ExchangeToken(ctx, creds)
	if err != nil {
		obs.ObserveTokenRefresh("failed")
		s.recordRefresh(ctx, reseller.ID, "refresh_failed", "provider token exchange failed")
		return token, fmt.Errorf("exchange for reseller %q: %w (%v)", reseller.ID, apperrors.ErrUpstreamAuth, err)
	}

	sealed, err := s.vault.Encrypt(reseller.ID, []byte(token.Value))
	if err != nil {
		return token, fmt.Errorf("error while sealing bearer token: %w", err)
	}

	err = s.resellers.SaveBearer(ctx, reseller.ID, models.CachedBearer{
		Sealed:      sealed,
		RetrievedAt: token.RetrievedAt,
		ExpiresAt:   token.ExpiresAt,
	})
	if err != nil {
		return token, fmt.Errorf("error while saving bearer token: %w", err)
	}

	obs.ObserveTokenRefresh("success")
	s.recordRefresh(ctx, reseller.ID, "refresh_success", "bearer token refreshed")
	return token, nil
}

func (s *Service) openCached(ctx context.Context, reseller models.Reseller) (models.BearerToken, error) {
	if reseller.Bearer == nil {
		return models.BearerToken{}, fmt.Errorf("reseller %q: %w", reseller.ID, apperrors.ErrBearerNotCached)
	}

	value, err := s.vault.Decrypt(ctx, reseller.ID, reseller.Bearer.Sealed)
	if err != nil {
		return models.BearerToken{}, err
	}

	return models.BearerToken{
		Value:       string(value),
		RetrievedAt: reseller.Bearer.RetrievedAt,
		ExpiresAt:   reseller.Bearer.ExpiresAt,
	}, nil
}

func (s *Service) recordRefresh(ctx context.Context, resellerID string, eventType string, note string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Type:      eventType,
		Stream:    models.StreamAudit,
		TenantID:  resellerID,
		Actor:     audit.SystemActor,
		Object:    "bearer_token",
		Operation: "refresh",
		Note:      note,
	})
}
