// Package registry owns client (fax-user/device) records: authentication
// against the long-lived token, device bookkeeping, and the administrative
// lifecycle (create, deactivate, reissue). Clients are revoked by
// deactivation, never deletion.
package registry

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/audit"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/repository"
)

const authTokenBytesLen = 16

type recorder interface {
	Record(ctx context.Context, e audit.Event)
}

type Service struct {
	clients     repository.ClientRepo
	assignments repository.AssignmentRepo
	resellers   repository.ResellerRepo
	audit       recorder
	logger      logger.Logger
}

func NewService(storage repository.Storage, rec recorder, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOp()
	}
	return &Service{
		clients:     storage.Clients(),
		assignments: storage.Assignments(),
		resellers:   storage.Resellers(),
		audit:       rec,
		logger:      l,
	}
}

// Authenticate validates the (faxUser, authToken) pair against an active
// client record. The three failure modes are distinct errors for the audit
// trail; callers must surface all of them as one generic failure.
func (s *Service) Authenticate(ctx context.Context, faxUser string, authToken string) (models.Client, error) {
	faxUser = models.NormalizeFaxUser(faxUser)

	client, err := s.clients.GetByFaxUser(ctx, faxUser)
	if err != nil {
		s.recordAuthFailure(ctx, faxUser, "", "unknown fax user")
		return client, err
	}

	if !client.Active {
		s.recordAuthFailure(ctx, faxUser, client.ID.String(), "client is deactivated")
		return models.Client{}, fmt.Errorf("client %q: %w", faxUser, apperrors.ErrInactiveClient)
	}

	// Constant-time compare: the token check must not leak length or
	// prefix information through timing
	provided := strings.TrimSpace(authToken)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(client.AuthToken)) != 1 {
		s.recordAuthFailure(ctx, faxUser, client.ID.String(), "authentication token mismatch")
		return models.Client{}, fmt.Errorf("client %q: %w", faxUser, apperrors.ErrInvalidCredentials)
	}

	return client, nil
}

// ActiveByID loads a client and enforces the active flag. /bearer calls
// this on every request, so deactivating a client revokes access even for
// structurally-valid session tokens.
func (s *Service) ActiveByID(ctx context.Context, id uuid.UUID) (models.Client, error) {
	client, err := s.clients.GetByID(ctx, id)
	if err != nil {
		return client, err
	}
	if !client.Active {
		return models.Client{}, fmt.Errorf("client %s: %w", id, apperrors.ErrInactiveClient)
	}
	return client, nil
}

// RegisterDevice records the device in the client's known set.
func (s *Service) RegisterDevice(ctx context.Context, id uuid.UUID, deviceID string) error {
	return s.clients.RegisterDevice(ctx, id, deviceID)
}

// CreateParams for administrative client creation.
type CreateParams struct {
	FaxUser    string
	FaxNumbers []string

	// Explicit reseller id; when empty it is derived from the fax user
	ResellerID string
}

// Create registers a new client with a freshly generated authentication
// token. The reseller must already exist.
func (s *Service) Create(ctx context.Context, params CreateParams, actor string) (models.Client, error) {
	faxUser := models.NormalizeFaxUser(params.FaxUser)

	resellerID := params.ResellerID
	if resellerID == "" {
		derived, ok := models.ResellerIDFromFaxUser(faxUser)
		if !ok {
			return models.Client{}, fmt.Errorf("cannot derive reseller id from fax user %q", faxUser)
		}
		resellerID = derived
	}

	if _, err := s.resellers.GetByID(ctx, resellerID); err != nil {
		return models.Client{}, err
	}

	authToken, err := GenerateAuthToken()
	if err != nil {
		return models.Client{}, err
	}

	client, err := s.clients.Create(ctx, models.Client{
		FaxUser:    faxUser,
		AuthToken:  authToken,
		ResellerID: resellerID,
		FaxNumbers: params.FaxNumbers,
		Active:     true,
	})
	if err != nil {
		return client, err
	}

	s.recordAdmin(ctx, client.ID.String(), actor, "client_created", "create", "client registered")
	return client, nil
}

// SetActive toggles the client's active flag. Deactivation is the
// revocation mechanism: issued session tokens keep failing /bearer.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool, actor string) error {
	if err := s.clients.SetActive(ctx, id, active); err != nil {
		return err
	}

	note := "client deactivated"
	if active {
		note = "client activated"
	}
	s.recordAdmin(ctx, id.String(), actor, "client_active_toggled", "update", note)
	return nil
}

// ReissueAuthToken rotates the client's long-lived authentication token
// and returns the new value.
func (s *Service) ReissueAuthToken(ctx context.Context, id uuid.UUID, actor string) (string, error) {
	authToken, err := GenerateAuthToken()
	if err != nil {
		return "", err
	}

	if err := s.clients.SetAuthToken(ctx, id, authToken); err != nil {
		return "", err
	}

	s.recordAdmin(ctx, id.String(), actor, "auth_token_reissued", "update", "authentication token rotated")
	return authToken, nil
}

// UpdateFaxNumbers replaces the client's authorized number set.
func (s *Service) UpdateFaxNumbers(ctx context.Context, id uuid.UUID, numbers []string, actor string) error {
	if err := s.clients.SetFaxNumbers(ctx, id, numbers); err != nil {
		return err
	}

	s.recordAdmin(ctx, id.String(), actor, "fax_numbers_updated", "update", "authorized fax numbers replaced")
	return nil
}

// Overview is the admin view of one client: record plus devices,
// assignments and cached bearer expiry, aggregated to keep the GUI to a
// single round-trip.
type Overview struct {
	Client          models.Client
	KnownDevices    []string
	Assignments     []models.Assignment
	BearerExpiresAt *string
}

func (s *Service) ListOverview(ctx context.Context) ([]Overview, error) {
	clients, err := s.clients.List(ctx)
	if err != nil {
		return nil, err
	}

	overviews := make([]Overview, 0, len(clients))
	for _, client := range clients {
		devices, err := s.clients.ListDevices(ctx, client.ID)
		if err != nil {
			return nil, err
		}
		assignments, err := s.assignments.ListByClient(ctx, client.ID)
		if err != nil {
			return nil, err
		}

		o := Overview{
			Client:       client,
			KnownDevices: devices,
			Assignments:  assignments,
		}

		reseller, err := s.resellers.GetByID(ctx, client.ResellerID)
		if err == nil && reseller.Bearer != nil {
			expires := reseller.Bearer.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z")
			o.BearerExpiresAt = &expires
		}

		overviews = append(overviews, o)
	}

	return overviews, nil
}

// GenerateAuthToken returns a fresh client authentication token: random
// bytes, hex, uppercased so it can be read out over the phone.
func GenerateAuthToken() (string, error) {
	b := make([]byte, authTokenBytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating auth token: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

func (s *Service) recordAuthFailure(ctx context.Context, faxUser string, tenantID string, note string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Type:      "auth_failed",
		Stream:    models.StreamAudit,
		TenantID:  tenantID,
		Actor:     audit.SystemActor,
		Object:    "client",
		Operation: "authenticate",
		Note:      note,
		Payload:   map[string]any{"fax_user": faxUser},
	})
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
		Object:    "client",
		Operation: op,
		Note:      note,
	})
}
