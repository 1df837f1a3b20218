// Package issuer turns a successful client authentication into a scoped
// session token. It composes the registry (who are you), the assignment
// manager (may this device retrieve) and the token manager (prove it
// later) into the /init operation.
package issuer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/audit"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/service/assignment"
)

type clientRegistry interface {
	Authenticate(ctx context.Context, faxUser string, authToken string) (models.Client, error)
	RegisterDevice(ctx context.Context, id uuid.UUID, deviceID string) error
}

type assignmentEvaluator interface {
	Evaluate(ctx context.Context, clientID uuid.UUID, deviceID string, numbers []string, receiver bool) (map[string]models.NumberStatus, error)
}

type recorder interface {
	Record(ctx context.Context, e audit.Event)
}

type Service struct {
	registry    clientRegistry
	assignments assignmentEvaluator
	tokens      *TokenManager
	audit       recorder
	logger      logger.Logger
}

func NewService(registry clientRegistry, assignments assignmentEvaluator, tokens *TokenManager, rec recorder, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOp()
	}
	return &Service{
		registry:    registry,
		assignments: assignments,
		tokens:      tokens,
		audit:       rec,
		logger:      l,
	}
}

type InitParams struct {
	FaxUser   string
	AuthToken string
	DeviceID  string

	// Receiver declares the device wants to claim retrieval for the
	// client's numbers
	Receiver bool
}

type InitResult struct {
	Token           models.SessionToken
	TenantID        uuid.UUID
	RetrieverStatus string
	FaxNumbers      []string
	Numbers         map[string]models.NumberStatus
	ExpiresIn       time.Duration
}

// Init validates the client, registers the device, evaluates retriever
// assignments and mints the session token. Idempotent from the device's
// point of view: repeating the call yields the same retriever status and
// mutates nothing after the claiming call.
func (s *Service) Init(ctx context.Context, p InitParams) (InitResult, error) {
	var result InitResult

	client, err := s.registry.Authenticate(ctx, p.FaxUser, p.AuthToken)
	if err != nil {
		return result, err
	}

	if err := s.registry.RegisterDevice(ctx, client.ID, p.DeviceID); err != nil {
		return result, err
	}

	numbers, err := s.assignments.Evaluate(ctx, client.ID, p.DeviceID, client.FaxNumbers, p.Receiver)
	if err != nil {
		return result, err
	}
	status := assignment.OverallStatus(numbers)

	token, err := s.tokens.Issue(client.ID, p.DeviceID, status)
	if err != nil {
		return result, err
	}

	s.recordIssued(ctx, client.ID, p.DeviceID, status, token.ExpiresAt)

	return InitResult{
		Token:           token,
		TenantID:        client.ID,
		RetrieverStatus: status,
		FaxNumbers:      client.FaxNumbers,
		Numbers:         numbers,
		ExpiresIn:       time.Until(token.ExpiresAt),
	}, nil
}

// ParseToken exposes local JWT validation for the middleware.
func (s *Service) ParseToken(tokenString string) (SessionClaims, error) {
	return s.tokens.Parse(tokenString)
}

func (s *Service) recordIssued(ctx context.Context, tenantID uuid.UUID, deviceID string, status string, expiresAt time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Type:      "jwt_issued",
		Stream:    models.StreamAudit,
		TenantID:  tenantID.String(),
		DeviceID:  deviceID,
		Actor:     audit.SystemActor,
		Object:    "jwt",
		Operation: "create",
		Note:      "issued session token",
		Payload: map[string]any{
			"retriever_status": status,
			"expires_at":       expiresAt.UTC().Format(time.RFC3339),
		},
	})
}
