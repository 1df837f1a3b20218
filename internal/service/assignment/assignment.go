// Package assignment enforces the single-active-retriever invariant: for
// every fax number at most one device is the retriever of record. The
// database arbitrates every claim, so racing devices cannot both win.
package assignment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/audit"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/obs"
	"github.com/faxretriever/broker/internal/repository"
)

type recorder interface {
	Record(ctx context.Context, e audit.Event)
}

type Service struct {
	assignments repository.AssignmentRepo
	audit       recorder
	logger      logger.Logger
}

func NewService(assignments repository.AssignmentRepo, rec recorder, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOp()
	}
	return &Service{
		assignments: assignments,
		audit:       rec,
		logger:      l,
	}
}

// Evaluate runs the claim state machine for each number on behalf of the
// device. When receiver is set, unassigned numbers are claimed first-come;
// numbers owned by the device stay owned (idempotent); numbers owned by
// another device come back denied with no mutation.
func (s *Service) Evaluate(ctx context.Context, clientID uuid.UUID, deviceID string, numbers []string, receiver bool) (map[string]models.NumberStatus, error) {
	results := make(map[string]models.NumberStatus, len(numbers))

	for _, number := range numbers {
		status, err := s.evaluateOne(ctx, clientID, deviceID, number, receiver)
		if err != nil {
			return nil, err
		}
		results[number] = status
		obs.ObserveClaim(status.Status)
	}

	s.record(ctx, clientID, deviceID, "assignments_evaluated", "evaluate", map[string]any{"results": results})
	return results, nil
}

func (s *Service) evaluateOne(ctx context.Context, clientID uuid.UUID, deviceID string, number string, receiver bool) (models.NumberStatus, error) {
	owner, err := s.assignments.Owner(ctx, clientID, number)
	if err != nil {
		return models.NumberStatus{}, err
	}

	switch {
	case owner == deviceID:
		return models.NumberStatus{Status: models.RetrieverAllowed, Owner: deviceID}, nil

	case owner != "":
		return models.NumberStatus{Status: models.RetrieverDenied, Owner: owner}, nil

	case !receiver:
		// Device does not retrieve; leave the number unassigned
		return models.NumberStatus{Status: models.RetrieverDenied}, nil
	}

	claimed, err := s.assignments.Claim(ctx, clientID, number, deviceID)
	if err != nil {
		return models.NumberStatus{}, err
	}
	if claimed {
		return models.NumberStatus{Status: models.RetrieverAllowed, Owner: deviceID}, nil
	}

	// Lost the race: report whoever won
	owner, err = s.assignments.Owner(ctx, clientID, number)
	if err != nil {
		return models.NumberStatus{}, err
	}
	if owner == deviceID {
		return models.NumberStatus{Status: models.RetrieverAllowed, Owner: deviceID}, nil
	}
	return models.NumberStatus{Status: models.RetrieverDenied, Owner: owner}, nil
}

// OverallStatus folds per-number results into the single status carried in
// the session token: allowed only when the device owns every number.
func OverallStatus(results map[string]models.NumberStatus) string {
	if len(results) == 0 {
		return models.RetrieverDenied
	}
	for _, r := range results {
		if r.Status != models.RetrieverAllowed {
			return models.RetrieverDenied
		}
	}
	return models.RetrieverAllowed
}

// Release lets a device give up specific numbers it owns. The returned map
// reports per-number whether the release happened.
func (s *Service) Release(ctx context.Context, clientID uuid.UUID, deviceID string, numbers []string) (map[string]bool, error) {
	results := make(map[string]bool, len(numbers))

	for _, number := range numbers {
		released, err := s.assignments.Unclaim(ctx, clientID, number, deviceID)
		if err != nil {
			return nil, err
		}
		results[number] = released
	}

	s.record(ctx, clientID, deviceID, "assignments_released", "release", map[string]any{"results": results})
	return results, nil
}

// ReleaseAll gives up every number the device owns and returns them.
func (s *Service) ReleaseAll(ctx context.Context, clientID uuid.UUID, deviceID string) ([]string, error) {
	released, err := s.assignments.UnclaimAll(ctx, clientID, deviceID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, clientID, deviceID, "assignments_released", "release_all", map[string]any{"numbers": released})
	return released, nil
}

// Clear is the administrator override forcing a number back to unassigned.
func (s *Service) Clear(ctx context.Context, clientID uuid.UUID, number string, actor string) (bool, error) {
	cleared, err := s.assignments.Clear(ctx, clientID, number)
	if err != nil {
		return false, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Event{
			Type:      "assignment_cleared",
			Stream:    models.StreamAudit,
			TenantID:  clientID.String(),
			Actor:     actor,
			Object:    "retriever_assignment",
			Operation: "clear",
			Note:      fmt.Sprintf("assignment for %s cleared", number),
			Payload:   map[string]any{"fax_number": number, "cleared": cleared},
		})
	}
	return cleared, nil
}

func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.Assignment, error) {
	return s.assignments.ListByClient(ctx, clientID)
}

func (s *Service) Version(ctx context.Context, clientID uuid.UUID) (int64, error) {
	return s.assignments.Version(ctx, clientID)
}

func (s *Service) record(ctx context.Context, clientID uuid.UUID, deviceID string, eventType string, op string, payload map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Type:      eventType,
		Stream:    models.StreamAudit,
		TenantID:  clientID.String(),
		DeviceID:  deviceID,
		Actor:     audit.SystemActor,
		Object:    "retriever_assignment",
		Operation: op,
		Payload:   payload,
	})
}
