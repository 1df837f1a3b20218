package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/handlers/render"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
)

type assignmentAdmin interface {
	Clear(ctx context.Context, clientID uuid.UUID, number string, actor string) (bool, error)
}

type auditSource interface {
	ListRecent(ctx context.Context, tenantID string, limit int) ([]models.AuditEvent, error)
}

func handleAdminAssignmentClear(assignments assignmentAdmin, l logger.Logger) http.Handler {
	type request struct {
		ClientID  string `json:"client_id" validate:"required,uuid"`
		FaxNumber string `json:"fax_number" validate:"required,e164like"`
	}

	type response struct {
		Cleared bool `json:"cleared"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		clientID, err := uuid.Parse(data.ClientID)
		if err != nil {
			render.ServiceError(w, "Invalid client id", http.StatusBadRequest)
			return
		}

		cleared, err := assignments.Clear(r.Context(), clientID, data.FaxNumber, adminActor)
		if err != nil {
			l.Error("Failed to clear assignment", "error", err, "client_id", clientID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Cleared: cleared})
	})
}

func handleAdminListAuditEvents(audit auditSource, l logger.Logger) http.Handler {
	const defaultLimit = 100
	const maxLimit = 1000

	type event struct {
		ID        int64          `json:"id"`
		Timestamp string         `json:"ts"`
		Stream    string         `json:"stream"`
		EventType string         `json:"event_type"`
		TenantID  string         `json:"tenant_id,omitempty"`
		DeviceID  string         `json:"device_id,omitempty"`
		Actor     string         `json:"actor"`
		Object    string         `json:"object,omitempty"`
		Operation string         `json:"operation,omitempty"`
		Note      string         `json:"note,omitempty"`
		Payload   map[string]any `json:"payload,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")

		limit := defaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(parsed, maxLimit)
		}

		events, err := audit.ListRecent(r.Context(), tenantID, limit)
		if err != nil {
			l.Error("Failed to list audit events", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		out := make([]event, 0, len(events))
		for _, e := range events {
			out = append(out, event{
				ID:        e.ID,
				Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
				Stream:    e.Stream,
				EventType: e.EventType,
				TenantID:  e.TenantID,
				DeviceID:  e.DeviceID,
				Actor:     e.Actor,
				Object:    e.Object,
				Operation: e.Operation,
				Note:      e.Note,
				Payload:   e.Payload,
			})
		}

		render.JSON(w, out)
	})
}
