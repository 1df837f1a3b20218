package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/handlers/claimsctx"
	"github.com/faxretriever/broker/internal/handlers/render"
	"github.com/faxretriever/broker/internal/logger"
)

type assignmentService interface {
	Release(ctx context.Context, clientID uuid.UUID, deviceID string, numbers []string) (map[string]bool, error)
	ReleaseAll(ctx context.Context, clientID uuid.UUID, deviceID string) ([]string, error)
}

func handleAssignmentsRelease(assignments assignmentService, l logger.Logger) http.Handler {
	type request struct {
		// Empty or absent means release everything the device holds
		Numbers []string `json:"numbers" validate:"omitempty,dive,e164like"`
	}

	type response struct {
		Released []string `json:"released"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		tenantID, err := claims.TenantID()
		if err != nil {
			render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		var released []string
		if len(data.Numbers) == 0 {
			released, err = assignments.ReleaseAll(r.Context(), tenantID, claims.DeviceID)
		} else {
			var results map[string]bool
			results, err = assignments.Release(r.Context(), tenantID, claims.DeviceID, data.Numbers)
			for number, ok := range results {
				if ok {
					released = append(released, number)
				}
			}
		}

		if err != nil {
			l.Error("Failed to release assignments", "error", err, "client_id", tenantID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if released == nil {
			released = []string{}
		}

		render.JSON(w, response{Released: released})
	})
}
