package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/handlers/render"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/service/registry"
)

// adminActor is recorded as the acting party for admin-key requests. The
// shared key carries no identity, so there is nothing finer to record.
const adminActor = "admin"

type registryService interface {
	Create(ctx context.Context, params registry.CreateParams, actor string) (models.Client, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool, actor string) error
	ReissueAuthToken(ctx context.Context, id uuid.UUID, actor string) (string, error)
	UpdateFaxNumbers(ctx context.Context, id uuid.UUID, numbers []string, actor string) error
	ListOverview(ctx context.Context) ([]registry.Overview, error)
}

type clientResponse struct {
	ID         string   `json:"id"`
	FaxUser    string   `json:"fax_user"`
	ResellerID string   `json:"reseller_id"`
	FaxNumbers []string `json:"fax_numbers"`
	Active     bool     `json:"active"`
	CreatedAt  string   `json:"created_at"`
	LastSeenAt *string  `json:"last_seen_at,omitempty"`
}

func toClientResponse(c models.Client) clientResponse {
	resp := clientResponse{
		ID:         c.ID.String(),
		FaxUser:    c.FaxUser,
		ResellerID: c.ResellerID,
		FaxNumbers: c.FaxNumbers,
		Active:     c.Active,
		CreatedAt:  c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.LastSeenAt != nil {
		seen := c.LastSeenAt.UTC().Format(time.RFC3339)
		resp.LastSeenAt = &seen
	}
	return resp
}

func handleAdminCreateClient(registryService registryService, l logger.Logger) http.Handler {
	type request struct {
		FaxUser    string   `json:"fax_user" validate:"required,min=3,max=254"`
		FaxNumbers []string `json:"fax_numbers" validate:"required,min=1,dive,e164like"`
		ResellerID string   `json:"reseller_id" validate:"omitempty,max=64"`
	}

	type response struct {
		Client    clientResponse `json:"client"`
		AuthToken string         `json:"auth_token"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		client, err := registryService.Create(r.Context(), registry.CreateParams{
			FaxUser:    data.FaxUser,
			FaxNumbers: data.FaxNumbers,
			ResellerID: data.ResellerID,
		}, adminActor)

		switch {
		case err == nil:
			// Returned once at creation, never listed again
			render.JSONWithStatus(w, response{
				Client:    toClientResponse(client),
				AuthToken: client.AuthToken,
			}, http.StatusCreated)
		case errors.Is(err, apperrors.ErrClientAlreadyExists):
			render.ServiceError(w, "Client already exists", http.StatusConflict)
		case errors.Is(err, apperrors.ErrResellerNotFound):
			render.ServiceError(w, "Unknown reseller", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to create client", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleAdminListClients(registryService registryService, l logger.Logger) http.Handler {
	type assignment struct {
		FaxNumber  string `json:"fax_number"`
		DeviceID   string `json:"device_id"`
		AssignedAt string `json:"assigned_at"`
	}

	type overview struct {
		Client          clientResponse `json:"client"`
		KnownDevices    []string       `json:"known_devices"`
		Assignments     []assignment   `json:"assignments"`
		BearerExpiresAt *string        `json:"bearer_expires_at,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		overviews, err := registryService.ListOverview(r.Context())
		if err != nil {
			l.Error("Failed to list clients", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		out := make([]overview, 0, len(overviews))
		for _, o := range overviews {
			assignments := make([]assignment, 0, len(o.Assignments))
			for _, a := range o.Assignments {
				assignments = append(assignments, assignment{
					FaxNumber:  a.FaxNumber,
					DeviceID:   a.DeviceID,
					AssignedAt: a.AssignedAt.UTC().Format(time.RFC3339),
				})
			}

			out = append(out, overview{
				Client:          toClientResponse(o.Client),
				KnownDevices:    o.KnownDevices,
				Assignments:     assignments,
				BearerExpiresAt: o.BearerExpiresAt,
			})
		}

		render.JSON(w, out)
	})
}

func handleAdminClientActive(registryService registryService, l logger.Logger) http.Handler {
	type request struct {
		Active *bool `json:"active" validate:"required"`
	}

	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid client id", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = registryService.SetActive(r.Context(), id, *data.Active, adminActor)

		switch {
		case err == nil:
			render.JSON(w, response{Message: "Client updated"})
		case errors.Is(err, apperrors.ErrUnknownClient):
			render.ServiceError(w, "Client not found", http.StatusNotFound)
		default:
			l.Error("Failed to toggle client", "error", err, "client_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleAdminClientReissueToken(registryService registryService, l logger.Logger) http.Handler {
	type response struct {
		AuthToken string `json:"auth_token"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid client id", http.StatusBadRequest)
			return
		}

		token, err := registryService.ReissueAuthToken(r.Context(), id, adminActor)

		switch {
		case err == nil:
			render.JSON(w, response{AuthToken: token})
		case errors.Is(err, apperrors.ErrUnknownClient):
			render.ServiceError(w, "Client not found", http.StatusNotFound)
		default:
			l.Error("Failed to reissue auth token", "error", err, "client_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleAdminClientNumbers(registryService registryService, l logger.Logger) http.Handler {
	type request struct {
		FaxNumbers []string `json:"fax_numbers" validate:"required,min=1,dive,e164like"`
	}

	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid client id", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = registryService.UpdateFaxNumbers(r.Context(), id, data.FaxNumbers, adminActor)

		switch {
		case err == nil:
			render.JSON(w, response{Message: "Fax numbers updated"})
		case errors.Is(err, apperrors.ErrUnknownClient):
			render.ServiceError(w, "Client not found", http.StatusNotFound)
		default:
			l.Error("Failed to update fax numbers", "error", err, "client_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
