package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/handlers/render"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
)

type resellerService interface {
	Create(ctx context.Context, reseller models.Reseller, creds *models.ProviderCredentials, actor string) (models.Reseller, error)
	RotateCredentials(ctx context.Context, id string, creds models.ProviderCredentials, actor string) error
	SetActive(ctx context.Context, id string, active bool, actor string) error
	List(ctx context.Context) ([]models.Reseller, error)
}

type credentialsRequest struct {
	VoiceAPIUser     string `json:"voice_api_user" validate:"required"`
	VoiceAPIPassword string `json:"voice_api_password" validate:"required"`
	MsgAPIUser       string `json:"msg_api_user" validate:"required"`
	MsgAPIPassword   string `json:"msg_api_password" validate:"required"`
}

func (c credentialsRequest) toModel() models.ProviderCredentials {
	return models.ProviderCredentials{
		VoiceAPIUser:     c.VoiceAPIUser,
		VoiceAPIPassword: c.VoiceAPIPassword,
		MsgAPIUser:       c.MsgAPIUser,
		MsgAPIPassword:   c.MsgAPIPassword,
	}
}

func handleAdminCreateReseller(resellerService resellerService, l logger.Logger) http.Handler {
	type request struct {
		ID          string              `json:"id" validate:"required,min=1,max=64"`
		Name        string              `json:"name" validate:"required,max=200"`
		ContactInfo string              `json:"contact_info" validate:"max=500"`
		Credentials *credentialsRequest `json:"credentials" validate:"omitempty"`
	}

	type response struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		var creds *models.ProviderCredentials
		if data.Credentials != nil {
			m := data.Credentials.toModel()
			creds = &m
		}

		reseller, err := resellerService.Create(r.Context(), models.Reseller{
			ID:          data.ID,
			Name:        data.Name,
			ContactInfo: data.ContactInfo,
		}, creds, adminActor)

		if err != nil {
			l.Error("Failed to create reseller", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSONWithStatus(w, response{
			ID:     reseller.ID,
			Name:   reseller.Name,
			Active: reseller.Active,
		}, http.StatusCreated)
	})
}

func handleAdminListResellers(resellerService resellerService, l logger.Logger) http.Handler {
	type reseller struct {
		ID              string  `json:"id"`
		Name            string  `json:"name"`
		ContactInfo     string  `json:"contact_info"`
		Active          bool    `json:"active"`
		CreatedAt       string  `json:"created_at"`
		HasCredentials  bool    `json:"has_credentials"`
		BearerExpiresAt *string `json:"bearer_expires_at,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resellers, err := resellerService.List(r.Context())
		if err != nil {
			l.Error("Failed to list resellers", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Sealed blobs never leave the service, only presence flags do
		out := make([]reseller, 0, len(resellers))
		for _, item := range resellers {
			res := reseller{
				ID:             item.ID,
				Name:           item.Name,
				ContactInfo:    item.ContactInfo,
				Active:         item.Active,
				CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
				HasCredentials: item.Credentials != nil,
			}
			if item.Bearer != nil {
				expires := item.Bearer.ExpiresAt.UTC().Format(time.RFC3339)
				res.BearerExpiresAt = &expires
			}
			out = append(out, res)
		}

		render.JSON(w, out)
	})
}

func handleAdminRotateCredentials(resellerService resellerService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		data, err := render.BindAndValidate[credentialsRequest](w, r)
		if err != nil {
			return
		}

		err = resellerService.RotateCredentials(r.Context(), id, data.toModel(), adminActor)

		switch {
		case err == nil:
			render.JSON(w, response{Message: "Credentials rotated"})
		case errors.Is(err, apperrors.ErrResellerNotFound):
			render.ServiceError(w, "Reseller not found", http.StatusNotFound)
		default:
			l.Error("Failed to rotate credentials", "error", err, "reseller_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleAdminResellerActive(resellerService resellerService, l logger.Logger) http.Handler {
	type request struct {
		Active *bool `json:"active" validate:"required"`
	}

	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = resellerService.SetActive(r.Context(), id, *data.Active, adminActor)

		switch {
		case err == nil:
			render.JSON(w, response{Message: "Reseller updated"})
		case errors.Is(err, apperrors.ErrResellerNotFound):
			render.ServiceError(w, "Reseller not found", http.StatusNotFound)
		default:
			l.Error("Failed to toggle reseller", "error", err, "reseller_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
