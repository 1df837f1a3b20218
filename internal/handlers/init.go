package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/handlers/render"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/service/issuer"
)

type issuerService interface {
	Init(ctx context.Context, p issuer.InitParams) (issuer.InitResult, error)
}

func handleInit(issuerService issuerService, l logger.Logger) http.Handler {
	type request struct {
		FaxUser   string `json:"fax_user" validate:"required,min=3,max=254"`
		AuthToken string `json:"auth_token" validate:"required"`
		DeviceID  string `json:"device_id" validate:"required,min=1,max=128"`
		Receiver  bool   `json:"receiver"`
	}

	type response struct {
		JWTToken        string                         `json:"jwt_token"`
		DomainUUID      string                         `json:"domain_uuid"`
		RetrieverStatus string                         `json:"retriever_status"`
		AllFaxNumbers   []string                       `json:"all_fax_numbers"`
		Numbers         map[string]models.NumberStatus `json:"numbers"`
		ExpiresIn       int64                          `json:"expires_in"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := issuerService.Init(r.Context(), issuer.InitParams{
			FaxUser:   data.FaxUser,
			AuthToken: data.AuthToken,
			DeviceID:  data.DeviceID,
			Receiver:  data.Receiver,
		})

		switch {
		case err == nil:
			render.JSON(w, response{
				JWTToken:        result.Token.Value,
				DomainUUID:      result.TenantID.String(),
				RetrieverStatus: result.RetrieverStatus,
				AllFaxNumbers:   result.FaxNumbers,
				Numbers:         result.Numbers,
				ExpiresIn:       int64(result.ExpiresIn.Seconds()),
			})
		case errors.Is(err, apperrors.ErrUnknownClient), errors.Is(err, apperrors.ErrInvalidCredentials):
			// Same response for unknown user and wrong token, no oracle
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrInactiveClient):
			render.ServiceError(w, "Client deactivated", http.StatusForbidden)
		default:
			l.Error("Failed to initialize client session", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
