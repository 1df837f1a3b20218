package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/handlers/claimsctx"
	"github.com/faxretriever/broker/internal/handlers/render"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
)

type bearerService interface {
	GetToken(ctx context.Context, resellerID string) (models.BearerToken, error)
}

type clientSource interface {
	ActiveByID(ctx context.Context, id uuid.UUID) (models.Client, error)
}

func handleBearer(bearerService bearerService, clients clientSource, l logger.Logger) http.Handler {
	type response struct {
		BearerToken string `json:"bearer_token"`
		RetrievedAt string `json:"bearer_token_retrieved_at"`
		ExpiresAt   string `json:"bearer_token_expires_at"`
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

		client, err := clients.ActiveByID(r.Context(), tenantID)
		if err != nil {
			render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		token, err := bearerService.GetToken(r.Context(), client.ResellerID)

		switch {
		case err == nil:
			render.JSON(w, response{
				BearerToken: token.Value,
				RetrievedAt: token.RetrievedAt.UTC().Format(time.RFC3339),
				ExpiresAt:   token.ExpiresAt.UTC().Format(time.RFC3339),
			})
		case errors.Is(err, apperrors.ErrResellerInactive):
			render.ServiceError(w, "Reseller deactivated", http.StatusForbidden)
		case errors.Is(err, apperrors.ErrResellerNotFound):
			l.Error("Client references unknown reseller", "reseller_id", client.ResellerID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		case errors.Is(err, apperrors.ErrUpstreamAuth):
			render.ServiceError(w, "Provider authentication failed", http.StatusBadGateway)
		default:
			l.Error("Failed to get bearer token", "error", err, "reseller_id", client.ResellerID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
