package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/handlers/claimsctx"
	"github.com/faxretriever/broker/internal/handlers/render"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/service/issuer"
)

type tokenParser interface {
	ParseToken(tokenString string) (issuer.SessionClaims, error)
}

type clientChecker interface {
	ActiveByID(ctx context.Context, id uuid.UUID) (models.Client, error)
}

// AuthMiddleware validates the session token from the Authorization header
// and rejects tokens whose client has been deactivated since issuance.
func AuthMiddleware(parser tokenParser, clients clientChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := parser.ParseToken(tokenString)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrTokenExpired):
				render.ServiceError(w, "Token expired", http.StatusUnauthorized)
				return
			default:
				render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			tenantID, err := claims.TenantID()
			if err != nil {
				render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			// Deactivated and unknown clients get the same 401 as a bad
			// token: a revoked session is simply no longer authenticated
			_, err = clients.ActiveByID(r.Context(), tenantID)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrInactiveClient), errors.Is(err, apperrors.ErrUnknownClient):
				render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
				return
			default:
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := claimsctx.New(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
