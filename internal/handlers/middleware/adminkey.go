package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/faxretriever/broker/internal/handlers/render"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware guards the admin surface with a static shared key.
// The comparison is constant time so the key can't be guessed byte by byte.
func AdminKeyMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				render.ServiceError(w, "Admin surface disabled", http.StatusForbidden)
				return
			}

			got := r.Header.Get(adminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
