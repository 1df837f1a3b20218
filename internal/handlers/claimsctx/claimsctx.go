package claimsctx

import (
	"context"

	"github.com/faxretriever/broker/internal/service/issuer"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// Create a new context with the session claims
func New(ctx context.Context, c issuer.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// Extract the session claims from the context
func FromContext(ctx context.Context) (issuer.SessionClaims, bool) {
	c, ok := ctx.Value(claimsKey).(issuer.SessionClaims)
	return c, ok
}
