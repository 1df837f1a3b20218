package issuer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/models"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	defaultSigningMethod = "HS256"
)

// SessionClaims is the fixed claim shape of a broker session token.
// Unknown or malformed shapes are rejected, never partially accepted.
type SessionClaims struct {
	jwt.RegisteredClaims
	DeviceID        string `json:"device_id"`
	RetrieverStatus string `json:"retriever_status"`
}

// TenantID is the client domain UUID carried in the subject claim.
func (c *SessionClaims) TenantID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Token manager configuration with sensible defaults
type TokenConfig struct {
	// Secret key to sign session tokens
	// Required to be set
	SecretKey string

	// JWT MAC algorithm; default is used if not set
	Alg string

	// Session token lifetime; default is used if not set
	SessionTTL time.Duration
}

type TokenManager struct {
	key string
	alg jwt.SigningMethod
	ttl time.Duration
}

func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	return &TokenManager{
		key: cfg.SecretKey,
		alg: jwt.GetSigningMethod(cfg.Alg),
		ttl: cfg.SessionTTL,
	}, nil
}

// Issue mints a session token binding the tenant, the device and its
// retriever status together.
func (m *TokenManager) Issue(tenantID uuid.UUID, deviceID string, retrieverStatus string) (models.SessionToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)

	token := jwt.NewWithClaims(
		m.alg,
		SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   tenantID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			DeviceID:        deviceID,
			RetrieverStatus: retrieverStatus,
		},
	)

	signed, err := token.SignedString([]byte(m.key))
	if err != nil {
		return models.SessionToken{}, fmt.Errorf("error while signing session token. Err: %w", err)
	}

	return models.SessionToken{
		Value:     signed,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse validates signature and expiry locally and checks the claim shape.
// No store round-trip happens here; revocation is enforced by the active
// check on the client record afterwards.
func (m *TokenManager) Parse(tokenString string) (SessionClaims, error) {
	claims := SessionClaims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return SessionClaims{}, fmt.Errorf("parse session token: %w", apperrors.ErrTokenExpired)
	default:
		return SessionClaims{}, fmt.Errorf("parse session token: %w", apperrors.ErrTokenInvalid)
	}

	if err := validateClaimShape(&claims); err != nil {
		return SessionClaims{}, err
	}

	return claims, nil
}

func validateClaimShape(claims *SessionClaims) error {
	if _, err := claims.TenantID(); err != nil {
		return fmt.Errorf("subject is not a tenant uuid: %w", apperrors.ErrTokenInvalid)
	}
	if claims.DeviceID == "" {
		return fmt.Errorf("device_id claim missing: %w", apperrors.ErrTokenInvalid)
	}
	if claims.RetrieverStatus != models.RetrieverAllowed && claims.RetrieverStatus != models.RetrieverDenied {
		return fmt.Errorf("retriever_status claim malformed: %w", apperrors.ErrTokenInvalid)
	}
	return nil
}
