package issuer

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/models"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()

	t.Run("new defaults", func(t *testing.T) {
		m, err := NewTokenManager(TokenConfig{SecretKey: "secret"})
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, "secret", m.key, "secret key should be set")
		require.Equal(t, defaultSessionTTL, m.ttl, "default session TTL should be set")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new requires secret", func(t *testing.T) {
		_, err := NewTokenManager(TokenConfig{})
		require.Error(t, err, "empty secret key must be rejected")
	})

	t.Run("Issue", func(t *testing.T) {
		m, err := NewTokenManager(TokenConfig{SecretKey: "test-secret-key", SessionTTL: 24 * time.Hour})
		require.NoError(t, err)

		t.Run("return session token", func(t *testing.T) {
			token, err := m.Issue(tenantID, "device-1", models.RetrieverAllowed)
			require.NoError(t, err)

			assert.NotEmpty(t, token.Value, "session token should not be empty")
			assert.WithinDuration(t, time.Now(), token.IssuedAt, time.Second)
			assert.WithinDuration(t, time.Now().Add(24*time.Hour), token.ExpiresAt, time.Second)
		})

		t.Run("claims", func(t *testing.T) {
			token, err := m.Issue(tenantID, "device-1", models.RetrieverAllowed)
			require.NoError(t, err)

			// Parse and verify the session token
			parsed, err := jwt.ParseWithClaims(token.Value, &SessionClaims{}, func(token *jwt.Token) (any, error) {
				return []byte("test-secret-key"), nil
			})
			require.NoError(t, err)
			require.True(t, parsed.Valid, "session token should be valid")

			claims, ok := parsed.Claims.(*SessionClaims)
			require.True(t, ok, "claims should be of type SessionClaims")
			assert.Equal(t, tenantID.String(), claims.Subject, "subject should carry the tenant uuid")
			assert.Equal(t, "device-1", claims.DeviceID, "device id should be carried")
			assert.Equal(t, models.RetrieverAllowed, claims.RetrieverStatus)
			assert.NotEmpty(t, claims.ID, "token has to has jti")
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second, "issued at should be close to now")
			assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Second)
		})
	})

	t.Run("Parse", func(t *testing.T) {
		m, err := NewTokenManager(TokenConfig{SecretKey: "test-secret-key"})
		require.NoError(t, err)

		t.Run("round trip", func(t *testing.T) {
			token, err := m.Issue(tenantID, "device-1", models.RetrieverDenied)
			require.NoError(t, err)

			claims, err := m.Parse(token.Value)
			require.NoError(t, err)

			parsedTenant, err := claims.TenantID()
			require.NoError(t, err)
			assert.Equal(t, tenantID, parsedTenant)
			assert.Equal(t, "device-1", claims.DeviceID)
			assert.Equal(t, models.RetrieverDenied, claims.RetrieverStatus)
		})

		t.Run("expired token", func(t *testing.T) {
			expired, err := NewTokenManager(TokenConfig{SecretKey: "test-secret-key", SessionTTL: -time.Hour})
			require.NoError(t, err)

			token, err := expired.Issue(tenantID, "device-1", models.RetrieverAllowed)
			require.NoError(t, err)

			_, err = m.Parse(token.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenExpired)
		})

		t.Run("expiry boundary", func(t *testing.T) {
			signWithExpiry := func(t *testing.T, expiresAt time.Time) string {
				t.Helper()
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						Subject:   tenantID.String(),
						IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
						ExpiresAt: jwt.NewNumericDate(expiresAt),
					},
					DeviceID:        "device-1",
					RetrieverStatus: models.RetrieverAllowed,
				})
				signed, err := token.SignedString([]byte("test-secret-key"))
				require.NoError(t, err)
				return signed
			}

			t.Run("one second past expiry rejected", func(t *testing.T) {
				_, err := m.Parse(signWithExpiry(t, time.Now().Add(-time.Second)))
				require.ErrorIs(t, err, apperrors.ErrTokenExpired, "validation must not apply leeway")
			})

			t.Run("still inside expiry accepted", func(t *testing.T) {
				claims, err := m.Parse(signWithExpiry(t, time.Now().Add(2*time.Second)))
				require.NoError(t, err)
				assert.Equal(t, "device-1", claims.DeviceID)
			})
		})

		t.Run("wrong key", func(t *testing.T) {
			other, err := NewTokenManager(TokenConfig{SecretKey: "other-secret-key"})
			require.NoError(t, err)

			token, err := other.Issue(tenantID, "device-1", models.RetrieverAllowed)
			require.NoError(t, err)

			_, err = m.Parse(token.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("garbage token", func(t *testing.T) {
			_, err := m.Parse("not-a-jwt")
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("unexpected signing method rejected", func(t *testing.T) {
			// Unsigned token with otherwise valid claims
			token := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
				RegisteredClaims: jwt.RegisteredClaims{
					ID:        uuid.NewString(),
					Subject:   tenantID.String(),
					IssuedAt:  jwt.NewNumericDate(time.Now()),
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
				DeviceID:        "device-1",
				RetrieverStatus: models.RetrieverAllowed,
			})
			signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = m.Parse(signed)
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("claim shape", func(t *testing.T) {
			issueRaw := func(t *testing.T, claims SessionClaims) string {
				t.Helper()
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
				signed, err := token.SignedString([]byte("test-secret-key"))
				require.NoError(t, err)
				return signed
			}

			base := func() SessionClaims {
				return SessionClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						Subject:   tenantID.String(),
						IssuedAt:  jwt.NewNumericDate(time.Now()),
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
					DeviceID:        "device-1",
					RetrieverStatus: models.RetrieverAllowed,
				}
			}

			t.Run("subject not a uuid", func(t *testing.T) {
				claims := base()
				claims.Subject = "nope"
				_, err := m.Parse(issueRaw(t, claims))
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
			})

			t.Run("device id missing", func(t *testing.T) {
				claims := base()
				claims.DeviceID = ""
				_, err := m.Parse(issueRaw(t, claims))
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
			})

			t.Run("retriever status malformed", func(t *testing.T) {
				claims := base()
				claims.RetrieverStatus = "maybe"
				_, err := m.Parse(issueRaw(t, claims))
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
			})

			t.Run("expiry missing", func(t *testing.T) {
				claims := base()
				claims.ExpiresAt = nil
				_, err := m.Parse(issueRaw(t, claims))
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
			})
		})
	})
}
