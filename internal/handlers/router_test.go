package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/repository"
	"github.com/faxretriever/broker/internal/service/assignment"
	"github.com/faxretriever/broker/internal/service/bearer"
	"github.com/faxretriever/broker/internal/service/issuer"
	"github.com/faxretriever/broker/internal/service/registry"
	"github.com/faxretriever/broker/internal/service/resellers"
	"github.com/faxretriever/broker/internal/vault"
)

// memStorage is an in-memory repository.Storage good enough for handler
// tests: same sentinel errors, same check-and-set claim semantics.
type memStorage struct {
	mu sync.Mutex

	resellerByID map[string]models.Reseller
	clientByID   map[uuid.UUID]models.Client
	devices      map[uuid.UUID][]string
	owners       map[string]string // clientID/number -> deviceID
	versions     map[uuid.UUID]int64
	events       []models.AuditEvent
}

func newMemStorage() *memStorage {
	return &memStorage{
		resellerByID: map[string]models.Reseller{},
		clientByID:   map[uuid.UUID]models.Client{},
		devices:      map[uuid.UUID][]string{},
		owners:       map[string]string{},
		versions:     map[uuid.UUID]int64{},
	}
}

func (m *memStorage) Resellers() repository.ResellerRepo     { return (*memResellers)(m) }
func (m *memStorage) Clients() repository.ClientRepo         { return (*memClients)(m) }
func (m *memStorage) Assignments() repository.AssignmentRepo { return (*memAssignments)(m) }
func (m *memStorage) Audit() repository.AuditRepo            { return (*memAudit)(m) }
func (m *memStorage) InTx(_ context.Context, fn func(repository.Storage) error) error {
	return fn(m)
}

type memResellers memStorage

func (m *memResellers) Create(_ context.Context, r models.Reseller) (models.Reseller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.CreatedAt = time.Now()
	m.resellerByID[r.ID] = r
	return r, nil
}

func (m *memResellers) GetByID(_ context.Context, id string) (models.Reseller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resellerByID[id]
	if !ok {
		return models.Reseller{}, apperrors.ErrResellerNotFound
	}
	return r, nil
}

func (m *memResellers) List(_ context.Context) ([]models.Reseller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Reseller, 0, len(m.resellerByID))
	for _, r := range m.resellerByID {
		out = append(out, r)
	}
	return out, nil
}

func (m *memResellers) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resellerByID[id]
	if !ok {
		return apperrors.ErrResellerNotFound
	}
	r.Active = active
	m.resellerByID[id] = r
	return nil
}

func (m *memResellers) SetCredentials(_ context.Context, id string, blob models.SealedBlob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resellerByID[id]
	if !ok {
		return apperrors.ErrResellerNotFound
	}
	r.Credentials = &blob
	m.resellerByID[id] = r
	return nil
}

func (m *memResellers) SaveBearer(_ context.Context, id string, b models.CachedBearer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resellerByID[id]
	if !ok {
		return apperrors.ErrResellerNotFound
	}
	r.Bearer = &b
	m.resellerByID[id] = r
	return nil
}

func (m *memResellers) ListRefreshCandidates(_ context.Context, deadline time.Time) ([]models.Reseller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reseller
	for _, r := range m.resellerByID {
		if !r.Active || r.Credentials == nil {
			continue
		}
		if r.Bearer == nil || r.Bearer.ExpiresAt.Before(deadline) {
			out = append(out, r)
		}
	}
	return out, nil
}

type memClients memStorage

func (m *memClients) Create(_ context.Context, c models.Client) (models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.clientByID {
		if existing.FaxUser == c.FaxUser {
			return models.Client{}, apperrors.ErrClientAlreadyExists
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.clientByID[c.ID] = c
	return c, nil
}

func (m *memClients) GetByID(_ context.Context, id uuid.UUID) (models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clientByID[id]
	if !ok {
		return models.Client{}, apperrors.ErrUnknownClient
	}
	return c, nil
}

func (m *memClients) GetByFaxUser(_ context.Context, faxUser string) (models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clientByID {
		if c.FaxUser == faxUser {
			return c, nil
		}
	}
	return models.Client{}, apperrors.ErrUnknownClient
}

func (m *memClients) List(_ context.Context) ([]models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Client, 0, len(m.clientByID))
	for _, c := range m.clientByID {
		out = append(out, c)
	}
	return out, nil
}

func (m *memClients) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clientByID[id]
	if !ok {
		return apperrors.ErrUnknownClient
	}
	c.Active = active
	m.clientByID[id] = c
	return nil
}

func (m *memClients) SetAuthToken(_ context.Context, id uuid.UUID, authToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clientByID[id]
	if !ok {
		return apperrors.ErrUnknownClient
	}
	c.AuthToken = authToken
	m.clientByID[id] = c
	return nil
}

func (m *memClients) SetFaxNumbers(_ context.Context, id uuid.UUID, numbers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clientByID[id]
	if !ok {
		return apperrors.ErrUnknownClient
	}
	c.FaxNumbers = numbers
	m.clientByID[id] = c
	return nil
}

func (m *memClients) RegisterDevice(_ context.Context, id uuid.UUID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clientByID[id]; !ok {
		return apperrors.ErrUnknownClient
	}
	for _, d := range m.devices[id] {
		if d == deviceID {
			return nil
		}
	}
	m.devices[id] = append(m.devices[id], deviceID)
	return nil
}

func (m *memClients) ListDevices(_ context.Context, id uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[id], nil
}

type memAssignments memStorage

func assignmentKey(clientID uuid.UUID, number string) string {
	return clientID.String() + "/" + number
}

func (m *memAssignments) Claim(_ context.Context, clientID uuid.UUID, number string, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := assignmentKey(clientID, number)
	if _, taken := m.owners[k]; taken {
		return false, nil
	}
	m.owners[k] = deviceID
	m.versions[clientID]++
	return true, nil
}

func (m *memAssignments) Owner(_ context.Context, clientID uuid.UUID, number string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[assignmentKey(clientID, number)], nil
}

func (m *memAssignments) ListByClient(_ context.Context, clientID uuid.UUID) ([]models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Assignment
	prefix := clientID.String() + "/"
	for k, owner := range m.owners {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, models.Assignment{
				ClientID:  clientID,
				FaxNumber: k[len(prefix):],
				DeviceID:  owner,
			})
		}
	}
	return out, nil
}

func (m *memAssignments) Unclaim(_ context.Context, clientID uuid.UUID, number string, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := assignmentKey(clientID, number)
	if m.owners[k] != deviceID {
		return false, nil
	}
	delete(m.owners, k)
	m.versions[clientID]++
	return true, nil
}

func (m *memAssignments) UnclaimAll(_ context.Context, clientID uuid.UUID, deviceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var released []string
	prefix := clientID.String() + "/"
	for k, owner := range m.owners {
		if owner == deviceID && len(k) > len(prefix) && k[:len(prefix)] == prefix {
			released = append(released, k[len(prefix):])
			delete(m.owners, k)
		}
	}
	if len(released) > 0 {
		m.versions[clientID]++
	}
	return released, nil
}

func (m *memAssignments) Clear(_ context.Context, clientID uuid.UUID, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := assignmentKey(clientID, number)
	if _, taken := m.owners[k]; !taken {
		return false, nil
	}
	delete(m.owners, k)
	m.versions[clientID]++
	return true, nil
}

func (m *memAssignments) Version(_ context.Context, clientID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[clientID], nil
}

type memAudit memStorage

func (m *memAudit) Insert(_ context.Context, e models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
	return nil
}

func (m *memAudit) ListRecent(_ context.Context, tenantID string, limit int) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if tenantID == "" || m.events[i].TenantID == tenantID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

type exchangerFake struct {
	err error
}

func (f *exchangerFake) ExchangeToken(_ context.Context, _ models.ProviderCredentials) (models.BearerToken, error) {
	if f.err != nil {
		return models.BearerToken{}, f.err
	}
	return models.BearerToken{
		Value:       "provider-bearer-token",
		RetrievedAt: time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(6 * time.Hour),
	}, nil
}

const (
	testSecretKey = "test-secret-key"
	testAdminKey  = "test-admin-key"
	testFaxUser   = "clinic.reseller1.service"
)

type testEnv struct {
	url       string
	storage   *memStorage
	registry  *registry.Service
	exchanger *exchangerFake
	client    models.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	storage := newMemStorage()

	v, err := vault.New(vault.Config{MasterKey: "test-master-key-32-bytes-long!!!"}, nil)
	require.NoError(t, err)

	tokens, err := issuer.NewTokenManager(issuer.TokenConfig{SecretKey: testSecretKey})
	require.NoError(t, err)

	exchanger := &exchangerFake{}
	bearerService := bearer.NewService(bearer.Config{}, storage.Resellers(), v, exchanger, nil, nil)
	registryService := registry.NewService(storage, nil, nil)
	resellerService := resellers.NewService(storage.Resellers(), v, nil, nil)
	assignmentService := assignment.NewService(storage.Assignments(), nil, nil)
	issuerService := issuer.NewService(registryService, assignmentService, tokens, nil, nil)

	router := NewRouter(RouterConfig{
		Issuer:      issuerService,
		Bearer:      bearerService,
		Registry:    registryService,
		Resellers:   resellerService,
		Assignments: assignmentService,
		Audit:       storage.Audit(),
		AdminKey:    testAdminKey,
		Logger:      logger.NewNoOp(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	// Seed a reseller with sealed credentials and one client
	_, err = resellerService.Create(t.Context(), models.Reseller{
		ID:   "reseller1",
		Name: "Reseller One",
	}, &models.ProviderCredentials{
		VoiceAPIUser:     "voice-user",
		VoiceAPIPassword: "voice-pass",
		MsgAPIUser:       "msg-user",
		MsgAPIPassword:   "msg-pass",
	}, "test")
	require.NoError(t, err)

	client, err := registryService.Create(t.Context(), registry.CreateParams{
		FaxUser:    testFaxUser,
		FaxNumbers: []string{"18005551001", "18005551002"},
	}, "test")
	require.NoError(t, err)

	return &testEnv{
		url:       srv.URL,
		storage:   storage,
		registry:  registryService,
		exchanger: exchanger,
		client:    client,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.url+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (e *testEnv) initDevice(t *testing.T, deviceID string, receiver bool) (jwtToken string, body map[string]any) {
	t.Helper()

	resp, raw := e.do(t, http.MethodPost, "/init", map[string]any{
		"fax_user":   testFaxUser,
		"auth_token": e.client.AuthToken,
		"device_id":  deviceID,
		"receiver":   receiver,
	}, nil)
	require.Equalf(t, http.StatusOK, resp.StatusCode, "init failed. Body: %s", raw)

	require.NoError(t, json.Unmarshal(raw, &body))
	jwtToken, _ = body["jwt_token"].(string)
	require.NotEmpty(t, jwtToken)
	return jwtToken, body
}

func Test_Router(t *testing.T) {
	t.Parallel()

	t.Run("init", func(t *testing.T) {
		t.Run("receiver gets allowed status and numbers", func(t *testing.T) {
			env := newTestEnv(t)

			_, body := env.initDevice(t, "device-1", true)

			assert.Equal(t, env.client.ID.String(), body["domain_uuid"])
			assert.Equal(t, models.RetrieverAllowed, body["retriever_status"])
			assert.ElementsMatch(t, []any{"18005551001", "18005551002"}, body["all_fax_numbers"])
			assert.InDelta(t, (24 * time.Hour).Seconds(), body["expires_in"], 2)
		})

		t.Run("second receiver denied", func(t *testing.T) {
			env := newTestEnv(t)

			env.initDevice(t, "device-1", true)
			_, body := env.initDevice(t, "device-2", true)

			assert.Equal(t, models.RetrieverDenied, body["retriever_status"])
			numbers := body["numbers"].(map[string]any)
			status := numbers["18005551001"].(map[string]any)
			assert.Equal(t, "device-1", status["owner"], "denied response should name the owner")
		})

		t.Run("wrong auth token", func(t *testing.T) {
			env := newTestEnv(t)

			resp, raw := env.do(t, http.MethodPost, "/init", map[string]any{
				"fax_user":   testFaxUser,
				"auth_token": "WRONG",
				"device_id":  "device-1",
			}, nil)

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, string(raw), "Invalid credentials")
		})

		t.Run("unknown fax user gets the same generic 401", func(t *testing.T) {
			env := newTestEnv(t)

			resp, raw := env.do(t, http.MethodPost, "/init", map[string]any{
				"fax_user":   "nobody.nowhere.service",
				"auth_token": "WRONG",
				"device_id":  "device-1",
			}, nil)

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, string(raw), "Invalid credentials", "unknown user must be indistinguishable from wrong token")
		})

		t.Run("deactivated client", func(t *testing.T) {
			env := newTestEnv(t)
			require.NoError(t, env.registry.SetActive(t.Context(), env.client.ID, false, "test"))

			resp, _ := env.do(t, http.MethodPost, "/init", map[string]any{
				"fax_user":   testFaxUser,
				"auth_token": env.client.AuthToken,
				"device_id":  "device-1",
			}, nil)

			require.Equal(t, http.StatusForbidden, resp.StatusCode)
		})

		t.Run("missing fields rejected", func(t *testing.T) {
			env := newTestEnv(t)

			resp, raw := env.do(t, http.MethodPost, "/init", map[string]any{
				"fax_user": testFaxUser,
			}, nil)

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(raw), "validation_failed")
		})
	})

	t.Run("bearer", func(t *testing.T) {
		t.Run("exchanges and serves the provider token", func(t *testing.T) {
			env := newTestEnv(t)
			jwtToken, _ := env.initDevice(t, "device-1", true)

			resp, raw := env.do(t, http.MethodPost, "/bearer", nil, map[string]string{
				"Authorization": "Bearer " + jwtToken,
			})

			require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, "provider-bearer-token", body["bearer_token"])
			assert.NotEmpty(t, body["bearer_token_retrieved_at"])
			assert.NotEmpty(t, body["bearer_token_expires_at"])
		})

		t.Run("missing token", func(t *testing.T) {
			env := newTestEnv(t)

			resp, _ := env.do(t, http.MethodPost, "/bearer", nil, nil)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})

		t.Run("garbage token", func(t *testing.T) {
			env := newTestEnv(t)

			resp, _ := env.do(t, http.MethodPost, "/bearer", nil, map[string]string{
				"Authorization": "Bearer not-a-jwt",
			})
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})

		t.Run("expired token", func(t *testing.T) {
			env := newTestEnv(t)

			expired, err := issuer.NewTokenManager(issuer.TokenConfig{
				SecretKey:  testSecretKey,
				SessionTTL: -time.Hour,
			})
			require.NoError(t, err)
			token, err := expired.Issue(env.client.ID, "device-1", models.RetrieverAllowed)
			require.NoError(t, err)

			resp, raw := env.do(t, http.MethodPost, "/bearer", nil, map[string]string{
				"Authorization": "Bearer " + token.Value,
			})
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, string(raw), "Token expired")
		})

		t.Run("deactivation revokes issued tokens", func(t *testing.T) {
			env := newTestEnv(t)
			jwtToken, _ := env.initDevice(t, "device-1", true)

			require.NoError(t, env.registry.SetActive(t.Context(), env.client.ID, false, "test"))

			resp, raw := env.do(t, http.MethodPost, "/bearer", nil, map[string]string{
				"Authorization": "Bearer " + jwtToken,
			})
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "structurally valid token must fail after deactivation")
			assert.Contains(t, string(raw), "Invalid token", "revoked session must be indistinguishable from a bad token")
		})

		t.Run("upstream failure maps to 502", func(t *testing.T) {
			env := newTestEnv(t)
			jwtToken, _ := env.initDevice(t, "device-1", true)

			env.exchanger.err = fmt.Errorf("provider down")

			resp, _ := env.do(t, http.MethodPost, "/bearer", nil, map[string]string{
				"Authorization": "Bearer " + jwtToken,
			})
			require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		})
	})

	t.Run("assignments release", func(t *testing.T) {
		t.Run("frees numbers for the next device", func(t *testing.T) {
			env := newTestEnv(t)
			jwtToken, _ := env.initDevice(t, "device-1", true)

			resp, raw := env.do(t, http.MethodPost, "/assignments/release", map[string]any{}, map[string]string{
				"Authorization": "Bearer " + jwtToken,
			})

			require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.ElementsMatch(t, []any{"18005551001", "18005551002"}, body["released"])

			// The next device can claim right away
			_, initBody := env.initDevice(t, "device-2", true)
			assert.Equal(t, models.RetrieverAllowed, initBody["retriever_status"])
		})

		t.Run("partial release", func(t *testing.T) {
			env := newTestEnv(t)
			jwtToken, _ := env.initDevice(t, "device-1", true)

			resp, raw := env.do(t, http.MethodPost, "/assignments/release", map[string]any{
				"numbers": []string{"18005551001"},
			}, map[string]string{
				"Authorization": "Bearer " + jwtToken,
			})

			require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.ElementsMatch(t, []any{"18005551001"}, body["released"])
		})

		t.Run("requires auth", func(t *testing.T) {
			env := newTestEnv(t)

			resp, _ := env.do(t, http.MethodPost, "/assignments/release", map[string]any{}, nil)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	})

	t.Run("admin", func(t *testing.T) {
		adminHeaders := map[string]string{"X-Admin-Key": testAdminKey}

		t.Run("rejects missing or wrong key", func(t *testing.T) {
			env := newTestEnv(t)

			resp, _ := env.do(t, http.MethodGet, "/admin/clients", nil, nil)
			require.Equal(t, http.StatusForbidden, resp.StatusCode)

			resp, _ = env.do(t, http.MethodGet, "/admin/clients", nil, map[string]string{"X-Admin-Key": "wrong"})
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
		})

		t.Run("creates a client and returns the auth token once", func(t *testing.T) {
			env := newTestEnv(t)

			resp, raw := env.do(t, http.MethodPost, "/admin/clients", map[string]any{
				"fax_user":    "office.reseller1.service",
				"fax_numbers": []string{"18005552001"},
			}, adminHeaders)

			require.Equalf(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.NotEmpty(t, body["auth_token"])
		})

		t.Run("duplicate client conflicts", func(t *testing.T) {
			env := newTestEnv(t)

			resp, _ := env.do(t, http.MethodPost, "/admin/clients", map[string]any{
				"fax_user":    testFaxUser,
				"fax_numbers": []string{"18005551001"},
			}, adminHeaders)
			require.Equal(t, http.StatusConflict, resp.StatusCode)
		})

		t.Run("lists clients with devices and assignments", func(t *testing.T) {
			env := newTestEnv(t)
			env.initDevice(t, "device-1", true)

			resp, raw := env.do(t, http.MethodGet, "/admin/clients", nil, adminHeaders)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body []map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			require.Len(t, body, 1)
			assert.ElementsMatch(t, []any{"device-1"}, body[0]["known_devices"])
			assert.Len(t, body[0]["assignments"], 2)
		})

		t.Run("clears an assignment", func(t *testing.T) {
			env := newTestEnv(t)
			env.initDevice(t, "device-1", true)

			resp, raw := env.do(t, http.MethodPost, "/admin/assignments/clear", map[string]any{
				"client_id":  env.client.ID.String(),
				"fax_number": "18005551001",
			}, adminHeaders)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, true, body["cleared"])
		})

		t.Run("reissues the auth token", func(t *testing.T) {
			env := newTestEnv(t)

			resp, raw := env.do(t, http.MethodPost, "/admin/clients/"+env.client.ID.String()+"/token", nil, adminHeaders)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			fresh := body["auth_token"].(string)
			require.NotEmpty(t, fresh)
			require.NotEqual(t, env.client.AuthToken, fresh)

			// Old token must stop working
			initResp, _ := env.do(t, http.MethodPost, "/init", map[string]any{
				"fax_user":   testFaxUser,
				"auth_token": env.client.AuthToken,
				"device_id":  "device-1",
			}, nil)
			require.Equal(t, http.StatusUnauthorized, initResp.StatusCode)
		})

		t.Run("lists audit events newest first", func(t *testing.T) {
			env := newTestEnv(t)
			for _, eventType := range []string{"jwt_issued", "auth_failed"} {
				require.NoError(t, env.storage.Audit().Insert(t.Context(), models.AuditEvent{
					Stream:    models.StreamAudit,
					EventType: eventType,
					TenantID:  env.client.ID.String(),
					Actor:     "system",
				}))
			}

			resp, raw := env.do(t, http.MethodGet, "/admin/audit?tenant_id="+env.client.ID.String()+"&limit=1", nil, adminHeaders)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body []map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			require.Len(t, body, 1)
			assert.Equal(t, "auth_failed", body[0]["event_type"])
		})

		t.Run("lists resellers without secrets", func(t *testing.T) {
			env := newTestEnv(t)

			resp, raw := env.do(t, http.MethodGet, "/admin/resellers", nil, adminHeaders)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body []map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			require.Len(t, body, 1)
			assert.Equal(t, "reseller1", body[0]["id"])
			assert.Equal(t, true, body[0]["has_credentials"])
			assert.NotContains(t, string(raw), "voice-pass", "credentials must never appear in responses")
		})
	})

	t.Run("health", func(t *testing.T) {
		env := newTestEnv(t)

		resp, raw := env.do(t, http.MethodGet, "/health", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"status": "ok"}`, string(raw))
	})
}
