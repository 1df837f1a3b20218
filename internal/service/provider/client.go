// Package provider holds the HTTP client for the upstream fax provider's
// OAuth-style token endpoint. The broker is the only place these calls ever
// originate; clients never talk to the provider directly.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
)

const (
	CodeRetryAfter = "retry-after"
	CodeRejected   = "rejected"
	CodeUnknown    = "unknown"

	grantType = "password"

	// Bounded timeout: the exchange must fail fast rather than hold the
	// per-tenant refresh slot
	exchangeTimeout = 10 * time.Second

	// Upstream tokens default to 6 hours when the response omits expires_in
	defaultExpiresIn = 21600
)

type ProviderError struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %d, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(code string, retryAfter int, err error) *ProviderError {
	return &ProviderError{
		Code:       code,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        err,
	}
}

type Client struct {
	TokenURL string

	client *http.Client
	logger logger.Logger
}

func NewClient(tokenURL string, l logger.Logger) *Client {
	if l == nil {
		l = logger.NewNoOp()
	}
	return &Client{
		TokenURL: tokenURL,
		client:   &http.Client{},
		logger:   l,
	}
}

// ExchangeToken trades reseller credentials for a provider bearer token.
// The messaging pair acts as the OAuth client, the voice pair as the
// resource owner.
func (c *Client) ExchangeToken(ctx context.Context, creds models.ProviderCredentials) (models.BearerToken, error) {
	var token models.BearerToken

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	form := url.Values{
		"grant_type":    {grantType},
		"client_id":     {creds.MsgAPIUser},
		"client_secret": {creds.MsgAPIPassword},
		"username":      {creds.VoiceAPIUser},
		"password":      {creds.VoiceAPIPassword},
		"scope":         {"*"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return token, NewProviderError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return token, NewProviderError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		return c.processSuccess(resp)
	case http.StatusTooManyRequests:
		return token, c.processTooManyRequests(resp)
	default:
		c.logger.Warn("Provider token exchange rejected", "status_code", resp.StatusCode)
		return token, NewProviderError(CodeRejected, 0, fmt.Errorf("provider returned status %d", resp.StatusCode))
	}
}

func (c *Client) processSuccess(resp *http.Response) (models.BearerToken, error) {
	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Warn("Failed to decode provider response", "error", err)
		return models.BearerToken{}, NewProviderError(CodeUnknown, 0, fmt.Errorf("failed to decode response: %w", err))
	}
	if body.AccessToken == "" {
		return models.BearerToken{}, NewProviderError(CodeUnknown, 0, fmt.Errorf("provider response missing access_token"))
	}

	if body.ExpiresIn <= 0 {
		body.ExpiresIn = defaultExpiresIn
	}

	now := time.Now().UTC()
	c.logger.Debug("Provider token exchanged", "expires_in", body.ExpiresIn)

	return models.BearerToken{
		Value:       body.AccessToken,
		RetrievedAt: now,
		ExpiresAt:   now.Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) processTooManyRequests(resp *http.Response) error {
	header := resp.Header.Get("Retry-After")
	retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		retryAfter = 60 // default when the header is absent or malformed
	}

	c.logger.Warn("Provider throttled token exchange", "retry_after", retryAfter)
	return NewProviderError(CodeRetryAfter, retryAfter, fmt.Errorf("retry after %d seconds", retryAfter))
}
