package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/osonish/smsverify/internal/phone"
)

const eskizDefaultBaseURL = "https://notify.eskiz.uz/api"

const (
	// Eskiz tokens are valid for 30 days; treat them as expired after 29.
	eskizTokenLifetime = 29 * 24 * time.Hour
	// Re-authenticate when less than this much lifetime remains, so a send
	// never goes out with a token about to expire mid-flight.
	eskizRefreshBuffer = 5 * time.Minute
)

// eskizSession is the bearer token state. Owned exclusively by the client;
// replaced atomically under the mutex.
type eskizSession struct {
	token      string
	obtainedAt time.Time
	expiresAt  time.Time
}

func (s *eskizSession) valid(now time.Time) bool {
	return s != nil && s.expiresAt.Sub(now) > eskizRefreshBuffer
}

// EskizClient sends SMS via the Eskiz.uz API. Authentication is a login call
// exchanging email/password for a long-lived bearer token that the client
// refreshes transparently.
type EskizClient struct {
	email    string
	password string
	from     string
	baseURL  string
	client   http.Client

	mu      sync.RWMutex
	session *eskizSession

	// Concurrent sends that discover a stale session share one login call.
	login singleflight.Group
}

// NewEskizClient creates an EskizClient. If baseURL is empty, the Eskiz
// production API is used (tests pass an httptest server URL).
func NewEskizClient(email, password, from, baseURL string) *EskizClient {
	if baseURL == "" {
		baseURL = eskizDefaultBaseURL
	}
	return &EskizClient{
		email:    email,
		password: password,
		from:     from,
		baseURL:  baseURL,
		client:   http.Client{Timeout: requestTimeout},
	}
}

func (c *EskizClient) Name() string { return "eskiz" }

// authenticate performs the login call and installs a fresh session.
func (c *EskizClient) authenticate(ctx context.Context) error {
	payload, err := json.Marshal(struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{c.email, c.password})
	if err != nil {
		return fmt.Errorf("eskiz: marshal login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("eskiz: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("eskiz: login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("eskiz: read login response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("eskiz: login: error %d: %s", resp.StatusCode, body)
	}
	if resp.StatusCode >= 300 {
		// 4xx on login means our credentials were rejected.
		return fmt.Errorf("eskiz: login rejected (%d): %w", resp.StatusCode, ErrAuthFailed)
	}

	var parsed struct {
		Message string `json:"message"`
		Data    struct {
			Token string `json:"token"`
		} `json:"data"`
		TokenType string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("eskiz: parse login response: %w", err)
	}
	if parsed.Data.Token == "" {
		return fmt.Errorf("eskiz: login response missing token: %w", ErrAuthFailed)
	}

	now := time.Now()
	c.mu.Lock()
	c.session = &eskizSession{
		token:      parsed.Data.Token,
		obtainedAt: now,
		expiresAt:  now.Add(eskizTokenLifetime),
	}
	c.mu.Unlock()
	return nil
}

// ensureSession returns a token with enough remaining lifetime,
// re-authenticating if needed. Concurrent callers that all find the session
// stale are collapsed into a single login call.
func (c *EskizClient) ensureSession(ctx context.Context) (string, error) {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s.valid(time.Now()) {
		return s.token, nil
	}

	_, err, _ := c.login.Do("login", func() (any, error) {
		// Re-check under the group: a concurrent call may have refreshed.
		c.mu.RLock()
		s := c.session
		c.mu.RUnlock()
		if s.valid(time.Now()) {
			return nil, nil
		}
		return nil, c.authenticate(ctx)
	})
	if err != nil {
		return "", err
	}

	c.mu.RLock()
	s = c.session
	c.mu.RUnlock()
	if s == nil {
		return "", fmt.Errorf("eskiz: session missing after login")
	}
	return s.token, nil
}

// invalidateSession drops the current session so the next call re-authenticates.
func (c *EskizClient) invalidateSession(token string) {
	c.mu.Lock()
	if c.session != nil && c.session.token == token {
		c.session = nil
	}
	c.mu.Unlock()
}

// Send delivers one message. A 401 response triggers exactly one forced
// re-authentication and retry, never a loop.
func (c *EskizClient) Send(ctx context.Context, to phone.Number, message string) (string, error) {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return "", err
	}

	id, status, err := c.send(ctx, token, to, message)
	if status == http.StatusUnauthorized {
		c.invalidateSession(token)
		token, err = c.ensureSession(ctx)
		if err != nil {
			return "", err
		}
		id, status, err = c.send(ctx, token, to, message)
		if status == http.StatusUnauthorized {
			return "", fmt.Errorf("eskiz: send unauthorized after re-login: %w", ErrAuthFailed)
		}
	}
	return id, err
}

// send performs a single send call. The HTTP status is returned so Send can
// distinguish the 401 retry case from other failures.
func (c *EskizClient) send(ctx context.Context, token string, to phone.Number, message string) (string, int, error) {
	payload, err := json.Marshal(struct {
		MobilePhone string `json:"mobile_phone"`
		Message     string `json:"message"`
		From        string `json:"from,omitempty"`
	}{string(to), message, c.from})
	if err != nil {
		return "", 0, fmt.Errorf("eskiz: marshal send: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message/sms/send", bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("eskiz: build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("eskiz: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("eskiz: read send response: %w", err)
	}

	var parsed struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	if resp.StatusCode >= 300 {
		if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
			return "", resp.StatusCode, fmt.Errorf("eskiz: error %d: %s", resp.StatusCode, parsed.Message)
		}
		return "", resp.StatusCode, fmt.Errorf("eskiz: error %d: %s", resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", resp.StatusCode, fmt.Errorf("eskiz: parse send response: %w", err)
	}
	if parsed.ID == "" {
		return "", resp.StatusCode, fmt.Errorf("eskiz: send failed: %s", parsed.Message)
	}
	return parsed.ID, resp.StatusCode, nil
}

// Balance returns the remaining SMS credit on the account.
func (c *EskizClient) Balance(ctx context.Context) (float64, error) {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user/get-limit", nil)
	if err != nil {
		return 0, fmt.Errorf("eskiz: build balance request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("eskiz: balance request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("eskiz: read balance response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("eskiz: balance: error %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Balance float64 `json:"balance"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("eskiz: parse balance response: %w", err)
	}
	return parsed.Balance, nil
}

// HealthCheck authenticates and queries the balance endpoint.
func (c *EskizClient) HealthCheck(ctx context.Context) error {
	_, err := c.Balance(ctx)
	return err
}
