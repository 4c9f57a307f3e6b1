package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/osonish/smsverify/internal/phone"
)

const twilioDefaultBaseURL = "https://api.twilio.com"

// TwilioClient sends SMS via the Twilio REST API. Each call carries account
// credentials directly (basic auth), so there is no session to refresh.
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     http.Client
}

// NewTwilioClient creates a TwilioClient. If baseURL is empty, the Twilio
// production API is used (tests pass an httptest server URL).
func NewTwilioClient(accountSID, authToken, fromNumber, baseURL string) *TwilioClient {
	if baseURL == "" {
		baseURL = twilioDefaultBaseURL
	}
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    baseURL,
		client:     http.Client{Timeout: requestTimeout},
	}
}

func (c *TwilioClient) Name() string { return "twilio" }

func (c *TwilioClient) Send(ctx context.Context, to phone.Number, message string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	form := url.Values{}
	form.Set("To", to.E164())
	form.Set("From", c.fromNumber)
	form.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("twilio: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("twilio: rejected credentials: %w", ErrAuthFailed)
	}
	if resp.StatusCode >= 300 {
		var errResp struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return "", fmt.Errorf("twilio: error %d: %s", errResp.Code, errResp.Message)
		}
		return "", fmt.Errorf("twilio: error %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("twilio: parse response: %w", err)
	}
	return parsed.SID, nil
}

// HealthCheck fetches the account resource, which exercises both
// reachability and the credentials.
func (c *TwilioClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", c.baseURL, c.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: health request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("twilio: rejected credentials: %w", ErrAuthFailed)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("twilio: health: error %d", resp.StatusCode)
	}
	return nil
}
