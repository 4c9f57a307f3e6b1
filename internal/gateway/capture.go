package gateway

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/osonish/smsverify/internal/phone"
)

// CaptureClient records sends for use in tests.
type CaptureClient struct {
	mu    sync.Mutex
	Calls []CaptureCall
}

// CaptureCall records a single Send invocation.
type CaptureCall struct {
	To      phone.Number
	Message string
}

func (c *CaptureClient) Name() string { return "capture" }

func (c *CaptureClient) Send(_ context.Context, to phone.Number, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, CaptureCall{To: to, Message: message})
	return fmt.Sprintf("capture-%d", len(c.Calls)), nil
}

func (c *CaptureClient) HealthCheck(context.Context) error { return nil }

var captureCodeRe = regexp.MustCompile(`\b(\d{4,8})\b`)

// LastCode extracts a 4-8 digit code from the last captured message body.
func (c *CaptureClient) LastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Calls) == 0 {
		return ""
	}
	matches := captureCodeRe.FindStringSubmatch(c.Calls[len(c.Calls)-1].Message)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// Len returns the number of recorded sends.
func (c *CaptureClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls.
func (c *CaptureClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
}
