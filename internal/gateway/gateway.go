// Package gateway abstracts external SMS delivery services behind a single
// client interface. Raw provider payloads never escape a client: callers see
// only a message ID or an error.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/osonish/smsverify/internal/phone"
)

// ErrAuthFailed marks a gateway rejecting our credentials. It is an
// operator-actionable condition, distinct from transient delivery failures.
var ErrAuthFailed = errors.New("gateway authentication failed")

// requestTimeout bounds every HTTP call a client makes.
const requestTimeout = 10 * time.Second

// Client sends SMS messages through one specific gateway.
type Client interface {
	// Send delivers a message and returns the provider-assigned message ID.
	Send(ctx context.Context, to phone.Number, message string) (messageID string, err error)

	// HealthCheck verifies the gateway is reachable and accepts our
	// credentials.
	HealthCheck(ctx context.Context) error

	// Name identifies the gateway in logs and health reports.
	Name() string
}
