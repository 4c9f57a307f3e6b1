package gateway

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/osonish/smsverify/internal/phone"
)

// LogClient logs messages instead of delivering them. It is the client
// selected when dev-log-only mode is configured, so development machines
// never dispatch real SMS.
type LogClient struct {
	logger *slog.Logger
}

// NewLogClient creates a LogClient. If logger is nil, slog.Default() is used.
func NewLogClient(logger *slog.Logger) *LogClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogClient{logger: logger}
}

func (c *LogClient) Name() string { return "log" }

func (c *LogClient) Send(_ context.Context, to phone.Number, message string) (string, error) {
	id := uuid.NewString()
	c.logger.Info("sms.LogClient", "to", string(to), "message", message, "message_id", id)
	return id, nil
}

func (c *LogClient) HealthCheck(context.Context) error { return nil }
