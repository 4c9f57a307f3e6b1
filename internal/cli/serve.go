package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osonish/smsverify/internal/config"
	"github.com/osonish/smsverify/internal/gateway"
	"github.com/osonish/smsverify/internal/phone"
	"github.com/osonish/smsverify/internal/server"
	"github.com/osonish/smsverify/internal/store"
	"github.com/osonish/smsverify/internal/verify"
)

// sweepInterval is how often expired code records are purged.
const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the smsverify server",
	Long: `Start the smsverify HTTP server.

With the default configuration, codes are printed to the console instead
of being sent ("log" gateway). Configure sms.gateways for real delivery:
  smsverify serve --gateways eskiz,twilio`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "Server port (default 8091)")
	serveCmd.Flags().String("host", "", "Server host (default 0.0.0.0)")
	serveCmd.Flags().String("config", "", "Path to smsverify.toml config file")
	serveCmd.Flags().String("gateways", "", "Comma-separated gateway order (eskiz, twilio, log)")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := make(map[string]string)
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		flags["port"] = fmt.Sprintf("%d", v)
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		flags["host"] = v
	}
	if v, _ := cmd.Flags().GetString("gateways"); v != "" {
		flags["gateways"] = v
	}
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	gateways, err := buildGateways(cfg, logger)
	if err != nil {
		return err
	}

	st := store.New(cfg.SMS.TTL(), cfg.SMS.CooldownDuration(), cfg.SMS.MaxAttempts)
	st.StartSweep(sweepInterval)
	defer st.Stop()

	svc := verify.New(st,
		phone.NewNormalizer(cfg.SMS.CountryCode),
		gateways,
		verify.NopUpserter{Logger: logger},
		logger,
		verify.Config{
			CodeLength:     cfg.SMS.CodeLength,
			SenderText:     cfg.SMS.SenderText,
			FixturePhone:   phone.Number(cfg.SMS.FixturePhone),
			FixtureCode:    cfg.SMS.FixtureCode,
			GatewayTimeout: cfg.SMS.SendTimeout(),
		})

	srv := server.New(cfg, logger, svc)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("signal received", "signal", sig.String())
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// buildGateways instantiates the configured delivery clients in failover order.
func buildGateways(cfg *config.Config, logger *slog.Logger) ([]gateway.Client, error) {
	gateways := make([]gateway.Client, 0, len(cfg.SMS.Gateways))
	for _, name := range cfg.SMS.Gateways {
		switch name {
		case "eskiz":
			gateways = append(gateways, gateway.NewEskizClient(
				cfg.SMS.Eskiz.Email, cfg.SMS.Eskiz.Password,
				cfg.SMS.Eskiz.From, cfg.SMS.Eskiz.BaseURL))
		case "twilio":
			gateways = append(gateways, gateway.NewTwilioClient(
				cfg.SMS.Twilio.AccountSID, cfg.SMS.Twilio.AuthToken,
				cfg.SMS.Twilio.FromNumber, cfg.SMS.Twilio.BaseURL))
		case "log":
			logger.Warn("log gateway enabled: codes are printed, not sent")
			gateways = append(gateways, gateway.NewLogClient(logger))
		default:
			return nil, fmt.Errorf("unknown gateway %q", name)
		}
	}
	return gateways, nil
}

// newLogger builds the process logger from the logging config.
func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseSlogLevel(level)}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
