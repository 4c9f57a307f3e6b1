// Package verify orchestrates the verification-code lifecycle: normalize,
// rate-limit, generate, dispatch through a gateway with failover, and later
// validate the submitted code.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osonish/smsverify/internal/classify"
	"github.com/osonish/smsverify/internal/gateway"
	"github.com/osonish/smsverify/internal/otp"
	"github.com/osonish/smsverify/internal/phone"
	"github.com/osonish/smsverify/internal/store"
)

// UserUpserter is the external collaborator invoked after a confirmed code.
// The actual user/profile storage is outside this core.
type UserUpserter interface {
	Upsert(ctx context.Context, p phone.Number) error
}

// NopUpserter logs confirmations without persisting anything.
type NopUpserter struct {
	Logger *slog.Logger
}

func (u NopUpserter) Upsert(_ context.Context, p phone.Number) error {
	if u.Logger != nil {
		u.Logger.Info("phone confirmed", "phone", string(p))
	}
	return nil
}

// Config holds verification behavior settings.
type Config struct {
	CodeLength     int           // default 6
	SenderText     string        // appended to the code in the SMS body
	FixturePhone   phone.Number  // exact-match bypass for store review accounts; "" disables
	FixtureCode    string        // code stored for the fixture phone
	GatewayTimeout time.Duration // per-gateway send timeout, default 10s
}

const defaultGatewayTimeout = 10 * time.Second

// Service is the verification core. Gateways are tried in order: the first
// is primary, the second is the failover target.
type Service struct {
	store    *store.Store
	norm     *phone.Normalizer
	gateways []gateway.Client
	upserter UserUpserter
	logger   *slog.Logger
	cfg      Config
}

// New creates a Service. All collaborators are injected; the service owns
// none of the gateway session state.
func New(st *store.Store, norm *phone.Normalizer, gateways []gateway.Client, upserter UserUpserter, logger *slog.Logger, cfg Config) *Service {
	if cfg.CodeLength == 0 {
		cfg.CodeLength = otp.DefaultLength
	}
	if cfg.GatewayTimeout == 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		norm:     norm,
		gateways: gateways,
		upserter: upserter,
		logger:   logger,
		cfg:      cfg,
	}
}

// RequestCode generates and dispatches a verification code for the phone.
// A nil return means an SMS is on its way (or the fixture code is active).
func (s *Service) RequestCode(ctx context.Context, rawPhone string) *classify.Error {
	p, err := s.normalize(rawPhone)
	if err != nil {
		return classify.Wrap(classify.InvalidPhone, err)
	}

	// Cooldown gate comes before anything that could cost a gateway call.
	if err := s.store.CheckCooldown(p); err != nil {
		return classify.Wrap(classify.AlreadyPending, err)
	}

	// Store review accounts: exactly one configured number, never a pattern.
	if s.cfg.FixturePhone != "" && p == s.cfg.FixturePhone {
		s.logger.Info("fixture phone requested, gateway bypassed", "phone", string(p))
		if err := s.store.Put(p, s.cfg.FixtureCode); err != nil {
			return classify.Wrap(classify.AlreadyPending, err)
		}
		return nil
	}

	code, err := otp.Generate(s.cfg.CodeLength)
	if err != nil {
		return classify.Wrap(classify.UnknownError, err)
	}
	message := fmt.Sprintf("%s - %s", code, s.cfg.SenderText)

	if cerr := s.send(ctx, p, message); cerr != nil {
		return cerr
	}

	// The SMS is already in flight; refusing now would tell the user the
	// code failed while a real code arrives. Log and report success.
	if err := s.store.Put(p, code); err != nil {
		s.logger.Error("storing code after confirmed send", "phone", string(p), "error", err)
	}
	return nil
}

// send dispatches through the primary gateway with exactly one failover to
// the secondary on a retryable failure. Non-retryable failures (e.g. invalid
// destination) short-circuit: a second provider would reject them too.
func (s *Service) send(ctx context.Context, p phone.Number, message string) *classify.Error {
	var last *classify.Error
	for i, gw := range s.gateways {
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		id, err := gw.Send(sendCtx, p, message)
		cancel()
		if err == nil {
			s.logger.Info("verification code sent", "gateway", gw.Name(), "phone", string(p), "message_id", id)
			return nil
		}

		last = classify.Classify(err)
		s.logger.Error("gateway send failed",
			"gateway", gw.Name(), "phone", string(p),
			"code", string(last.Code), "retryable", last.Retryable,
			"operator_action", last.OperatorAction, "error", err)

		if !last.Retryable {
			return last
		}
		if i+1 < len(s.gateways) {
			s.logger.Warn("failing over to secondary gateway",
				"from", gw.Name(), "to", s.gateways[i+1].Name())
		}
	}

	if last == nil {
		return classify.New(classify.ServiceUnavailable)
	}
	// All gateways exhausted on retryable failures.
	return classify.Wrap(classify.ServiceUnavailable, last)
}

// ConfirmCode validates a submitted code and, on success, invokes the user
// upsert collaborator before reporting success.
func (s *Service) ConfirmCode(ctx context.Context, rawPhone, submitted string) *classify.Error {
	p, err := s.normalize(rawPhone)
	if err != nil {
		return classify.Wrap(classify.InvalidPhone, err)
	}

	outcome, remaining := s.store.Validate(p, submitted)
	switch outcome {
	case store.OutcomeConfirmed:
		if err := s.upserter.Upsert(ctx, p); err != nil {
			s.logger.Error("user upsert after confirmation", "phone", string(p), "error", err)
			return classify.Classify(err)
		}
		return nil
	case store.OutcomeMismatch:
		return classify.NewCodeInvalid(remaining)
	case store.OutcomeExpired:
		return classify.New(classify.CodeExpired)
	case store.OutcomeAttemptsExceeded:
		return classify.New(classify.TooManyAttempts)
	case store.OutcomeNotFound:
		// No live code and nothing to resume; the user action is the same
		// as for an expired code: request a new one.
		return classify.New(classify.CodeExpired)
	default:
		return classify.New(classify.UnknownError)
	}
}

// HealthChecks probes every gateway and reports per-gateway status.
func (s *Service) HealthChecks(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.gateways))
	for _, gw := range s.gateways {
		checkCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		results[gw.Name()] = gw.HealthCheck(checkCtx)
		cancel()
	}
	return results
}

// normalize canonicalizes the raw input, logging unrecognized shapes but
// letting them through; the gateway is the final judge.
func (s *Service) normalize(raw string) (phone.Number, error) {
	p, err := s.norm.Normalize(raw)
	if err != nil {
		if errors.Is(err, phone.ErrUnrecognizedShape) {
			s.logger.Warn("unrecognized phone shape", "phone", string(p), "error", err)
			return p, nil
		}
		return "", err
	}
	return p, nil
}
