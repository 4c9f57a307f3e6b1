package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/osonish/smsverify/internal/classify"
	"github.com/osonish/smsverify/internal/config"
	"github.com/osonish/smsverify/internal/httputil"
	"github.com/osonish/smsverify/internal/verify"
)

// Server is the HTTP front end for the verification service.
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	http      *http.Server
	logger    *slog.Logger
	svc       *verify.Service
	rl        *RateLimiter // nil when rate limiting disabled
	locale    classify.Locale
	startTime time.Time
}

// New creates a new Server with middleware and routes configured.
func New(cfg *config.Config, logger *slog.Logger, svc *verify.Service) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:       cfg,
		router:    r,
		logger:    logger,
		svc:       svc,
		locale:    classify.ParseLocale(cfg.SMS.Locale),
		startTime: time.Now(),
	}

	r.Get("/health", s.handleHealth)

	r.Route("/v1/code", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		// Only code requests are rate limited: each one costs an SMS.
		// Confirmations are bounded by the per-code attempt counter.
		r.Group(func(r chi.Router) {
			if cfg.Server.RateLimit > 0 {
				s.rl = NewRateLimiter(cfg.Server.RateLimit, time.Minute)
				r.Use(s.rl.Middleware)
			}
			r.Post("/request", s.handleRequestCode)
		})
		r.Post("/confirm", s.handleConfirmCode)
	})

	return s
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: s.router,
	}

	s.logger.Info("server starting", "address", s.cfg.Address())
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartWithReady begins listening. It closes the ready channel once the
// listener is bound, then blocks serving requests.
func (s *Server) StartWithReady(ready chan<- struct{}) error {
	s.http = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: s.router,
	}

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.logger.Info("server starting", "address", s.cfg.Address())
	close(ready)

	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	if s.rl != nil {
		s.rl.Stop()
	}
	return s.http.Shutdown(shutdownCtx)
}

// handleHealth probes every configured gateway and reports per-gateway status.
// Returns 200 when all gateways answer, 503 when any is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := s.svc.HealthChecks(r.Context())

	gateways := make(map[string]string, len(checks))
	healthy := true
	for name, err := range checks {
		if err != nil {
			gateways[name] = err.Error()
			healthy = false
		} else {
			gateways[name] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status":         overall,
		"gateways":       gateways,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}
