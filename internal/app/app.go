// Package app wires all Voicebridge subsystems into a running HTTP server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts the HTTP listener and blocks until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSessionStore, WithScheduler, etc.). When an option is not provided,
// New creates the real in-memory implementation from config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/searshs/voicebridge/internal/bridge"
	"github.com/searshs/voicebridge/internal/collaborators"
	"github.com/searshs/voicebridge/internal/collaborators/memory"
	"github.com/searshs/voicebridge/internal/config"
	"github.com/searshs/voicebridge/internal/dispatcher"
	"github.com/searshs/voicebridge/internal/health"
	"github.com/searshs/voicebridge/internal/observe"
	"github.com/searshs/voicebridge/internal/session"
	"github.com/searshs/voicebridge/internal/signaling"
)

// App owns all subsystem lifetimes and serves the Voicebridge carrier
// signaling surface.
type App struct {
	cfg *config.Config

	sessions    session.Store
	scheduler   collaborators.Scheduler
	customers   collaborators.CustomerDirectory
	imageIntake collaborators.ImageIntake
	dispatch    *dispatcher.Dispatcher
	signal      *signaling.Handler

	srv    *http.Server
	otel   *observe.Providers
	logger *slog.Logger

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a session store instead of creating a MemStore.
func WithSessionStore(s session.Store) Option {
	return func(a *App) { a.sessions = s }
}

// WithScheduler injects a scheduling collaborator instead of creating the
// in-memory one.
func WithScheduler(s collaborators.Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

// WithCustomerDirectory injects a customer-directory collaborator instead of
// creating the in-memory one.
func WithCustomerDirectory(c collaborators.CustomerDirectory) Option {
	return func(a *App) { a.customers = c }
}

// WithImageIntake injects an image-intake collaborator instead of creating
// the in-memory one.
func WithImageIntake(i collaborators.ImageIntake) Option {
	return func(a *App) { a.imageIntake = i }
}

// WithLogger injects a logger instead of slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New wires all subsystems together from cfg. Use Option functions to inject
// test doubles for any collaborator or the session store.
//
// New performs all initialisation synchronously: OpenTelemetry providers,
// collaborator construction, the Tool Dispatcher, and the Carrier Signaling
// Handler's HTTP routes.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	// ── 1. Observability ──────────────────────────────────────────────────
	otelProviders, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voicebridge"})
	if err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}
	a.otel = otelProviders
	a.closers = append(a.closers, func() error { return a.otel.Shutdown(context.Background()) })

	// ── 2. Session store ──────────────────────────────────────────────────
	if a.sessions == nil {
		a.sessions = session.NewMemStore()
	}

	// ── 3. Collaborators ──────────────────────────────────────────────────
	if a.scheduler == nil {
		a.scheduler = memory.NewScheduler()
	}
	if a.customers == nil {
		a.customers = memory.NewCustomerDirectory()
	}
	if a.imageIntake == nil {
		a.imageIntake = memory.NewImageIntake(cfg.Upload.BaseURL, cfg.Upload.TTL)
	}

	// ── 4. Tool Dispatcher ────────────────────────────────────────────────
	a.dispatch = dispatcher.New(a.scheduler, a.customers, a.imageIntake, a.logger)

	// ── 5. Carrier Signaling Handler ──────────────────────────────────────
	bridgeCfg := bridge.Config{
		APIKey:           cfg.Model.APIKey,
		Model:            cfg.Model.Model,
		BaseURL:          cfg.Model.BaseURL,
		FallbackBaseURLs: cfg.Model.FallbackBaseURLs,
		Voice:            cfg.Model.Voice,
		Instructions:     cfg.Model.Instructions,
		Greeting:         cfg.Model.Greeting,
	}
	a.signal = signaling.New(a.sessions, a.customers, a.dispatch, bridgeCfg, a.logger)

	// ── 6. HTTP server ────────────────────────────────────────────────────
	mux := http.NewServeMux()
	a.signal.Register(mux)
	health.New(
		health.Checker{Name: "session_store", Check: a.checkSessionStore},
		health.Checker{Name: "model_endpoint", Check: a.checkModelEndpoint},
	).Register(mux)
	mux.Handle("GET /metrics", a.otel.MetricsHandler)

	handler := observe.Middleware(observe.DefaultMetrics())(mux)
	a.srv = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: handler,
	}

	return a, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the HTTP listener and blocks until ctx is cancelled or the
// server stops on its own. It returns nil when ctx is cancelled or the server
// stopped because of [http.ErrServerClosed], and the listener's error
// otherwise.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("app listening", "addr", a.srv.Addr)
		errCh <- a.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down the HTTP server, then runs the subsystem closers in
// the order they were registered. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		if a.srv != nil {
			if err := a.srv.Shutdown(ctx); err != nil {
				a.logger.Warn("http server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// SessionStore returns the session store backing this App. Exposed for the
// debug/inspection endpoints and for tests.
func (a *App) SessionStore() session.Store { return a.sessions }

// checkSessionStore is the /readyz checker for the Session Store: it
// verifies the store was constructed and answers a lookup without panicking.
func (a *App) checkSessionStore(_ context.Context) error {
	if a.sessions == nil {
		return fmt.Errorf("session store not initialised")
	}
	a.sessions.Get("voicebridge-readyz-probe")
	return nil
}

// checkModelEndpoint is the /readyz checker for the model-realtime
// collaborator: it cannot afford to dial the WebSocket on every probe, so it
// checks that the credentials required to dial it are present instead.
func (a *App) checkModelEndpoint(_ context.Context) error {
	if a.cfg.Model.APIKey == "" {
		return fmt.Errorf("model.api_key is not configured")
	}
	return nil
}

// ShutdownTimeout returns the configured shutdown timeout, falling back to
// 15s when unset — mirrors cmd/voicebridge's graceful-shutdown deadline.
func ShutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
