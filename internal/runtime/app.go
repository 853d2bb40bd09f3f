// Package runtime wires configuration, endpoints, the generator, the abort
// registry and the HTTP server into a running chat backend.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/polyglot-chat/internal/abort"
	"github.com/tjfontaine/polyglot-chat/internal/auth"
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/frontdoor/chat"
	"github.com/tjfontaine/polyglot-chat/internal/generation"
	"github.com/tjfontaine/polyglot-chat/internal/models"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/safehttp"
	"github.com/tjfontaine/polyglot-chat/internal/provider"
	"github.com/tjfontaine/polyglot-chat/internal/server"
	"github.com/tjfontaine/polyglot-chat/internal/storage"
	"github.com/tjfontaine/polyglot-chat/internal/telemetry"
	"github.com/tjfontaine/polyglot-chat/internal/tokens"
)

// App is the chat backend. Create it with New, then Run it.
type App struct {
	// Dependencies (injected via options)
	config     ports.ConfigProvider
	store      ports.AbortStore
	httpClient *http.Client
	logger     *slog.Logger

	// Built by Init
	initOnce      sync.Once
	initErr       error
	cfg           *config.Config
	endpoints     *provider.Registry
	models        *models.Store
	aborts        *abort.Registry
	generator     *generation.Generator
	authenticator *auth.Authenticator
	adminSecret   atomic.Pointer[string]
	server        *server.Server
	shutdownTrace telemetry.Shutdown
}

// New creates an App with the given options.
func New(opts ...Option) (*App, error) {
	a := &App{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	return a, nil
}

// Init loads configuration and builds every component. Run calls it; tests
// call it directly to reach Handler without listening.
func (a *App) Init(ctx context.Context) error {
	a.initOnce.Do(func() {
		a.initErr = a.init(ctx)
	})
	return a.initErr
}

func (a *App) init(ctx context.Context) error {
	cfg, err := a.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	if a.httpClient == nil {
		a.httpClient = upstreamClient(cfg.Server)
	}

	a.shutdownTrace, err = telemetry.InitTracer(cfg.Telemetry, nil, a.logger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	if a.store == nil {
		store, err := storage.Open(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.store = store
	}

	provider.RegisterBuiltins()
	a.endpoints = provider.NewRegistry(provider.Deps{
		HTTPClient: a.httpClient,
		Estimator:  tokens.NewUsageEstimator(a.logger),
		Logger:     a.logger,
	})

	table, err := models.Build(cfg, a.endpoints)
	if err != nil {
		return fmt.Errorf("build models: %w", err)
	}
	a.models = models.NewStore(table)

	abortOpts := []abort.Option{
		abort.WithTTL(cfg.Generation.AbortTTL),
		abort.WithCapacity(cfg.Generation.AbortCapacity),
		abort.WithRefreshInterval(cfg.Generation.AbortRefresh),
		abort.WithLogger(a.logger),
	}
	if a.store != nil {
		abortOpts = append(abortOpts, abort.WithStore(a.store))
	}
	a.aborts = abort.New(abortOpts...)

	a.generator = generation.New(a.aborts,
		generation.WithTaskModel(a.models),
		generation.WithStatusInterval(cfg.Generation.StatusInterval),
		generation.WithLogger(a.logger))

	a.authenticator = auth.NewAuthenticator(cfg.Auth.APIKeys)
	secret := cfg.Auth.AdminSecret
	a.adminSecret.Store(&secret)

	a.server = server.New(cfg.Server.Port, cfg.Server.RequestTimeout, a.logger)
	a.mountRoutes()

	a.logger.Info("chat backend initialized",
		slog.Int("models", len(cfg.Models)),
		slog.Int("endpoints", len(cfg.Endpoints)),
		slog.Bool("persistent_aborts", a.store != nil))

	return nil
}

// upstreamClient builds the traced client endpoints use.
func upstreamClient(cfg config.ServerConfig) *http.Client {
	var base http.RoundTripper = http.DefaultTransport
	if cfg.BlockPrivateEgress {
		base = safehttp.SafeTransport
	}
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

func (a *App) mountRoutes() {
	h := chat.NewHandler(a.models, a.generator, a.aborts, a.logger)

	public := a.server.Authenticated(a.authenticator)
	for _, route := range chat.Routes(h) {
		public.MethodFunc(route.Method, route.Path, route.Handler)
	}

	a.server.Router.Route("/admin", func(r chi.Router) {
		r.Use(server.AdminMiddleware(a.currentAdminSecret))
		for _, route := range chat.AdminRoutes(h) {
			r.MethodFunc(route.Method, route.Path, route.Handler)
		}
	})
}

func (a *App) currentAdminSecret() string {
	if s := a.adminSecret.Load(); s != nil {
		return *s
	}
	return ""
}

// Handler returns the HTTP handler. Init must have succeeded.
func (a *App) Handler() http.Handler {
	return a.server.Router
}

// Run serves until ctx is done. The HTTP server, the abort refresher and the
// config watcher share one lifetime: the first to fail stops the others.
func (a *App) Run(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		return a.aborts.Run(gctx)
	})
	g.Go(func() error {
		return a.watchConfig(gctx)
	})

	a.logger.Info("chat backend started", slog.Int("port", a.cfg.Server.Port))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchConfig applies config changes until ctx is done.
func (a *App) watchConfig(ctx context.Context) error {
	err := a.config.Watch(ctx, func(cfg *config.Config) {
		if err := a.Reload(cfg); err != nil {
			a.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		// Hot reload is optional; keep serving on the loaded config.
		a.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
	}
	<-ctx.Done()
	return nil
}

// Reload applies a new configuration: models, API keys and the admin secret.
// Server, storage and abort settings take effect on restart.
func (a *App) Reload(cfg *config.Config) error {
	if err := a.models.Reload(cfg, a.endpoints); err != nil {
		return err
	}
	a.authenticator.Reload(cfg.Auth.APIKeys)
	secret := cfg.Auth.AdminSecret
	a.adminSecret.Store(&secret)

	a.logger.Info("reload complete", slog.Int("models", len(cfg.Models)))
	return nil
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTrace(ctx); err != nil {
		a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}
	if err := a.config.Close(); err != nil {
		a.logger.Error("failed to close config", slog.String("error", err.Error()))
	}
	a.logger.Info("chat backend shutdown complete")
}
