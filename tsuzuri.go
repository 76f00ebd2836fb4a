// Package tsuzuri is the public API for embedding the Tsuzuri notes server.
//
//	app, err := tsuzuri.New(ctx,
//	    tsuzuri.WithVersion(version),
//	    tsuzuri.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, never the other way round. Public
// types (Classifier, Label) have no internal imports; the adapters that
// convert them live in this file.
package tsuzuri

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/tsuzuri/api"
	"github.com/ashita-ai/tsuzuri/internal/auth"
	"github.com/ashita-ai/tsuzuri/internal/config"
	"github.com/ashita-ai/tsuzuri/internal/mcp"
	"github.com/ashita-ai/tsuzuri/internal/moderation"
	"github.com/ashita-ai/tsuzuri/internal/ratelimit"
	"github.com/ashita-ai/tsuzuri/internal/server"
	"github.com/ashita-ai/tsuzuri/internal/service/notes"
	"github.com/ashita-ai/tsuzuri/internal/storage"
	"github.com/ashita-ai/tsuzuri/internal/telemetry"
)

// shutdownTimeout bounds the HTTP drain on shutdown.
const shutdownTimeout = 15 * time.Second

// App is the Tsuzuri server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	store        storage.Store
	registry     *notes.Registry
	limiter      ratelimit.Limiter
	mcp          *mcp.Server
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New opens the store, runs migrations, wires all subsystems, and returns a
// ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections: call Run().
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOptions(&cfg, o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tsuzuri starting", "version", version, "port", cfg.Port, "store", cfg.Store)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := storage.Open(ctx, storage.Options{
		Kind:        cfg.Store,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		NotifyURL:   cfg.NotifyURL,
	}, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	storage.RegisterMetrics(store)

	var classifier moderation.Classifier
	if o.classifier != nil {
		classifier = classifierAdapter{c: o.classifier}
	} else {
		classifier, err = moderation.NewClassifier(cfg.ModerationProvider, cfg.ModerationURL, cfg.ModerationToken)
		if err != nil {
			store.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, err
		}
	}
	if cfg.ModerationBreakerFailures > 0 && classifier.Name() != moderation.ProviderNoop {
		classifier = moderation.NewBreaker(classifier,
			uint32(cfg.ModerationBreakerFailures), //nolint:gosec // validated non-negative in config.Validate
			cfg.ModerationBreakerCooldown, logger)
		logger.Info("moderation: circuit breaker enabled",
			"failures", cfg.ModerationBreakerFailures, "cooldown", cfg.ModerationBreakerCooldown)
	}
	gate := moderation.NewGate(classifier, cfg.ModerationTimeout, logger)
	if gate.Provider() == moderation.ProviderNoop {
		logger.Warn("moderation: disabled, every write is accepted", "provider", gate.Provider())
	} else {
		logger.Info("moderation: enabled", "provider", gate.Provider(), "timeout", cfg.ModerationTimeout)
	}

	registry := notes.NewRegistry(store, gate, cfg.SessionIdleTimeout, logger)

	var jwtMgr *auth.JWTManager
	if cfg.AuthEnabled() {
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
		if err != nil {
			store.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("auth: %w", err)
		}
		logger.Info("auth: enabled", "token_ttl", cfg.JWTExpiration)
	} else {
		logger.Warn("auth: disabled (no TSUZURI_API_KEY_HASH)")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	mcpSrv := mcp.New(store, gate, logger, version)

	srv := server.New(server.ServerConfig{
		Store:               store,
		Registry:            registry,
		Logger:              logger,
		JWTMgr:              jwtMgr,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		APIKeyHash:          cfg.APIKeyHash,
		ModerationProvider:  gate.Provider(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		registry:     registry,
		limiter:      limiter,
		mcp:          mcpSrv,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler with all middleware applied.
func (a *App) Handler() http.Handler { return a.srv.Handler() }

// Run starts the HTTP server, the cross-process change listener (Postgres
// only) and the session sweeper, then blocks until ctx is cancelled or one of
// them fails. Resources are released before Run returns.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if l, ok := a.store.(storage.Listener); ok {
		g.Go(func() error { return l.Listen(gctx) })
	}
	g.Go(func() error { return a.registry.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
		return nil
	})

	err := g.Wait()
	a.close()
	return err
}

// close releases everything New acquired, in reverse order.
func (a *App) close() {
	a.logger.Info("tsuzuri shutting down")
	a.registry.CloseAll()
	a.mcp.Close()
	_ = a.limiter.Close()
	a.store.Close(context.Background())
	if err := a.otelShutdown(context.Background()); err != nil {
		a.logger.Warn("telemetry shutdown", "error", err)
	}
	a.logger.Info("tsuzuri stopped")
}

func applyOptions(cfg *config.Config, o resolvedOptions) {
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.store != "" {
		cfg.Store = o.store
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	// A caller-supplied classifier needs no token.
	if o.classifier != nil {
		cfg.ModerationProvider = moderation.ProviderAuto
	}
}

// classifierAdapter bridges the public Classifier to moderation.Classifier.
type classifierAdapter struct {
	c Classifier
}

func (a classifierAdapter) Classify(ctx context.Context, text string) ([]moderation.Label, error) {
	labels, err := a.c.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]moderation.Label, len(labels))
	for i, l := range labels {
		out[i] = moderation.Label{Label: l.Label, Score: l.Score}
	}
	return out, nil
}

func (a classifierAdapter) Name() string { return a.c.Name() }
