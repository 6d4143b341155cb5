package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/nats-io/nats.go"
	"github.com/phrazzld/agentkit/internal/api"
	"github.com/phrazzld/agentkit/internal/config"
	"github.com/phrazzld/agentkit/internal/events"
	"github.com/phrazzld/agentkit/internal/generation"
	"github.com/phrazzld/agentkit/internal/platform/filesystem"
	"github.com/phrazzld/agentkit/internal/platform/gemini"
	"github.com/phrazzld/agentkit/internal/platform/natsbridge"
	"github.com/phrazzld/agentkit/internal/platform/openai"
	"github.com/phrazzld/agentkit/internal/platform/postgres"
	"github.com/phrazzld/agentkit/internal/service"
	"github.com/phrazzld/agentkit/internal/service/auth"
	"github.com/phrazzld/agentkit/internal/store"
	"github.com/phrazzld/agentkit/internal/task"
	"github.com/phrazzld/agentkit/internal/upstream"
)

// shutdownTimeout bounds both the HTTP server drain and the engine drain.
const shutdownTimeout = 10 * time.Second

// application holds the wired components of the server.
type application struct {
	config     *config.Config
	logger     *slog.Logger
	engine     *task.Engine
	dispatcher service.Dispatcher
	jwtService auth.JWTService
	db         *sql.DB
	nc         *nats.Conn
	bridge     *natsbridge.Bridge
}

// newApplication wires every component. On error, anything opened so far is
// closed again.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	backend, err := app.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	taskStore := store.NewTaskStore(backend, logger)
	if err := taskStore.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize task store: %w", err)
	}

	notifier := events.NewNotifier(logger)

	llm, err := newUpstreamClient(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	registry := task.NewRegistry()
	if cfg.Generator.OutputDir != "" {
		output, err := filesystem.New(cfg.Generator.OutputDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open output directory: %w", err)
		}
		worker, err := generation.NewWorker(llm, taskStore, output, cfg.Generator.PromptTemplate, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create generation worker: %w", err)
		}
		if err := registry.Register(worker); err != nil {
			return nil, err
		}
	}

	app.engine, err = task.NewEngine(task.Config{
		Concurrency:        cfg.Engine.Concurrency,
		MaxRetries:         cfg.Engine.MaxRetries,
		ZombieTimeout:      cfg.Engine.ZombieTimeout,
		ActivePollInterval: cfg.Engine.ActivePollInterval,
		IdlePollInterval:   cfg.Engine.IdlePollInterval,
		Retention:          cfg.Engine.Retention,
	}, taskStore, registry, notifier, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := app.engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load queue snapshot: %w", err)
	}

	if cfg.NATS.URL != "" {
		app.nc, err = natsbridge.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return nil, err
		}
		app.bridge = natsbridge.New(app.nc, cfg.NATS.SubjectPrefix, logger)
		app.bridge.Attach(notifier)
	}

	app.dispatcher, err = service.NewDispatcher(app.engine, llm, notifier, logger)
	if err != nil {
		return nil, err
	}

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	return app, nil
}

// openBackend returns the configured store backend.
func (app *application) openBackend(ctx context.Context) (store.Backend, error) {
	switch app.config.Storage.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, app.config.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.db = db
		if err := postgres.Migrate(ctx, db, app.logger); err != nil {
			return nil, err
		}
		return postgres.NewBackend(db, app.logger), nil
	default:
		backend, err := filesystem.New(app.config.Storage.Dir, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage directory: %w", err)
		}
		return backend, nil
	}
}

// newUpstreamClient builds the credential pool, the providers and the
// failover client.
func newUpstreamClient(cfg config.LLMConfig, logger *slog.Logger) (*upstream.Client, error) {
	pool, err := upstream.NewCredentialPool(upstream.PoolConfig{
		Strategy: upstream.Strategy(cfg.KeyStrategy),
		Cooldown: cfg.Cooldown,
		Credentials: map[string][]string{
			openai.Name: cfg.Credentials(openai.Name),
			gemini.Name: cfg.Credentials(gemini.Name),
		},
	}, logger)
	if err != nil {
		return nil, err
	}

	httpClient := cleanhttp.DefaultPooledClient()
	openaiProvider, err := openai.NewProvider(cfg.OpenAIBaseURL, cfg.OpenAIModel, logger, openai.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	geminiProvider, err := gemini.NewProvider(cfg.GoogleModel, logger, gemini.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return upstream.NewClient(upstream.ClientConfig{
		Primary:        cfg.Provider,
		Fallback:       cfg.FallbackProvider,
		RequestTimeout: cfg.RequestTimeout,
	}, pool, []upstream.Provider{openaiProvider, geminiProvider}, logger)
}

// Run starts the engine (when autostart is on) and serves the API until ctx
// is cancelled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if app.config.Engine.Autostart {
		app.engine.Start()
	}

	router := api.NewRouter(api.RouterConfig{
		Dispatcher: app.dispatcher,
		JWTService: app.jwtService,
		Logger:     app.logger,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			app.logger.Error("server failed", "error", err)
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
	}
	if err := app.engine.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn("engine did not drain before the deadline", "error", err)
	}

	app.logger.Info("shutdown completed")
	return runErr
}

// cleanup releases external connections. It is safe to call more than once.
func (app *application) cleanup() {
	if app.bridge != nil {
		app.bridge.Detach()
		app.bridge = nil
	}
	if app.nc != nil {
		if err := app.nc.Drain(); err != nil {
			app.logger.Warn("failed to drain NATS connection", "error", err)
		}
		app.nc = nil
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", "error", err)
		}
		app.db = nil
	}
}
