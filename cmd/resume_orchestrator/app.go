package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonathan/resume-orchestrator/internal/config"
	"github.com/jonathan/resume-orchestrator/internal/db"
	"github.com/jonathan/resume-orchestrator/internal/observability"
	"github.com/jonathan/resume-orchestrator/internal/pipeline"
	"github.com/jonathan/resume-orchestrator/internal/provider"
	"github.com/jonathan/resume-orchestrator/internal/publish"
	"github.com/jonathan/resume-orchestrator/internal/resume"
	"github.com/jonathan/resume-orchestrator/internal/service"
	"github.com/jonathan/resume-orchestrator/internal/store"
)

// app holds the wired components shared by every command.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	store       store.Store
	registry    *provider.Registry
	coordinator *pipeline.Coordinator
	publisher   *publish.Publisher
	service     *service.Service
}

// appOptions adjusts wiring per command.
type appOptions struct {
	// logOut receives log output; nil means stderr.
	logOut     io.Writer
	onProgress pipeline.ProgressCallback
}

// loadConfig reads the config file and environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp wires configuration, storage, providers and the pipeline.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, opts.logOut)
	slog.SetDefault(logger)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry, err := provider.NewRegistryFromEnv(ctx, provider.RegistryOptions{Models: cfg.ProviderModels})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialise providers: %w", err)
	}
	if len(registry.Names()) == 0 {
		logger.Warn("no provider credentials found; every stage will fail")
	}

	compiler, err := publish.NewCompiler(cfg.Compiler, cfg.CompilerURL, publish.DefaultCompileTimeout)
	if err != nil {
		registry.Close()
		st.Close()
		return nil, fmt.Errorf("failed to create compiler: %w", err)
	}
	publisher := publish.NewPublisher(compiler, cfg.DataDir, cfg.PublicBaseURL, logger)

	loadDocument := func() (*resume.Document, error) { return resume.LoadDocument(cfg.ResumeDir) }

	executor := pipeline.NewExecutor(registry, pipeline.ExecutorOptions{
		StageTimeout: cfg.StageTimeout.Std(),
		MaxAttempts:  cfg.MaxAttempts,
		Logger:       logger,
	})
	coordinator := pipeline.NewCoordinator(st, executor, pipeline.Options{
		Defaults:        cfg.DefaultProviders,
		MinAverageScore: cfg.Review.MinAverageScore,
		MaxRevisions:    cfg.MaxRevisions(),
		PipelineTimeout: cfg.PipelineTimeout.Std(),
		Publisher:       publisher,
		LoadDocument:    loadDocument,
		OnProgress:      opts.onProgress,
		Logger:          logger,
	})
	svc := service.New(coordinator, service.Options{
		Compiler:     compiler,
		LoadDocument: loadDocument,
		Models:       cfg.ProviderModels,
		Logger:       logger,
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		registry:    registry,
		coordinator: coordinator,
		publisher:   publisher,
		service:     svc,
	}, nil
}

// openStore connects to PostgreSQL when a database URL is configured and
// falls back to the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory run store")
		return store.NewMemoryStore(), nil
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("using PostgreSQL run store")
	return db.NewRunStore(database), nil
}

// Close waits for background runs and releases resources.
func (a *app) Close(ctx context.Context) {
	if err := a.coordinator.Shutdown(ctx); err != nil {
		a.logger.Warn("pipeline shutdown incomplete", "error", err)
	}
	a.registry.Close()
	a.store.Close()
}
