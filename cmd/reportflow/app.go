package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/mtb-technology/reportflow/cmd/reportflow/internal"
	"github.com/mtb-technology/reportflow/internal/config"
	"github.com/mtb-technology/reportflow/internal/database"
	"github.com/mtb-technology/reportflow/internal/events"
	"github.com/mtb-technology/reportflow/internal/job"
	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/llm/providers"
	"github.com/mtb-technology/reportflow/internal/observability"
	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/version"
)

// app bundles the wired subsystems behind every command that touches the
// pipeline. Construction order matters: logging and tracing first, storage
// next, then the scheduler on top.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	tracing   *sdktrace.TracerProvider
	tracer    trace.Tracer
	db        *database.DB
	repo      report.Repository
	versions  *version.Store
	bus       *events.DefaultEventBus
	registry  *llm.Registry
	invoker   *llm.Invoker
	scheduler *job.Scheduler
}

// newApp wires the full application from configuration.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	a.logger = observability.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	a.tracing = tp
	a.tracer = tp.Tracer("reportflow")

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, internal.WrapError(internal.ExitDatabaseError, "failed to create data directory", err)
		}
	}

	db, err := database.OpenWithConfig(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxConnections / 2,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.db = db

	if err := database.NewMigrator(db).Migrate(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.repo = database.NewReportDAO(db)

	a.versions = version.NewStore(version.WithArchiver(database.NewSnapshotDAO(db)))
	if err := a.versions.Restore(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.bus = events.NewEventBus(events.WithErrorHandler(func(err error, fields map[string]any) {
		a.logger.Warn("event bus dropped event", "error", err, "fields", fields)
	}))

	a.registry = llm.NewRegistry()
	for name, settings := range cfg.Providers {
		provider, err := providers.NewProvider(ctx, llm.ProviderType(name), settings)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		if err := a.registry.Register(provider); err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	breaker := llm.NewCircuitBreaker(cfg.AI.Breaker.Settings())
	a.invoker = llm.NewInvoker(a.registry, breaker,
		llm.WithRetryPolicy(cfg.AI.Retry.Policy()),
		llm.WithLogger(a.logger),
		llm.WithTracer(a.tracer),
	)

	defs, err := stage.LoadDefinitions(cfg.Core.StageDefinitions)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	graph, err := stage.NewGraph(defs)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.scheduler = job.NewScheduler(
		graph,
		a.repo,
		a.invoker,
		a.versions,
		a.bus,
		newPromptBuilder(),
		job.WithLogger(a.logger),
		job.WithTracer(a.tracer),
		job.WithMaxParallel(cfg.Core.MaxParallel),
		job.WithGlobalConfig(cfg.AI.Global),
		job.WithStageOverrides(cfg.StageOverrides()),
	)

	return a, nil
}

// close releases everything newApp acquired. Safe on a partially built app.
func (a *app) close(ctx context.Context) {
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := observability.ShutdownTracing(shutdownCtx, a.tracing); err != nil {
			a.logger.Warn("tracing shutdown failed", "error", err)
		}
	}
}

// withApp builds the app for one command invocation and tears it down after
// fn returns.
func withApp(ctx context.Context, fn func(a *app) error) error {
	if appConfig == nil {
		return internal.NewCLIError(internal.ExitConfigError, "configuration not loaded")
	}
	a, err := newApp(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	return fn(a)
}
