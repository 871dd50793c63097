package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mvribeiro/protesto-backoffice/internal/adapters/report"
	"github.com/mvribeiro/protesto-backoffice/internal/config"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
	"github.com/mvribeiro/protesto-backoffice/internal/core/usecase"
	"github.com/mvribeiro/protesto-backoffice/internal/infrastructure/repository/postgres"
	"github.com/mvribeiro/protesto-backoffice/internal/infrastructure/storage/localfs"
	"github.com/mvribeiro/protesto-backoffice/internal/infrastructure/tasks"
	"github.com/mvribeiro/protesto-backoffice/internal/observability/metrics"
)

// App wires configuration, persistence, the task registry and the use cases
// into one runnable unit.
type App struct {
	Config config.Config
	Log    *slog.Logger

	Store         ports.Store
	Tasks         ports.TaskRunner
	Ingestor      ports.BatchIngestor
	Withdrawals   ports.WithdrawalService
	Cancellations ports.CancellationService
	Resolver      ports.ErrorResolver
	Reports       ports.ReportExporter
	HTTPMetrics   *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.UploadDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init upload storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPServerMetrics("server", registry)
	taskMetrics := metrics.NewTaskMetrics("server", registry)

	runner := tasks.NewRegistry(cfg.WorkerCount, cfg.TaskHistoryLimit, log, taskMetrics)
	runner.Start(ctx)

	processBatchUC := usecase.NewProcessBatchUseCase(store, storage, log)
	processAuthUC := usecase.NewProcessAuthorizationUseCase(store, storage, log)
	ingestUC := usecase.NewIngestEnvelopeUseCase(store, storage, runner, processBatchUC, processAuthUC, log)
	withdrawalUC := usecase.NewWithdrawalUseCase(store, log)
	cancellationUC := usecase.NewCancellationUseCase(store, log)
	resolveUC := usecase.NewResolveErrorUseCase(store, log)
	reports := report.NewXLSXExporter(store)

	return &App{
		Config: cfg,
		Log:    log,

		Store:         store,
		Tasks:         runner,
		Ingestor:      ingestUC,
		Withdrawals:   withdrawalUC,
		Cancellations: cancellationUC,
		Resolver:      resolveUC,
		Reports:       reports,
		HTTPMetrics:   httpMetrics,

		closeFn: func() {
			runner.Stop()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
