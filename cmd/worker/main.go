package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/bootstrap"
	"github.com/kirillkom/search-orchestrator/internal/config"
	"github.com/kirillkom/search-orchestrator/internal/observability/logging"
)

const reindexJobTimeout = 30 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("search-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "search-worker")
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		logger.Error("worker_requires_queue", "hint", "set NATS_URL")
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeReindex(ctx, func(jobCtx context.Context, source string) error {
		runCtx, cancel := context.WithTimeout(jobCtx, reindexJobTimeout)
		defer cancel()

		app.Metrics.StartJob()
		stats, err := app.Admin.RunSource(runCtx, source)
		app.Metrics.FinishJob(source, err)
		if err != nil {
			return err
		}
		logger.Info("reindex_job_done", "source", source, "pages", stats.Pages, "items", stats.Items)
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
