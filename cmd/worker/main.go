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

	"github.com/kirillkom/hybrid-retrieval/internal/bootstrap"
	"github.com/kirillkom/hybrid-retrieval/internal/config"
	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/logging"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.NATSEnabled {
		slog.Error("worker_requires_nats", "hint", "set NATS_ENABLED=true")
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{
		Retrieval:    metrics.NewRetrievalMetrics(serviceName, workerMetrics.Registerer()),
		Dependencies: metrics.NewDependencyMetrics(serviceName, workerMetrics.Registerer()),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	metrics.RegisterCacheStats(workerMetrics.Registerer(), serviceName, app.EmbeddingCache.Stats)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeDocumentEvents(ctx, func(handlerCtx context.Context, event domain.DocumentEvent) error {
		if !event.EnqueuedAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(event.EnqueuedAt))
		}
		workerMetrics.StartEvent()
		start := time.Now()
		err := app.Documents.HandleEvent(handlerCtx, event)
		workerMetrics.FinishEvent(serviceName, string(event.Type), time.Since(start), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
