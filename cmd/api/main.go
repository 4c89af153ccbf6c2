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

	httpadapter "github.com/kirillkom/hybrid-retrieval/internal/adapters/http"
	"github.com/kirillkom/hybrid-retrieval/internal/bootstrap"
	"github.com/kirillkom/hybrid-retrieval/internal/config"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/logging"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{
		Retrieval:    metrics.NewRetrievalMetrics(serviceName, httpMetrics.Registerer()),
		Dependencies: metrics.NewDependencyMetrics(serviceName, httpMetrics.Registerer()),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	metrics.RegisterCacheStats(httpMetrics.Registerer(), serviceName, app.EmbeddingCache.Stats)

	if err := app.Documents.WarmUp(ctx); err != nil {
		slog.Warn("lexical_warmup_failed", "error", err)
	}

	router := httpadapter.NewRouter(cfg, app.Documents, app.Retriever, httpMetrics).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
