package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avdeenko/docqa/internal/bootstrap"
	"github.com/avdeenko/docqa/internal/config"
	"github.com/avdeenko/docqa/internal/observability/logging"
	"github.com/avdeenko/docqa/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentRegistered(ctx, func(handlerCtx context.Context, url string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()
		sizeBefore := app.Index.Size()
		doc, err := app.ProcessUC.ProcessByURL(processCtx, url)
		workerMetrics.FinishDocument("worker", time.Since(start), err)
		if err != nil {
			return err
		}
		workerMetrics.ObserveIndexedPassages("worker", app.Index.Size()-sizeBefore)

		logger.Info("document processed", "doc_id", doc.ID, "url", url)
		return nil
	})
	if err != nil {
		logger.Error("worker subscription failed", "error", err)
		os.Exit(1)
	}
}
