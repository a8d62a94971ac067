package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/avdeenko/docqa/internal/adapters/http"
	"github.com/avdeenko/docqa/internal/bootstrap"
	"github.com/avdeenko/docqa/internal/config"
	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
	"github.com/avdeenko/docqa/internal/observability/logging"
	"github.com/avdeenko/docqa/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	answerer := &meteredAnswerer{inner: app.AnswerUC, metrics: serverMetrics}

	router := httpadapter.NewRouter(app.IngestUC, app.ProcessUC, answerer, app.Store, app.Audit, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", serverMetrics.Handler())
	mux.Handle("/", serverMetrics.Middleware("api", router.Handler()))

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", "error", err)
	}
}

type meteredAnswerer struct {
	inner   ports.QuestionAnswerer
	metrics *metrics.HTTPServerMetrics
}

func (m *meteredAnswerer) Answer(ctx context.Context, question string, docID *int64) (*domain.Answer, error) {
	start := time.Now()
	answer, err := m.inner.Answer(ctx, question, docID)
	if err == nil {
		m.metrics.RecordAnswer("api", len(answer.References), time.Since(start))
	}
	return answer, err
}
