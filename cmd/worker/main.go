package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/4747uwu/radportal/internal/bootstrap"
	"github.com/4747uwu/radportal/internal/config"
	"github.com/4747uwu/radportal/internal/core/ports"
	"github.com/4747uwu/radportal/internal/infrastructure/resilience"
	"github.com/4747uwu/radportal/internal/observability/logging"
	"github.com/4747uwu/radportal/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Bus.SubscribeStudyChanged(ctx, func(handlerCtx context.Context, change ports.StudyChange) error {
		recalcCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		if !change.ChangedAt.IsZero() {
			if lag := time.Since(change.ChangedAt); lag > 0 {
				workerMetrics.ObserveQueueLag("worker", lag)
			}
		}

		workerMetrics.StartRecalc()
		start := time.Now()
		recalcErr := app.Executor.Execute(recalcCtx, "tat.recalculate", func(callCtx context.Context) error {
			_, err := app.RecalculateUC.RecalculateByID(callCtx, change.StudyID, time.Now().UTC())
			return err
		}, resilience.ClassifyStoreError)
		workerMetrics.FinishRecalc("worker", time.Since(start), recalcErr)

		if recalcErr != nil {
			slog.Error("tat_recalc_failed", "study_id", change.StudyID, "error", recalcErr)
		}
		return recalcErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
