// cmd/analyzer-worker/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"comment-insights/internal/api"
	"comment-insights/internal/common/camunda"
	"comment-insights/internal/common/config"
	"comment-insights/internal/common/database"
	"comment-insights/internal/common/logger"
	"comment-insights/internal/common/observability"
	"comment-insights/internal/engine/orchestrator"
	"comment-insights/internal/usage"
	ac "comment-insights/internal/workers/analysis/analyze-comments"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	zapLog.Info("Starting analyzer worker...",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model),
		zap.Int("batchSize", cfg.Batch.Size),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.ReadinessCheck{}

	// --- Redis (shared pacer) ---
	var rdb redis.Cmdable
	if cfg.Database.Redis.Address != "" {
		rc := database.NewRedis(cfg.Database.Redis)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			// the pacer falls back to a local pause, so this is not fatal
			zapLog.Warn("redis unreachable at startup", zap.Error(err))
		}
		rdb = rc.Client
		checks["redis"] = rc.Ping
	}

	// --- PostgreSQL (usage ledger) ---
	var recorder orchestrator.RunRecorder
	var history api.RunHistory
	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		ledger := usage.NewLedger(pg.DB, log)
		if err := ledger.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("usage ledger migration failed", zap.Error(err))
		}
		recorder = ledger
		history = ledger
		checks["postgres"] = pg.Ping
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Analysis engine ---
	eng, err := buildEngine(ctx, cfg, engineDeps{
		Redis:     rdb,
		Recorder:  recorder,
		Telemetry: obs,
		Logger:    log,
	})
	if err != nil {
		zapLog.Fatal("analysis engine init failed", zap.Error(err))
	}
	if interval := config.GetDuration(cfg.Cache.SweepInterval); interval > 0 {
		eng.cache.StartJanitor(ctx, interval)
	}

	// --- Zeebe worker ---
	var jobWorker *camunda.CamundaWorker
	if cfg.Camunda.Enabled {
		var zc *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zc, err = camunda.NewClient(cfg.Camunda.BrokerAddress, log)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zc.Close()
		checks["zeebe"] = zc.HealthCheck

		handler, err := ac.NewHandler(ac.HandlerOptions{
			AppConfig: cfg,
			Analyzer:  eng.orchestrator,
			Telemetry: obs,
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create analyze-comments handler", zap.Error(err))
		}
		jobWorker = camunda.NewWorker(zc.GetClient(), camunda.WorkerConfig{
			TaskType:      ac.TaskType,
			Name:          cfg.App.Name,
			MaxJobsActive: handler.Config().MaxJobsActive,
			Timeout:       handler.Config().Timeout,
		}, handler, log)
	}

	// --- HTTP API, health and metrics ---
	srv := &http.Server{
		Addr: cfg.Server.Address,
		Handler: api.NewServer(api.Options{
			Analyzer: eng.orchestrator,
			Logger:   log,
			Checks:   checks,
			History:  history,
		}).Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if jobWorker != nil {
		jobWorker.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}

	zapLog.Info("Analyzer worker stopped gracefully")
}
