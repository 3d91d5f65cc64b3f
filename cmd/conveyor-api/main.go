// Conveyor API — сервис выполнения pipeline.
//
// В одном процессе:
//   - HTTP API (/api/v1, /healthz, /metrics)
//   - Orchestrator: выполнение runs, контрольные точки в хранилище
//   - Scheduler: запуск runs по расписанию определений
//   - публикация событий runs в RabbitMQ (если настроен RABBITMQ_URL)
//
// Хранилище: PostgreSQL при заданном DB_URL, иначе память процесса.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting conveyor-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилище
	store, closeStore, err := openStore(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	definitions := repo.NewDefinitionRepo(store)
	runs := repo.NewRunRepo(store, cfg.Engine.HistoryLimit)
	schedules := repo.NewScheduleRepo(store)

	metrics := telemetry.NewMetrics(nil)

	// RabbitMQ: события runs для notifier
	var listeners []domain.Listener
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, run events will not be published", "error", err)
		} else {
			defer mqConn.Close()

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			mqConn.OnReconnect(mq.DeclareTopology)

			sink := mq.NewEventSink(mq.NewPublisher(mqConn, logger), logger)
			listeners = append(listeners, sink.Listen)
			logger.Info("publishing run events", "exchange", mq.ExchangeRuns)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Definitions: definitions,
		Runs:        runs,
		Listeners:   listeners,
		Metrics:     metrics,
		Env:         cfg.Engine.Env,
		StepTimeout: cfg.Engine.StepTimeout,
		Logger:      logger,
	})

	// Scheduler
	schedDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(scheduler.Config{
			Definitions: definitions,
			Schedules:   schedules,
			Runs:        orch,
			Logger:      logger,
		})
		go func() {
			defer close(schedDone)
			sched.Run(ctx, cfg.Scheduler.Interval)
		}()
	} else {
		close(schedDone)
	}

	handler := api.NewHandler(api.Config{
		Definitions:  definitions,
		Runs:         runs,
		Schedules:    schedules,
		Orchestrator: orch,
		Metrics:      metrics,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.API.Addr(),
		Handler: mux,
	}
	// потоки событий закрываются, когда активные runs получают отмену
	server.RegisterOnShutdown(orch.Stop)

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	<-schedDone

	// ждёт финальных контрольных точек отменённых runs
	orch.Stop()

	logger.Info("conveyor-api stopped")
}

// openStore открывает PostgreSQL хранилище или, если dsn пустой, хранилище в памяти.
func openStore(ctx context.Context, dsn string, logger *slog.Logger) (repo.Store, func(), error) {
	if dsn == "" {
		logger.Warn("DB_URL is not set, using in-memory store")
		return repo.NewMemoryStore(), func() {}, nil
	}

	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}

	store := repo.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("connected to database")
	return store, pool.Close, nil
}
