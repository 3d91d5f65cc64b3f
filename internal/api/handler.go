package api

import (
	"log/slog"

	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	definitions  *repo.DefinitionRepo
	runs         *repo.RunRepo
	schedules    *repo.ScheduleRepo
	orchestrator *orchestrator.Orchestrator
	metrics      *telemetry.Metrics
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Definitions  *repo.DefinitionRepo
	Runs         *repo.RunRepo
	Schedules    *repo.ScheduleRepo
	Orchestrator *orchestrator.Orchestrator

	// Metrics (опционально) — счётчик запросов и /metrics.
	Metrics *telemetry.Metrics

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		definitions:  cfg.Definitions,
		runs:         cfg.Runs,
		schedules:    cfg.Schedules,
		orchestrator: cfg.Orchestrator,
		metrics:      cfg.Metrics,
		logger:       logger.With("component", "api"),
	}
}
