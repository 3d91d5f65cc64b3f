package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
)

// defaultTickInterval — интервал между тиками Run.
const defaultTickInterval = time.Second

// RunStarter запускает runs. Реализуется *orchestrator.Orchestrator.
type RunStarter interface {
	IsActive(defID string) bool
	StartRun(ctx context.Context, def *domain.PipelineDefinition, opts orchestrator.StartOptions) (*orchestrator.Handle, error)
}

// Scheduler запускает pipeline по расписанию.
type Scheduler struct {
	definitions *repo.DefinitionRepo
	schedules   *repo.ScheduleRepo
	runs        RunStarter
	logger      *slog.Logger
	now         func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Definitions *repo.DefinitionRepo
	Schedules   *repo.ScheduleRepo
	Runs        RunStarter
	Logger      *slog.Logger

	// Now — источник времени (для тестов). По умолчанию time.Now.
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		definitions: cfg.Definitions,
		schedules:   cfg.Schedules,
		runs:        cfg.Runs,
		logger:      logger.With("component", "scheduler"),
		now:         now,
	}
}

// Run вызывает Tick каждые interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultTickInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick выполняет один тик планировщика и возвращает количество запущенных runs.
//
// 1. Загружает определения с включённым расписанием
// 2. Для каждого вычисляет, наступило ли время запуска
// 3. Запускает run, если у определения нет активного run
// 4. Сохраняет время следующего запуска
//
// Ошибки одного расписания не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now().UTC()

	defs, err := s.definitions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list definitions: %w", err)
	}

	var due, started int
	for i := range defs {
		def := &defs[i]
		if def.Schedule == nil || !def.Schedule.Enabled {
			continue
		}

		ok, err := s.processSchedule(ctx, def, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"definition_id", def.ID,
				"error", err,
			)
			continue
		}

		due++
		if ok {
			started++
		}
	}

	if started > 0 {
		s.logger.Info("scheduler tick completed",
			"scheduled", due,
			"runs_started", started,
		)
	}

	return started, nil
}

// processSchedule обрабатывает расписание одного определения.
// Возвращает true, если run был запущен.
func (s *Scheduler) processSchedule(ctx context.Context, def *domain.PipelineDefinition, now time.Time) (bool, error) {
	sched := def.Schedule

	state, err := s.schedules.Get(ctx, def.ID)
	if errors.Is(err, repo.ErrNotFound) {
		// первое появление расписания: запуск в ближайшее время по расписанию
		next, err := CalculateNextDue(sched, now)
		if err != nil {
			return false, err
		}
		return false, s.schedules.Save(ctx, &domain.ScheduleState{DefinitionID: def.ID, NextDueAt: next})
	}
	if err != nil {
		return false, fmt.Errorf("get schedule state: %w", err)
	}

	if state.NextDueAt.After(now) {
		return false, nil
	}

	next, err := CalculateNextDue(sched, now)
	if err != nil {
		return false, err
	}

	// один активный run на определение: пропущенный запуск не догоняется
	if s.runs.IsActive(def.ID) {
		s.logger.Warn("previous run still active, skipping",
			"definition_id", def.ID,
			"next_due_at", next,
		)
		state.NextDueAt = next
		return false, s.schedules.Save(ctx, state)
	}

	h, err := s.runs.StartRun(ctx, def, orchestrator.StartOptions{Inputs: sched.Inputs})
	if err != nil {
		return false, fmt.Errorf("start run: %w", err)
	}

	s.logger.Info("started run from schedule",
		"definition_id", def.ID,
		"run_id", h.RunID(),
		"next_due_at", next,
	)

	state.RecordRun(h.RunID(), now, next)
	if err := s.schedules.Save(ctx, state); err != nil {
		return true, fmt.Errorf("save schedule state: %w", err)
	}

	return true, nil
}
