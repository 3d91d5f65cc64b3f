package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// maxRunningProgress — верхняя граница прогресса выполняющегося шага.
// 100% шаг получает только при переходе в финальный статус.
const maxRunningProgress = 99

// RunState — состояние выполнения одного run в памяти.
//
// Каждая мутация выполняется под emitMu вместе с доставкой уведомления,
// поэтому подписчики видят изменения строго в порядке их возникновения.
// Данные run защищены отдельным mu: слушатель может вызвать Snapshot
// или Cancel прямо из callback.
type RunState struct {
	def    *domain.PipelineDefinition
	tmpl   *engine.Context
	logger *slog.Logger

	emitMu sync.Mutex
	mu     sync.RWMutex
	run    *domain.PipelineRun

	// cancelRequested меняется только под mu.
	cancelRequested bool
	cancel          context.CancelFunc

	subMu sync.Mutex
	subs  []*subscription

	done chan struct{}
}

type subscription struct {
	fn     domain.Listener
	active atomic.Bool
}

func newRunState(def *domain.PipelineDefinition, run *domain.PipelineRun, tmpl *engine.Context, logger *slog.Logger) *RunState {
	return &RunState{
		def:    def,
		tmpl:   tmpl,
		logger: logger,
		run:    run,
		cancel: func() {},
		done:   make(chan struct{}),
	}
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.run.ID
}

// DefinitionID возвращает ID определения.
func (s *RunState) DefinitionID() string {
	return s.run.DefinitionID
}

// Snapshot возвращает копию текущего состояния run.
func (s *RunState) Snapshot() domain.PipelineRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Clone()
}

// subscribe добавляет подписчика и возвращает функцию отписки.
// Повторный вызов функции отписки безопасен.
func (s *RunState) subscribe(fn domain.Listener) func() {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	s.subMu.Lock()
	s.subs = append(s.subs, sub)
	s.subMu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// mutate применяет fn к run и, если fn сообщила об изменении,
// рассылает снимок подписчикам.
//
// Завершённый run не изменяется: fn для него не вызывается.
func (s *RunState) mutate(fn func(run *domain.PipelineRun) bool) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.run.IsFinished() {
		s.mu.Unlock()
		return false
	}
	changed := fn(s.run)
	var snapshot domain.PipelineRun
	if changed {
		snapshot = s.run.Clone()
	}
	s.mu.Unlock()

	if changed {
		s.deliver(&snapshot)
	}
	return changed
}

// deliver синхронно вызывает подписчиков.
//
// Список копируется перед обходом: отписка или подписка внутри
// callback не влияет на доставку текущего снимка остальным.
func (s *RunState) deliver(snapshot *domain.PipelineRun) {
	s.subMu.Lock()
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		s.notify(sub, snapshot.Clone())
	}
}

func (s *RunState) notify(sub *subscription, snapshot domain.PipelineRun) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", "panic", r)
		}
	}()
	sub.fn(snapshot)
}

// requestCancel помечает run как отменяемый и отменяет контекст шага.
func (s *RunState) requestCancel() error {
	s.mu.Lock()
	if s.run.IsFinished() {
		s.mu.Unlock()
		return ErrAlreadyFinished
	}
	s.cancelRequested = true
	s.mu.Unlock()

	s.cancel()
	return nil
}

// start переводит run в RUNNING.
func (s *RunState) start(at time.Time) {
	s.mutate(func(run *domain.PipelineRun) bool {
		run.MarkRunning(at)
		return true
	})
}

// startStep переводит шаг idx в RUNNING.
func (s *RunState) startStep(idx int, at time.Time) {
	s.mutate(func(run *domain.PipelineRun) bool {
		run.Steps[idx].MarkRunning(at)
		return true
	})
}

// reportProgress применяет прогресс, сообщённый action шага idx.
// Значение обрезается до [0,100], уменьшение игнорируется.
func (s *RunState) reportProgress(idx, percent int) {
	s.mutate(func(run *domain.PipelineRun) bool {
		step := &run.Steps[idx]
		if step.Status != domain.StepStatusRunning {
			return false
		}

		next, ok := engine.AdvanceProgress(step.Progress, percent)
		next = min(next, maxRunningProgress)
		if !ok || next == step.Progress {
			return false
		}

		step.Progress = next
		run.Progress = overallProgress(run)
		return true
	})
}

// stepOutcome — итог шага после финальной мутации.
type stepOutcome int

const (
	outcomeNone stepOutcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeCancelled
)

// finishStep фиксирует результат шага idx.
//
// Если отмена была запрошена, шаг завершается отменой независимо
// от результата action. Ошибка шага завершает run. Успех последнего
// шага завершает run в той же мутации.
func (s *RunState) finishStep(idx int, at time.Time, message string, stepErr error) stepOutcome {
	outcome := outcomeNone

	s.mutate(func(run *domain.PipelineRun) bool {
		step := &run.Steps[idx]

		switch {
		case s.cancelRequested:
			outcome = outcomeCancelled
			step.AppendLog(at, domain.ErrCancelled.Error())
			step.MarkFailed(at, domain.ErrCancelled.Error(), true)
			run.Progress = overallProgress(run)
			run.MarkFailed(at, step.StepID, domain.ErrCancelled.Error(), true)

		case stepErr != nil:
			outcome = outcomeFailed
			step.AppendLog(at, stepErr.Error())
			step.MarkFailed(at, stepErr.Error(), false)
			run.Progress = overallProgress(run)
			run.MarkFailed(at, step.StepID, stepErr.Error(), false)

		default:
			outcome = outcomeCompleted
			step.AppendLog(at, message)
			step.MarkCompleted(at)
			run.Progress = overallProgress(run)
			if idx == len(run.Steps)-1 {
				run.MarkCompleted(at)
			}
		}
		return true
	})

	return outcome
}

// failIfCancelled завершает run отменой перед запуском шага idx,
// если отмена была запрошена между шагами.
func (s *RunState) failIfCancelled(idx int, at time.Time) bool {
	cancelled := false

	s.mutate(func(run *domain.PipelineRun) bool {
		if !s.cancelRequested {
			return false
		}
		cancelled = true

		step := &run.Steps[idx]
		step.AppendLog(at, "cancelled before start")
		step.MarkFailed(at, domain.ErrCancelled.Error(), true)
		run.Progress = overallProgress(run)
		run.MarkFailed(at, step.StepID, domain.ErrCancelled.Error(), true)
		return true
	})

	return cancelled
}

// overallProgress пересчитывает взвешенный прогресс run.
func overallProgress(run *domain.PipelineRun) int {
	weights := make([]float64, len(run.Steps))
	progress := make([]int, len(run.Steps))
	for i := range run.Steps {
		weights[i] = run.Steps[i].Weight
		progress[i] = run.Steps[i].Progress
	}
	return engine.OverallProgress(weights, progress)
}
