package mq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// defaultPublishTimeout — таймаут публикации одного события.
const defaultPublishTimeout = 3 * time.Second

// EventPublisher публикует события run. Реализуется *Publisher.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, msgType MessageType, payload RunEventPayload) error
}

// EventSink — слушатель run, публикующий события в RabbitMQ.
//
// Публикуются только смены статусов: старт run, завершение каждого
// шага и завершение run. Промежуточный прогресс не публикуется.
// Ошибки публикации логируются и не влияют на выполнение run.
type EventSink struct {
	publisher EventPublisher
	logger    *slog.Logger
	timeout   time.Duration

	mu   sync.Mutex
	seen map[uuid.UUID]runMarks
}

// runMarks — последние известные статусы run и его шагов.
type runMarks struct {
	status domain.RunStatus
	steps  []domain.StepStatus
}

// NewEventSink создаёт EventSink.
func NewEventSink(publisher EventPublisher, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{
		publisher: publisher,
		logger:    logger.With("component", "event_sink"),
		timeout:   defaultPublishTimeout,
		seen:      make(map[uuid.UUID]runMarks),
	}
}

// Listen — domain.Listener. Подключается через orchestrator.Config.Listeners.
func (s *EventSink) Listen(run domain.PipelineRun) {
	for _, ev := range s.transitions(run) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.publisher.PublishRunEvent(ctx, ev.msgType, ev.payload)
		cancel()

		if err != nil {
			s.logger.Warn("failed to publish run event",
				"type", ev.msgType,
				"run_id", run.ID,
				"error", err,
			)
		}
	}
}

type runEvent struct {
	msgType MessageType
	payload RunEventPayload
}

// transitions сравнивает снимок с предыдущим и возвращает события
// в порядке: run.started, step.finished, run.finished.
func (s *EventSink) transitions(run domain.PipelineRun) []runEvent {
	s.mu.Lock()
	prev := s.seen[run.ID]
	if run.IsFinished() {
		delete(s.seen, run.ID)
	} else {
		marks := runMarks{status: run.Status, steps: make([]domain.StepStatus, len(run.Steps))}
		for i := range run.Steps {
			marks.steps[i] = run.Steps[i].Status
		}
		s.seen[run.ID] = marks
	}
	s.mu.Unlock()

	var events []runEvent

	if run.Status != domain.RunStatusIdle && prev.status == "" {
		events = append(events, runEvent{MessageTypeRunStarted, basePayload(&run)})
	}

	for i := range run.Steps {
		step := &run.Steps[i]
		if !step.Status.IsTerminal() {
			continue
		}
		if i < len(prev.steps) && prev.steps[i].IsTerminal() {
			continue
		}

		payload := basePayload(&run)
		payload.StepID = step.StepID
		payload.StepStatus = step.Status
		payload.Error = step.Error
		payload.Cancelled = step.Cancelled
		events = append(events, runEvent{MessageTypeStepFinished, payload})
	}

	if run.IsFinished() && !prev.status.IsTerminal() {
		payload := basePayload(&run)
		payload.StepID = run.FailedStep
		payload.Error = run.Error
		payload.Cancelled = run.Cancelled
		payload.DurationMs = run.Duration().Milliseconds()
		if idx := indexOfStep(&run, run.FailedStep); idx >= 0 {
			payload.StepStatus = run.Steps[idx].Status
		}
		events = append(events, runEvent{MessageTypeRunFinished, payload})
	}

	return events
}

// Pending возвращает количество отслеживаемых незавершённых runs.
func (s *EventSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func basePayload(run *domain.PipelineRun) RunEventPayload {
	return RunEventPayload{
		RunID:        run.ID,
		DefinitionID: run.DefinitionID,
		Status:       run.Status,
		Progress:     run.Progress,
	}
}

func indexOfStep(run *domain.PipelineRun, stepID string) int {
	if stepID == "" {
		return -1
	}
	for i := range run.Steps {
		if run.Steps[i].StepID == stepID {
			return i
		}
	}
	return -1
}
