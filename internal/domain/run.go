package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// LogEntry — запись журнала шага.
type LogEntry struct {
	// Time — время добавления записи.
	Time time.Time `json:"time"`

	// Message — текст записи.
	Message string `json:"message"`
}

// StepRunState — состояние одного шага в рамках конкретного run.
//
// Инвариант: Progress == 100 тогда и только тогда, когда статус финальный.
// Log только дополняется, записи никогда не удаляются.
type StepRunState struct {
	// StepID — ID шага из определения.
	StepID string `json:"step_id"`

	// Title — заголовок шага (копия StepSpec.Title для удобства UI).
	Title string `json:"title,omitempty"`

	// Weight — эффективный вес шага.
	Weight float64 `json:"weight"`

	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// Progress — прогресс шага в процентах (0–100).
	Progress int `json:"progress"`

	// Log — журнал шага.
	Log []LogEntry `json:"log"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если шаг упал.
	Error string `json:"error,omitempty"`

	// Cancelled — шаг остановлен отменой run.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Duration возвращает продолжительность выполнения шага.
// Возвращает 0, если шаг ещё не завершён.
func (s *StepRunState) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// AppendLog добавляет запись в журнал шага.
func (s *StepRunState) AppendLog(at time.Time, msg string) {
	s.Log = append(s.Log, LogEntry{Time: at, Message: msg})
}

// MarkRunning переводит шаг в статус RUNNING.
func (s *StepRunState) MarkRunning(at time.Time) {
	s.Status = StepStatusRunning
	s.StartedAt = &at
}

// MarkCompleted переводит шаг в статус COMPLETED.
func (s *StepRunState) MarkCompleted(at time.Time) {
	s.Status = StepStatusCompleted
	s.Progress = 100
	s.FinishedAt = &at
}

// MarkFailed переводит шаг в статус FAILED с ошибкой.
func (s *StepRunState) MarkFailed(at time.Time, errMsg string, cancelled bool) {
	s.Status = StepStatusFailed
	s.Progress = 100
	s.FinishedAt = &at
	s.Error = errMsg
	s.Cancelled = cancelled
}

// PipelineRun — одна попытка выполнения PipelineDefinition.
//
// Run изменяется только движком во время выполнения.
// После перехода в COMPLETED или FAILED run неизменяем.
type PipelineRun struct {
	// ID — уникальный идентификатор запуска.
	ID uuid.UUID `json:"id"`

	// DefinitionID — ссылка на определение pipeline.
	DefinitionID string `json:"definition_id"`

	// Status — общий статус run.
	Status RunStatus `json:"status"`

	// Progress — взвешенный общий прогресс (0–100).
	Progress int `json:"progress"`

	// Steps — состояния шагов в порядке определения.
	Steps []StepRunState `json:"steps"`

	// Inputs — входные параметры запуска.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Cancelled — run остановлен через отмену (а не из-за ошибки шага).
	Cancelled bool `json:"cancelled,omitempty"`

	// FailedStep — ID шага, на котором run упал.
	FailedStep string `json:"failed_step,omitempty"`

	// Error — текст ошибки упавшего шага.
	Error string `json:"error,omitempty"`

	// StartedAt — время старта run.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения run.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewPipelineRun создаёт run в статусе IDLE со всеми шагами в PENDING.
func NewPipelineRun(def *PipelineDefinition, inputs map[string]any) *PipelineRun {
	steps := make([]StepRunState, len(def.Steps))
	for i := range def.Steps {
		spec := &def.Steps[i]
		steps[i] = StepRunState{
			StepID: spec.ID,
			Title:  spec.Title,
			Weight: spec.EffectiveWeight(),
			Status: StepStatusPending,
			Log:    []LogEntry{},
		}
	}
	return &PipelineRun{
		ID:           uuid.New(),
		DefinitionID: def.ID,
		Status:       RunStatusIdle,
		Steps:        steps,
		Inputs:       inputs,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *PipelineRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *PipelineRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *PipelineRun) MarkRunning(at time.Time) {
	r.Status = RunStatusRunning
	r.StartedAt = &at
}

// MarkCompleted переводит run в статус COMPLETED.
func (r *PipelineRun) MarkCompleted(at time.Time) {
	r.Status = RunStatusCompleted
	r.FinishedAt = &at
}

// MarkFailed переводит run в статус FAILED.
func (r *PipelineRun) MarkFailed(at time.Time, stepID, errMsg string, cancelled bool) {
	r.Status = RunStatusFailed
	r.FinishedAt = &at
	r.FailedStep = stepID
	r.Error = errMsg
	r.Cancelled = cancelled
}

// CurrentStep возвращает индекс выполняющегося шага или -1.
func (r *PipelineRun) CurrentStep() int {
	for i := range r.Steps {
		if r.Steps[i].Status == StepStatusRunning {
			return i
		}
	}
	return -1
}

// Failure восстанавливает ошибку упавшего run.
// Возвращает nil, если run не в статусе FAILED.
func (r *PipelineRun) Failure() *StepError {
	if r.Status != RunStatusFailed {
		return nil
	}
	if r.Cancelled {
		return NewStepError(r.FailedStep, ErrCancelled)
	}
	return NewStepError(r.FailedStep, errors.New(r.Error))
}

// Clone возвращает глубокую копию run.
//
// Снимки, отдаваемые подписчикам, всегда являются копиями:
// подписчик не может изменить состояние движка.
func (r *PipelineRun) Clone() PipelineRun {
	c := *r
	c.Inputs = cloneMap(r.Inputs)
	c.StartedAt = cloneTime(r.StartedAt)
	c.FinishedAt = cloneTime(r.FinishedAt)
	c.Steps = make([]StepRunState, len(r.Steps))
	for i, s := range r.Steps {
		s.Log = append(make([]LogEntry, 0, len(s.Log)), s.Log...)
		s.StartedAt = cloneTime(s.StartedAt)
		s.FinishedAt = cloneTime(s.FinishedAt)
		c.Steps[i] = s
	}
	return c
}

// RunSummary — краткая запись о run для истории.
type RunSummary struct {
	ID           uuid.UUID  `json:"id"`
	DefinitionID string     `json:"definition_id"`
	Status       RunStatus  `json:"status"`
	Progress     int        `json:"progress"`
	Cancelled    bool       `json:"cancelled,omitempty"`
	FailedStep   string     `json:"failed_step,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Summary возвращает краткую запись о run.
func (r *PipelineRun) Summary() RunSummary {
	return RunSummary{
		ID:           r.ID,
		DefinitionID: r.DefinitionID,
		Status:       r.Status,
		Progress:     r.Progress,
		Cancelled:    r.Cancelled,
		FailedStep:   r.FailedStep,
		Error:        r.Error,
		StartedAt:    cloneTime(r.StartedAt),
		FinishedAt:   cloneTime(r.FinishedAt),
	}
}

// Listener — подписчик на изменения run.
// Получает полный снимок run после каждой мутации.
type Listener func(run PipelineRun)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
