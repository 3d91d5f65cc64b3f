package domain

// RunStatus — общий статус выполнения pipeline run.
//
// Жизненный цикл:
//
//	IDLE → RUNNING → COMPLETED
//	               ↘ FAILED (ошибка шага или отмена)
type RunStatus string

const (
	// RunStatusIdle — run ещё не запущен.
	RunStatusIdle RunStatus = "idle"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted — все шаги успешно завершены.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed — run остановлен из-за ошибки шага или отмены.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// StepStatus — статус выполнения одного шага внутри run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//
// Шаг, до которого run не дошёл, навсегда остаётся PENDING.
type StepStatus string

const (
	// StepStatusPending — шаг ещё не начинал выполняться.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted — шаг успешно завершён.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed — шаг завершился с ошибкой (в том числе отменён).
	StepStatusFailed StepStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// ParseRunStatus парсит строку в RunStatus.
// Неизвестные значения трактуются как IDLE.
func ParseRunStatus(s string) RunStatus {
	switch s {
	case "running":
		return RunStatusRunning
	case "completed":
		return RunStatusCompleted
	case "failed":
		return RunStatusFailed
	default:
		return RunStatusIdle
	}
}
