package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден ни среди активных, ни в хранилище.
	ErrRunNotFound = errors.New("run not found")

	// ErrDefinitionNotFound — определение pipeline не найдено.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrAlreadyFinished — run уже завершён, отмена не требуется.
	// Информационная ошибка, не означает сбой.
	ErrAlreadyFinished = errors.New("run already finished")

	// ErrStepPanicked — action шага запаниковал.
	ErrStepPanicked = errors.New("step panicked")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
