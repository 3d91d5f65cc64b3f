package domain

import "errors"

// ErrCancelled — шаг остановлен через отмену run.
var ErrCancelled = errors.New("step cancelled")

// StepError — ошибка, которой завершился шаг.
//
// Отмена представлена StepError, оборачивающим ErrCancelled:
//
//	errors.Is(err, domain.ErrCancelled)
type StepError struct {
	StepID string // ID упавшего шага
	Err    error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	if e.Err == nil {
		return "step " + e.StepID + " failed"
	}
	return "step " + e.StepID + ": " + e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *StepError) Unwrap() error {
	return e.Err
}

// IsCancelled проверяет, является ли ошибка отменой.
func (e *StepError) IsCancelled() bool {
	return errors.Is(e.Err, ErrCancelled)
}

// NewStepError создаёт StepError.
func NewStepError(stepID string, err error) *StepError {
	return &StepError{StepID: stepID, Err: err}
}
