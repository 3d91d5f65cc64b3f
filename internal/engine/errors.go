package engine

import "errors"

// ErrInvalidDefinition — определение pipeline структурно некорректно.
// Все ошибки валидации оборачивают эту ошибку.
var ErrInvalidDefinition = errors.New("invalid pipeline definition")

// Причины невалидности определения.
var (
	// ErrEmptySteps — определение не содержит шагов.
	ErrEmptySteps = errors.New("definition has no steps")

	// ErrEmptyDefinitionID — определение не имеет ID.
	ErrEmptyDefinitionID = errors.New("definition has empty ID")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownStepType — у шага нет action и тип не зарегистрирован.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrNegativeWeight — у шага отрицательный вес.
	ErrNegativeWeight = errors.New("step weight is negative")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// InvalidDefinitionError — ошибка валидации определения с контекстом.
//
// errors.Is(err, ErrInvalidDefinition) истинно для любой InvalidDefinitionError.
type InvalidDefinitionError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // причина (ErrEmptySteps, ErrDuplicateStepID, ...)
}

// Error реализует интерфейс error.
func (e *InvalidDefinitionError) Error() string {
	if e.StepID != "" {
		return "invalid definition: step " + e.StepID + ": " + e.Message
	}
	return "invalid definition: " + e.Message
}

// Unwrap возвращает причину.
func (e *InvalidDefinitionError) Unwrap() error {
	return e.Err
}

// Is позволяет сопоставлять ошибку с ErrInvalidDefinition.
func (e *InvalidDefinitionError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

// NewInvalidDefinitionError создаёт новую ошибку валидации.
func NewInvalidDefinitionError(stepID, field, message string, err error) *InvalidDefinitionError {
	return &InvalidDefinitionError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
