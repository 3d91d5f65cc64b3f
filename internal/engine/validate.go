package engine

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// StepTypes — набор известных типов шагов.
// Реализуется steps.Registry.
type StepTypes interface {
	Has(stepType string) bool
}

// Validate выполняет полную валидацию PipelineDefinition.
//
// Проверяет:
// - Наличие шагов
// - Наличие и уникальность ID шагов
// - Неотрицательность весов
// - Что у каждого шага есть Action или известный тип
//
// types может быть nil — тогда шаги без Action считаются невалидными.
func Validate(def *domain.PipelineDefinition, types StepTypes) error {
	if def == nil || len(def.Steps) == 0 {
		return NewInvalidDefinitionError("", "steps", "definition has no steps", ErrEmptySteps)
	}

	stepIDs := make(map[string]bool, len(def.Steps))

	for i := range def.Steps {
		if err := ValidateStep(&def.Steps[i], stepIDs, types); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(step *domain.StepSpec, stepIDs map[string]bool, types StepTypes) error {
	if step.ID == "" {
		return NewInvalidDefinitionError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if stepIDs[step.ID] {
		return NewInvalidDefinitionError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	if step.Weight < 0 {
		return NewInvalidDefinitionError(step.ID, "weight",
			fmt.Sprintf("negative weight: %g", step.Weight), ErrNegativeWeight)
	}

	// Action имеет приоритет над типом
	if step.Action != nil {
		return nil
	}

	if step.Type == "" {
		return NewInvalidDefinitionError(step.ID, "type",
			"step has neither action nor type", ErrUnknownStepType)
	}

	if types == nil || !types.Has(step.Type) {
		return NewInvalidDefinitionError(step.ID, "type",
			fmt.Sprintf("unknown step type: %s", step.Type), ErrUnknownStepType)
	}

	return nil
}

// ParseDefinition парсит PipelineDefinition из JSON.
//
// Проверяется только синтаксис и наличие ID определения;
// структурная валидация выполняется через Validate.
func ParseDefinition(data []byte) (*domain.PipelineDefinition, error) {
	var def domain.PipelineDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}

	if def.ID == "" {
		return nil, NewInvalidDefinitionError("", "id", "definition has empty ID", ErrEmptyDefinitionID)
	}

	return &def, nil
}
