package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

// knownTypes — простая реализация StepTypes для тестов.
type knownTypes map[string]bool

func (k knownTypes) Has(t string) bool { return k[t] }

func noopAction(ctx context.Context, progress domain.ProgressFunc) (string, error) {
	return "ok", nil
}

func TestValidate_EmptySteps(t *testing.T) {
	tests := []struct {
		name string
		def  *domain.PipelineDefinition
	}{
		{name: "nil definition", def: nil},
		{name: "nil steps", def: &domain.PipelineDefinition{ID: "deploy"}},
		{name: "empty steps", def: &domain.PipelineDefinition{ID: "deploy", Steps: []domain.StepSpec{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.def, nil)
			if !errors.Is(err, ErrEmptySteps) {
				t.Errorf("expected ErrEmptySteps, got %v", err)
			}
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestValidate_StepErrors(t *testing.T) {
	types := knownTypes{"delay": true}

	tests := []struct {
		name  string
		steps []domain.StepSpec
		want  error
	}{
		{
			name:  "empty step id",
			steps: []domain.StepSpec{{ID: "", Action: noopAction}},
			want:  ErrEmptyStepID,
		},
		{
			name: "duplicate step id",
			steps: []domain.StepSpec{
				{ID: "build", Action: noopAction},
				{ID: "build", Type: "delay"},
			},
			want: ErrDuplicateStepID,
		},
		{
			name:  "negative weight",
			steps: []domain.StepSpec{{ID: "build", Action: noopAction, Weight: -1}},
			want:  ErrNegativeWeight,
		},
		{
			name:  "no action and no type",
			steps: []domain.StepSpec{{ID: "build"}},
			want:  ErrUnknownStepType,
		},
		{
			name:  "unknown type",
			steps: []domain.StepSpec{{ID: "build", Type: "shell"}},
			want:  ErrUnknownStepType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &domain.PipelineDefinition{ID: "deploy", Steps: tt.steps}
			err := Validate(def, types)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var vErr *InvalidDefinitionError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected InvalidDefinitionError, got %T", err)
			}
			if !errors.Is(vErr.Err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, vErr.Err)
			}
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Error("error should match ErrInvalidDefinition")
			}
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	def := &domain.PipelineDefinition{
		ID: "deploy",
		Steps: []domain.StepSpec{
			{ID: "build", Action: noopAction, Weight: 2},
			{ID: "wait", Type: "delay"},
			// Action побеждает неизвестный тип
			{ID: "push", Type: "unknown", Action: noopAction},
		},
	}

	if err := Validate(def, knownTypes{"delay": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NilTypesRequiresActions(t *testing.T) {
	def := &domain.PipelineDefinition{
		ID:    "deploy",
		Steps: []domain.StepSpec{{ID: "wait", Type: "delay"}},
	}

	if err := Validate(def, nil); !errors.Is(err, ErrUnknownStepType) {
		t.Errorf("expected ErrUnknownStepType, got %v", err)
	}
}

func TestInvalidDefinitionError_Message(t *testing.T) {
	err := NewInvalidDefinitionError("build", "id", "duplicate step ID: build", ErrDuplicateStepID)
	want := "invalid definition: step build: duplicate step ID: build"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	err = NewInvalidDefinitionError("", "steps", "definition has no steps", ErrEmptySteps)
	if err.Error() != "invalid definition: definition has no steps" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestParseDefinition(t *testing.T) {
	data := []byte(`{
		"id": "package-repo",
		"name": "GitHub packaging",
		"inputs": {"repo": "shop-bot"},
		"steps": [
			{"id": "archive", "title": "Archive sources", "type": "delay", "config": {"duration_ms": 10}},
			{"id": "push", "type": "http", "weight": 3, "config": {"url": "http://example.com/{{ .Inputs.repo }}"}}
		]
	}`)

	def, err := ParseDefinition(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if def.ID != "package-repo" {
		t.Errorf("expected id package-repo, got %s", def.ID)
	}
	if len(def.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(def.Steps))
	}
	if def.Steps[1].Weight != 3 {
		t.Errorf("expected weight 3, got %v", def.Steps[1].Weight)
	}
	if def.Steps[0].EffectiveWeight() != 1 {
		t.Errorf("expected default weight 1, got %v", def.Steps[0].EffectiveWeight())
	}
	if def.Inputs["repo"] != "shop-bot" {
		t.Errorf("expected input repo, got %v", def.Inputs["repo"])
	}
}

func TestParseDefinition_Errors(t *testing.T) {
	if _, err := ParseDefinition([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}

	_, err := ParseDefinition([]byte(`{"steps": []}`))
	if !errors.Is(err, ErrEmptyDefinitionID) {
		t.Errorf("expected ErrEmptyDefinitionID, got %v", err)
	}
}
