package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/shaiso/Conveyor/internal/engine"
)

// StepTypeTransform — тип шага трансформации.
const StepTypeTransform = "transform"

// TransformStep собирает outputs из результатов предыдущих шагов.
//
// Каждое значение mappings — шаблон. Ключи рендерятся в алфавитном
// порядке, после каждого ключа, кроме последнего, сообщается прогресс.
// Результат, похожий на JSON (объект, массив, число, true/false),
// кладётся в outputs уже разобранным.
//
//	{
//	    "mappings": {
//	        "image": "{{ .Env.REGISTRY }}/{{ .Inputs.bot }}:{{ .Steps.build.Outputs.tag }}",
//	        "count": "{{ len .Steps.fetch.Outputs.items }}"
//	    }
//	}
type TransformStep struct{}

// NewTransformStep создаёт TransformStep.
func NewTransformStep() *TransformStep {
	return &TransformStep{}
}

// Type возвращает тип шага.
func (s *TransformStep) Type() string {
	return StepTypeTransform
}

// Execute рендерит mappings.
func (s *TransformStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}

	mappings := GetConfigMapString(req.Config, "mappings")
	if len(mappings) == 0 {
		return NewResponse("nothing to transform", nil), nil
	}

	tmplCtx := req.TemplateContext
	if tmplCtx == nil {
		tmplCtx = engine.NewContext(nil)
	}

	keys := slices.Sorted(maps.Keys(mappings))
	outputs := make(map[string]any, len(keys))
	for i, key := range keys {
		rendered, err := engine.Render(mappings[key], tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", key, err)
		}
		outputs[key] = decodeScalar(rendered)

		if done := i + 1; done < len(keys) {
			req.Progress(done * 100 / len(keys))
		}
	}

	return NewResponse(fmt.Sprintf("transformed %d fields", len(outputs)), outputs), nil
}

// decodeScalar разбирает результат шаблона: объект, массив, число (int64,
// иначе float64) и true/false. Всё остальное остаётся строкой.
func decodeScalar(value string) any {
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return value
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return value
	}

	switch t := v.(type) {
	case map[string]any, []any, bool:
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
	}
	return value
}
