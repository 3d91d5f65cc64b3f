package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Context — данные, доступные шаблонам в конфигурации шагов.
//
//   - {{ .Inputs.bot_token }}
//   - {{ .Steps.build.Message }}
//   - {{ .Steps.upload.Outputs.url }}
//   - {{ .Env.REGISTRY }}
type Context struct {
	// Inputs — входные параметры run.
	Inputs map[string]any `json:"inputs"`

	// Steps — результаты уже завершённых шагов.
	Steps map[string]*StepContext `json:"steps"`

	// Env — дополнительные переменные (не переменные окружения процесса).
	Env map[string]string `json:"env"`
}

// StepContext — результат шага для использования в шаблонах.
type StepContext struct {
	// Message — сообщение, которым завершился шаг.
	Message string `json:"message"`

	// Outputs — структурированные выходные данные шага.
	Outputs map[string]any `json:"outputs"`

	// Status — статус шага: "completed" или "failed".
	Status string `json:"status"`
}

// NewContext создаёт новый контекст с входными параметрами.
func NewContext(inputs map[string]any) *Context {
	if inputs == nil {
		inputs = make(map[string]any)
	}
	return &Context{
		Inputs: inputs,
		Steps:  make(map[string]*StepContext),
		Env:    make(map[string]string),
	}
}

// AddStepResult добавляет результат шага в контекст.
func (c *Context) AddStepResult(stepID, message string, outputs map[string]any, status string) {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	c.Steps[stepID] = &StepContext{
		Message: message,
		Outputs: outputs,
		Status:  status,
	}
}

// SetEnv устанавливает переменную.
func (c *Context) SetEnv(key, value string) {
	c.Env[key] = value
}

// blank сообщает, пуст ли аргумент шаблона (nil или "").
func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

var templateFuncs = template.FuncMap{
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// {{ .Inputs.tag | default "latest" }}
	"default": func(def, val any) any {
		if blank(val) {
			return def
		}
		return val
	},

	"coalesce": func(values ...any) any {
		for _, v := range values {
			if !blank(v) {
				return v
			}
		}
		return nil
	},

	"contains": strings.Contains,
	"lower":    strings.ToLower,
	"upper":    strings.ToUpper,
	"trim":     strings.TrimSpace,
	"replace":  strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
//
// Строки без "{{" возвращаются как есть. Обращение к несуществующему
// ключу карты даёт "<no value>", как в text/template по умолчанию.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рендерит произвольное значение.
// Строки внутри map и slice рендерятся рекурсивно, остальные типы
// возвращаются как есть. Ошибка содержит путь до значения (headers.Authorization, items[2]).
func RenderValue(value any, ctx *Context) (any, error) {
	switch v := value.(type) {
	case string:
		return Render(v, ctx)

	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = rendered
		}
		return out, nil

	case map[string]string:
		out := make(map[string]string, len(v))
		for key, val := range v {
			rendered, err := Render(val, ctx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = rendered
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = rendered
		}
		return out, nil

	default:
		return value, nil
	}
}

// RenderConfig рендерит конфигурацию шага.
func RenderConfig(config map[string]any, ctx *Context) (map[string]any, error) {
	if config == nil {
		return make(map[string]any), nil
	}

	rendered, err := RenderValue(config, ctx)
	if err != nil {
		return nil, err
	}

	result, ok := rendered.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrTemplateRender, rendered)
	}

	return result, nil
}
