package steps

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — тип шага не найден в реестре.
	ErrStepNotFound = errors.New("step type not found")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Step — интерфейс для типов шагов.
//
// Каждый тип шага (delay, http, transform) реализует этот интерфейс.
type Step interface {
	// Type возвращает тип шага.
	Type() string

	// Execute выполняет шаг и возвращает результат.
	// Шаг должен проверять ctx.Done() для кооперативной отмены.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// StepID — идентификатор шага.
	StepID string

	// Config — конфигурация шага (уже отрендеренная через engine.RenderConfig).
	Config map[string]any

	// TemplateContext — контекст с результатами предыдущих шагов.
	TemplateContext *engine.Context

	// Progress — callback для промежуточного прогресса. Никогда не nil.
	Progress domain.ProgressFunc

	// Timeout — таймаут выполнения шага.
	// Если 0, используется таймаут по умолчанию.
	Timeout time.Duration
}

// Response — результат выполнения шага.
type Response struct {
	// Message — человекочитаемое сообщение для журнала шага.
	Message string

	// Outputs — выходные данные шага.
	// Доступны в следующих шагах через {{ .Steps.stepID.Outputs.field }}
	Outputs map[string]any
}

// NewRequest создаёт новый Request.
func NewRequest(stepID string, config map[string]any, tmplCtx *engine.Context, progress domain.ProgressFunc) *Request {
	if config == nil {
		config = make(map[string]any)
	}
	if progress == nil {
		progress = func(int) {}
	}
	return &Request{
		StepID:          stepID,
		Config:          config,
		TemplateContext: tmplCtx,
		Progress:        progress,
	}
}

// NewResponse создаёт новый Response.
func NewResponse(message string, outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{
		Message: message,
		Outputs: outputs,
	}
}

// StepFunc — сигнатура Execute в виде функции.
type StepFunc func(ctx context.Context, req *Request) (*Response, error)

// funcStep — Step поверх обычной функции.
type funcStep struct {
	typ string
	fn  StepFunc
}

// NewFuncStep создаёт Step из функции.
// Удобно для регистрации собственных типов шагов без отдельной структуры.
func NewFuncStep(stepType string, fn StepFunc) Step {
	return &funcStep{typ: stepType, fn: fn}
}

func (s *funcStep) Type() string { return s.typ }

func (s *funcStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	return s.fn(ctx, req)
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
// Строки (результат рендеринга шаблонов) парсятся как целые числа.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i
			}
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		}
	}
	return defaultVal
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
