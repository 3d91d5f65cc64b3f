package domain

import (
	"context"
	"time"
)

// ProgressFunc — callback, через который action сообщает прогресс шага (0–100).
//
// Значения вне диапазона обрезаются движком, уменьшение прогресса игнорируется.
type ProgressFunc func(percent int)

// Action — асинхронная единица работы шага.
//
// Action должен проверять ctx.Done() для кооперативной отмены.
// Возвращает человекочитаемое сообщение об успехе или ошибку.
type Action func(ctx context.Context, progress ProgressFunc) (string, error)

// PipelineDefinition — определение pipeline.
//
// Это "рецепт" многошаговой операции: деплой бота, упаковка репозитория,
// скрипт первичной настройки, прогон тестов. Каждый запуск (PipelineRun)
// выполняет шаги строго по порядку.
type PipelineDefinition struct {
	// ID — стабильный идентификатор определения (например, "deploy-bot").
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty"`

	// Description — описание назначения pipeline.
	Description string `json:"description,omitempty"`

	// Inputs — входные параметры по умолчанию.
	// Доступны в конфигурации шагов через {{ .Inputs.param }}.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Steps — упорядоченный список шагов.
	// Порядок в слайсе = порядок выполнения.
	Steps []StepSpec `json:"steps"`

	// Schedule — расписание автоматического запуска (опционально).
	Schedule *Schedule `json:"schedule,omitempty"`

	// CreatedAt — время создания определения.
	CreatedAt time.Time `json:"created_at,omitempty"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// StepSpec — определение шага pipeline.
//
// Шаг задаётся одним из двух способов:
//   - Action — произвольная функция (для встраивания движка в код)
//   - Type + Config — зарегистрированный тип шага (для определений, хранимых в JSON)
//
// Если задан Action, Type и Config игнорируются.
type StepSpec struct {
	// ID — уникальный идентификатор шага в рамках определения.
	ID string `json:"id"`

	// Title — заголовок шага для отображения.
	Title string `json:"title,omitempty"`

	// Description — описание шага.
	Description string `json:"description,omitempty"`

	// Type — тип шага из реестра: "delay", "http", "transform".
	Type string `json:"type,omitempty"`

	// Config — конфигурация шага (зависит от типа).
	// Строковые значения рендерятся как Go templates перед запуском шага.
	Config map[string]any `json:"config,omitempty"`

	// Weight — относительный вклад шага в общий прогресс.
	// 0 означает значение по умолчанию (1).
	Weight float64 `json:"weight,omitempty"`

	// Action — функция шага. Не сериализуется.
	Action Action `json:"-"`
}

// EffectiveWeight возвращает вес шага с учётом значения по умолчанию.
func (s *StepSpec) EffectiveWeight() float64 {
	if s.Weight == 0 {
		return 1
	}
	return s.Weight
}

// DisplayName возвращает Title, а если он пуст — ID.
func (s *StepSpec) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.ID
}

// Clone возвращает копию определения.
//
// Слайс шагов и карты верхнего уровня копируются, поэтому изменение
// исходного определения после старта run не влияет на выполнение.
func (d *PipelineDefinition) Clone() *PipelineDefinition {
	if d == nil {
		return nil
	}
	c := *d
	c.Inputs = cloneMap(d.Inputs)
	c.Steps = make([]StepSpec, len(d.Steps))
	for i, step := range d.Steps {
		step.Config = cloneMap(step.Config)
		c.Steps[i] = step
	}
	if d.Schedule != nil {
		sched := *d.Schedule
		c.Schedule = &sched
	}
	return &c
}

// StepIndex возвращает индекс шага по ID или -1.
func (d *PipelineDefinition) StepIndex(stepID string) int {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// cloneMap рекурсивно копирует map[string]any и вложенные map/slice.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
