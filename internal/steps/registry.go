package steps

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry — реестр типов шагов.
//
// Определения pipeline, сохранённые в JSON, ссылаются на шаги по типу;
// оркестратор находит реализацию здесь. Потокобезопасен.
// Реализует engine.StepTypes.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными шагами:
// delay, http, transform.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewDelayStep())
	r.Register(NewHTTPStep())
	r.Register(NewTransformStep())
	return r
}

// Register регистрирует шаг в реестре.
// Шаг с тем же типом перезаписывается, что позволяет подменять
// стандартные реализации (например, http в тестах).
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Type()] = step
}

// RegisterFunc регистрирует функцию как шаг указанного типа.
func (r *Registry) RegisterFunc(stepType string, fn StepFunc) {
	r.Register(NewFuncStep(stepType, fn))
}

// Get возвращает шаг по типу.
// Возвращает ErrStepNotFound, если шаг не найден.
func (r *Registry) Get(stepType string) (Step, error) {
	r.mu.RLock()
	step, ok := r.steps[stepType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, stepType)
	}
	return step, nil
}

// Has сообщает, известен ли тип. Используется engine.Validate.
func (r *Registry) Has(stepType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.steps[stepType]
	return ok
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.steps))
}

// Len возвращает количество зарегистрированных шагов.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}
