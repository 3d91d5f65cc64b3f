package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// Handle — управление запущенным run.
type Handle struct {
	state *RunState
}

// RunID возвращает ID run.
func (h *Handle) RunID() uuid.UUID {
	return h.state.RunID()
}

// DefinitionID возвращает ID определения.
func (h *Handle) DefinitionID() string {
	return h.state.DefinitionID()
}

// Cancel запрашивает кооперативную отмену run.
//
// Выполняющийся шаг получает отмену через context. Когда action
// вернёт управление, шаг станет FAILED с ошибкой domain.ErrCancelled,
// следующие шаги не запустятся.
//
// Для завершённого run возвращает ErrAlreadyFinished.
func (h *Handle) Cancel() error {
	return h.state.requestCancel()
}

// Subscribe регистрирует слушателя изменений run.
//
// Слушатель вызывается синхронно после каждой мутации и получает
// полный снимок run. Возвращает функцию отписки, которую можно
// вызвать в том числе изнутри слушателя.
func (h *Handle) Subscribe(listener domain.Listener) (unsubscribe func()) {
	return h.state.subscribe(listener)
}

// Snapshot возвращает копию текущего состояния run.
func (h *Handle) Snapshot() domain.PipelineRun {
	return h.state.Snapshot()
}

// Done возвращает канал, закрываемый после завершения run
// и записи финального снимка в хранилище.
func (h *Handle) Done() <-chan struct{} {
	return h.state.done
}

// Wait ждёт завершения run и возвращает финальный снимок.
func (h *Handle) Wait(ctx context.Context) (domain.PipelineRun, error) {
	select {
	case <-h.state.done:
		return h.state.Snapshot(), nil
	case <-ctx.Done():
		return h.state.Snapshot(), ctx.Err()
	}
}
