package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/orchestrator"
)

// StartRun запускает run определения.
// POST /api/v1/definitions/{id}/runs
//
// Тело запроса необязательно. Возвращает 201 со снимком run
// в статусе RUNNING.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	handle, err := h.orchestrator.StartByID(r.Context(), r.PathValue("id"), orchestrator.StartOptions{
		Inputs: req.Inputs,
	})
	if HandleError(w, h.logger, err, "definition not found") {
		return
	}

	Created(w, handle.Snapshot())
}

// GetLatestRun возвращает последний run определения.
// GET /api/v1/definitions/{id}/runs/latest
func (h *Handler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetLatest(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "no runs for definition") {
		return
	}

	// для активного run снимок в памяти свежее контрольной точки
	if handle, ok := h.orchestrator.Lookup(run.ID); ok {
		Success(w, handle.Snapshot())
		return
	}

	Success(w, run)
}

// DiscardLatestRun удаляет последний run определения.
// DELETE /api/v1/definitions/{id}/runs/latest
//
// Выполняющийся run удалить нельзя (409).
func (h *Handler) DiscardLatestRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if h.orchestrator.IsActive(id) {
		Conflict(w, "run is in progress")
		return
	}

	if err := h.runs.Discard(r.Context(), id); HandleError(w, h.logger, err, "no runs for definition") {
		return
	}

	NoContent(w)
}

// ListRunHistory возвращает историю runs определения (новые первыми).
// GET /api/v1/definitions/{id}/runs/history
func (h *Handler) ListRunHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.runs.History(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "") {
		return
	}

	List(w, history, len(history))
}

// ListActiveRuns возвращает выполняющиеся runs.
// GET /api/v1/runs
func (h *Handler) ListActiveRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.orchestrator.ActiveRuns()
	List(w, runs, len(runs))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRunID(w, r)
	if !ok {
		return
	}

	run, err := h.orchestrator.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, run)
}

// CancelRun запрашивает отмену run.
// POST /api/v1/runs/{id}/cancel
//
// Отмена кооперативная: ответ 202 содержит снимок на момент запроса,
// финальное состояние видно через GET или поток событий.
// Для завершённого run возвращает 409.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRunID(w, r)
	if !ok {
		return
	}

	if err := h.orchestrator.Cancel(r.Context(), id); HandleError(w, h.logger, err, "run not found") {
		return
	}

	run, err := h.orchestrator.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "run not found") {
		return
	}

	h.logger.Info("run cancel requested", "run_id", id)
	Accepted(w, run)
}

// Health — проверка живости.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	Success(w, map[string]any{
		"status":      "ok",
		"active_runs": h.orchestrator.ActiveRunsCount(),
	})
}

// parseRunID извлекает ID run из пути. При ошибке отправляет 400.
func parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}
