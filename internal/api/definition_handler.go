package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// ListDefinitions возвращает список определений.
// GET /api/v1/definitions
func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.definitions.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]DefinitionSummary, len(defs))
	for i := range defs {
		result[i] = DefinitionSummaryFromDomain(&defs[i], h.orchestrator.IsActive(defs[i].ID))
	}

	List(w, result, len(result))
}

// GetDefinition возвращает определение по ID.
// GET /api/v1/definitions/{id}
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := h.definitions.Get(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "definition not found") {
		return
	}

	Success(w, def)
}

// PutDefinition создаёт или заменяет определение.
// PUT /api/v1/definitions/{id}
//
// Определение валидируется так же, как при запуске: некорректное
// определение отклоняется с 422 и не сохраняется.
func (h *Handler) PutDefinition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var def domain.PipelineDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if def.ID == "" {
		def.ID = id
	}
	if def.ID != id {
		BadRequest(w, fmt.Sprintf("definition id %q does not match path %q", def.ID, id))
		return
	}

	if err := engine.Validate(&def, h.orchestrator.Registry()); HandleError(w, h.logger, err, "") {
		return
	}
	if err := scheduler.ValidateSchedule(def.Schedule); HandleError(w, h.logger, err, "") {
		return
	}

	if err := h.definitions.Save(r.Context(), &def); HandleError(w, h.logger, err, "") {
		return
	}

	// расписание могло измениться: время запуска будет вычислено заново
	h.resetSchedule(r, id)

	h.logger.Info("definition saved", "definition_id", id, "steps", len(def.Steps))
	Success(w, def)
}

// DeleteDefinition удаляет определение.
// DELETE /api/v1/definitions/{id}
//
// История и последний run определения сохраняются.
func (h *Handler) DeleteDefinition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.definitions.Delete(r.Context(), id); HandleError(w, h.logger, err, "definition not found") {
		return
	}

	h.resetSchedule(r, id)

	h.logger.Info("definition deleted", "definition_id", id)
	NoContent(w)
}

func (h *Handler) resetSchedule(r *http.Request, defID string) {
	if h.schedules == nil {
		return
	}
	if err := h.schedules.Delete(r.Context(), defID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		h.logger.Warn("failed to reset schedule state", "definition_id", defID, "error", err)
	}
}
