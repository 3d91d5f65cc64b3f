package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// GetSchedule возвращает расписание определения и время следующего запуска.
// GET /api/v1/definitions/{id}/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	def, err := h.definitions.Get(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "definition not found") {
		return
	}

	if def.Schedule == nil {
		NotFound(w, "definition has no schedule")
		return
	}

	var state *domain.ScheduleState
	if h.schedules != nil {
		state, err = h.schedules.Get(r.Context(), def.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	Success(w, ScheduleFromDomain(def, state))
}

// SetScheduleEnabled включает или выключает расписание.
// PUT /api/v1/definitions/{id}/schedule/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	def, err := h.definitions.Get(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "definition not found") {
		return
	}

	if def.Schedule == nil {
		NotFound(w, "definition has no schedule")
		return
	}

	def.Schedule.Enabled = req.Enabled
	if err := h.definitions.Save(r.Context(), def); HandleError(w, h.logger, err, "") {
		return
	}
	h.resetSchedule(r, def.ID)

	h.logger.Info("schedule toggled", "definition_id", def.ID, "enabled", req.Enabled)
	Success(w, ScheduleFromDomain(def, nil))
}
