package api

import (
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Definition DTOs

// DefinitionSummary — краткое описание определения для списка.
type DefinitionSummary struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Steps       int              `json:"steps"`
	Schedule    *domain.Schedule `json:"schedule,omitempty"`
	Active      bool             `json:"active"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// DefinitionSummaryFromDomain конвертирует определение в DefinitionSummary.
func DefinitionSummaryFromDomain(d *domain.PipelineDefinition, active bool) DefinitionSummary {
	return DefinitionSummary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Steps:       len(d.Steps),
		Schedule:    d.Schedule,
		Active:      active,
		UpdatedAt:   d.UpdatedAt,
	}
}

// Run DTOs

// StartRunRequest — запрос на запуск run.
type StartRunRequest struct {
	// Inputs дополняют Inputs определения.
	Inputs map[string]any `json:"inputs,omitempty"`
}

// Schedule DTOs

// ScheduleResponse — расписание определения и его состояние.
type ScheduleResponse struct {
	DefinitionID string           `json:"definition_id"`
	Schedule     *domain.Schedule `json:"schedule"`
	NextDueAt    *time.Time       `json:"next_due_at,omitempty"`
	LastRunAt    *time.Time       `json:"last_run_at,omitempty"`
	LastRunID    string           `json:"last_run_id,omitempty"`
}

// ScheduleFromDomain собирает ScheduleResponse. state может быть nil.
func ScheduleFromDomain(def *domain.PipelineDefinition, state *domain.ScheduleState) ScheduleResponse {
	resp := ScheduleResponse{
		DefinitionID: def.ID,
		Schedule:     def.Schedule,
	}
	if state != nil {
		next := state.NextDueAt
		resp.NextDueAt = &next
		resp.LastRunAt = state.LastRunAt
		if state.LastRunID != nil {
			resp.LastRunID = state.LastRunID.String()
		}
	}
	return resp
}

// SetEnabledRequest — запрос на включение/выключение расписания.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}
