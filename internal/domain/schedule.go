package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматического запуска pipeline.
//
// Schedule позволяет запускать pipeline:
// - По cron-выражению: "0 3 * * *" (ночной прогон тестов)
// - По интервалу: каждые N секунд
type Schedule struct {
	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию UTC.
	Timezone string `json:"timezone,omitempty"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled"`

	// Inputs — входные параметры, передаваемые в каждый запуск.
	Inputs map[string]any `json:"inputs,omitempty"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// Location возвращает часовой пояс расписания (UTC при ошибке).
func (s *Schedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScheduleState — состояние расписания между тиками планировщика.
type ScheduleState struct {
	// DefinitionID — определение, которому принадлежит расписание.
	DefinitionID string `json:"definition_id"`

	// NextDueAt — время следующего запуска (UTC).
	NextDueAt time.Time `json:"next_due_at"`

	// LastRunAt — время последнего запуска по расписанию.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — ID последнего созданного run.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`
}

// RecordRun фиксирует запуск и следующее время выполнения.
func (s *ScheduleState) RecordRun(runID uuid.UUID, at, nextDue time.Time) {
	s.LastRunAt = &at
	s.LastRunID = &runID
	s.NextDueAt = nextDue
}
