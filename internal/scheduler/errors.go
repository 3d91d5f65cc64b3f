package scheduler

import "errors"

// ErrInvalidSchedule — расписание не содержит корректного cron или интервала.
var ErrInvalidSchedule = errors.New("invalid schedule")
