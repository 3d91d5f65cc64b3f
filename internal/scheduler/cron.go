package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// cronParser — парсер cron-выражений (5 полей, дескрипторы вида @daily).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время запуска после from.
// Cron-выражение вычисляется в часовом поясе расписания, результат в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	fromInTz := from.In(sched.Location())

	if sched.IsCron() {
		schedule, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: parse cron expression %q: %v", ErrInvalidSchedule, sched.CronExpr, err)
		}
		return schedule.Next(fromInTz).UTC(), nil
	}

	if sched.IsInterval() {
		return fromInTz.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: neither cron_expr nor interval_sec is set", ErrInvalidSchedule)
}

// ValidateSchedule проверяет расписание определения.
// nil-расписание валидно.
func ValidateSchedule(sched *domain.Schedule) error {
	if sched == nil {
		return nil
	}
	if sched.IntervalSec < 0 {
		return fmt.Errorf("%w: negative interval_sec", ErrInvalidSchedule)
	}
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, sched.Timezone)
		}
	}
	_, err := CalculateNextDue(sched, time.Now())
	return err
}
