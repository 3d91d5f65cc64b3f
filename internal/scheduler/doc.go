// Package scheduler запускает pipeline по расписанию.
//
// Расписание задаётся в определении (domain.Schedule): cron-выражение
// или интервал в секундах. Время следующего запуска хранится в
// repo.ScheduleRepo и переживает рестарт.
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Definitions: definitionRepo,
//	    Schedules:   scheduleRepo,
//	    Runs:        orch,
//	    Logger:      logger,
//	})
//	go sched.Run(ctx, time.Second)
//
// Если предыдущий run определения ещё выполняется, очередной запуск
// пропускается.
package scheduler
