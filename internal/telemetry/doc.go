// Package telemetry — логи и метрики сервисов Conveyor.
//
// Логи: slog, JSON или text (LOG_FORMAT), уровень из LOG_LEVEL.
// Компоненты получают *slog.Logger через Config и добавляют к нему
// run_id, definition_id и step_id.
//
// Метрики: Prometheus, у каждого процесса свой реестр (NewMetrics).
// conveyor-api отдаёт метрики runs и HTTP запросов на /metrics,
// conveyor-notifier отдаёт на /metrics стандартные метрики процесса.
package telemetry
