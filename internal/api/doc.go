// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (репозитории, orchestrator, metrics, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, metrics, recovery)
//   - response.go           — унифицированные JSON-ответы и отображение ошибок в HTTP
//   - dto.go                — Data Transfer Objects (request/response)
//   - definition_handler.go — обработчики для /definitions
//   - run_handler.go        — запуск, чтение и отмена runs
//   - schedule_handler.go   — расписание определения
//   - events.go             — поток снимков run (Server-Sent Events)
//
// Ответы: {"data": ...} или {"error": {"code": ..., "message": ...}}.
package api
