// Package cli реализует инструмент командной строки Conveyor.
//
// CLI работает только через HTTP API и не импортирует внутренние пакеты
// сервиса: типы ответов продублированы в client.go.
//
// # Client
//
// HTTP-клиент для API. Разбирает конверты {"data": ...} и
// {"error": {...}}, ошибки API возвращает как *APIError.
// WatchRun читает поток Server-Sent Events с снимками run.
//
//	client := cli.NewClient("http://localhost:8080")
//	defs, err := client.ListDefinitions()
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения в stderr:
//
//	conveyor run history deploy-bot --json | jq .
//
// # Commands
//
//   - definition: list, show, apply -f FILE, delete, schedule show|enable|disable
//   - run: list, start [--watch], show, cancel, latest, discard, history, watch
//
// Группы создаются фабриками (NewDefinitionCmd, NewRunCmd), которые
// принимают clientFn и outputFn: Client и Output создаются после
// разбора persistent флагов.
package cli
