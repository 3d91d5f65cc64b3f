// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий run
//   - sink.go       — слушатель run, превращающий смены статусов в события
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений (совпадают с routing keys):
//   - run.started    — run перешёл в RUNNING
//   - step.finished  — шаг завершился (успешно, с ошибкой или отменой)
//   - run.finished   — run завершён
//
// Exchanges:
//   - conveyor.runs  — события runs (topic)
//   - conveyor.dlq   — dead letter queue
package mq
