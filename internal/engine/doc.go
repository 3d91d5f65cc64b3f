// Package engine содержит не зависящую от исполнения логику pipeline.
//
// Включает:
//   - validate.go — валидация и парсинг PipelineDefinition из JSON
//   - progress.go — ограничение прогресса и взвешенный общий прогресс
//   - template.go — рендеринг Go templates в конфигурации шагов ({{ .Inputs.x }})
//
// Само выполнение шагов находится в пакете orchestrator.
package engine
