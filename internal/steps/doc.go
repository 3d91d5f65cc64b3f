// Package steps содержит реализации типов шагов pipeline.
//
// # Обзор
//
// Шаг получает конфигурацию, уже отрендеренную через engine.RenderConfig,
// выполняет действие и возвращает сообщение для журнала и outputs,
// доступные следующим шагам через {{ .Steps.<id>.Outputs }}.
//
// Промежуточный прогресс шаг сообщает через Request.Progress. Значения
// вне 0..100 и уменьшение прогресса отбрасывает оркестратор, шагу
// проверять это не нужно.
//
// # Registry
//
//	registry := steps.DefaultRegistry() // delay, http, transform
//	registry.RegisterFunc("build", func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
//	    req.Progress(50)
//	    return steps.NewResponse("image built", nil), nil
//	})
//
// # Типы шагов
//
//   - delay     — пауза с равномерным прогрессом, может завершиться ошибкой (fail_message)
//   - http      — HTTP запрос, статус >= 400 означает ошибку
//   - transform — вычисление outputs по шаблонам
//
// # Отмена
//
// Шаги проверяют ctx.Done() и возвращают ошибку, обёрнутую в
// ErrStepCancelled. Повторных попыток нет: ошибка шага завершает run.
package steps
