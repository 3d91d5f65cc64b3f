// Package orchestrator выполняет pipeline.
//
// Orchestrator отвечает за:
//   - Валидацию определения и создание PipelineRun
//   - Последовательное выполнение шагов (одна горутина на run)
//   - Учёт прогресса шагов и взвешенного общего прогресса
//   - Уведомление подписчиков после каждого изменения run
//   - Кооперативную отмену через context
//   - Сохранение снимков run в хранилище в контрольных точках
//
// Пример:
//
//	o := orchestrator.New(orchestrator.Config{Runs: runRepo})
//	h, err := o.StartRun(ctx, def, orchestrator.StartOptions{})
//	if err != nil {
//	    // *engine.InvalidDefinitionError
//	}
//	unsubscribe := h.Subscribe(func(run domain.PipelineRun) {
//	    fmt.Println(run.Status, run.Progress)
//	})
//	defer unsubscribe()
//	final, _ := h.Wait(ctx)
package orchestrator
