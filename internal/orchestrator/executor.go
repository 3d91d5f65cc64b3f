package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/steps"
)

// execute выполняет шаги run по порядку до первой ошибки или отмены.
func (o *Orchestrator) execute(ctx context.Context, state *RunState) {
	defer o.wg.Done()
	defer close(state.done)
	defer state.cancel()

	for idx := range state.def.Steps {
		if state.failIfCancelled(idx, time.Now().UTC()) {
			break
		}

		outcome := o.runStep(ctx, state, idx)
		if outcome != outcomeCompleted {
			break
		}

		// последний шаг уже завершил run, финальная точка ниже
		if idx < len(state.def.Steps)-1 {
			o.checkpoint(ctx, state, false)
		}
	}

	final := state.Snapshot()
	o.checkpoint(ctx, state, true)
	o.removeActiveRun(final.ID)
	o.metrics.RunFinished(string(final.Status), final.Cancelled)

	state.logger.Info("run finished",
		"status", final.Status,
		"progress", final.Progress,
		"cancelled", final.Cancelled,
		"failed_step", final.FailedStep,
		"duration", final.Duration(),
	)
}

// runStep выполняет один шаг и фиксирует его результат.
func (o *Orchestrator) runStep(ctx context.Context, state *RunState, idx int) stepOutcome {
	spec := &state.def.Steps[idx]
	logger := state.logger.With("step_id", spec.ID)

	started := time.Now().UTC()
	state.startStep(idx, started)
	logger.Debug("step started", "type", spec.Type)

	stepCtx := ctx
	if o.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
		defer cancel()
	}

	progress := func(percent int) {
		state.reportProgress(idx, percent)
	}

	message, outputs, err := o.invoke(stepCtx, state, spec, progress)
	if message == "" {
		message = "step completed"
	}

	finished := time.Now().UTC()
	outcome := state.finishStep(idx, finished, message, err)

	switch outcome {
	case outcomeCompleted:
		state.tmpl.AddStepResult(spec.ID, message, outputs, string(domain.StepStatusCompleted))
		logger.Info("step completed", "message", message, "duration", finished.Sub(started))
		o.metrics.StepFinished(string(domain.StepStatusCompleted), finished.Sub(started))
	case outcomeCancelled:
		logger.Info("step cancelled", "duration", finished.Sub(started))
		o.metrics.StepFinished(string(domain.StepStatusFailed), finished.Sub(started))
	case outcomeFailed:
		logger.Warn("step failed", "error", err, "duration", finished.Sub(started))
		o.metrics.StepFinished(string(domain.StepStatusFailed), finished.Sub(started))
	}

	return outcome
}

// invoke вызывает Action шага или зарегистрированный тип шага.
// Паника внутри шага превращается в ошибку шага.
func (o *Orchestrator) invoke(ctx context.Context, state *RunState, spec *domain.StepSpec, progress domain.ProgressFunc) (message string, outputs map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanicked, r)
		}
	}()

	if spec.Action != nil {
		message, err = spec.Action(ctx, progress)
		return message, nil, err
	}

	step, err := o.registry.Get(spec.Type)
	if err != nil {
		return "", nil, err
	}

	config, err := engine.RenderConfig(spec.Config, state.tmpl)
	if err != nil {
		return "", nil, fmt.Errorf("render config: %w", err)
	}

	req := steps.NewRequest(spec.ID, config, state.tmpl, progress)
	req.Timeout = o.stepTimeout

	resp, err := step.Execute(ctx, req)
	if err != nil {
		return "", nil, err
	}
	return resp.Message, resp.Outputs, nil
}
