package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// defaultStoreTimeout — таймаут записи контрольной точки в хранилище.
const defaultStoreTimeout = 5 * time.Second

// Orchestrator выполняет pipeline.
//
// Каждый run выполняется в своей горутине, шаги внутри run строго
// последовательны. Независимые run выполняются параллельно и разделяют
// только хранилище.
type Orchestrator struct {
	// Repositories (могут быть nil — тогда run не сохраняются)
	definitions *repo.DefinitionRepo
	runs        *repo.RunRepo

	registry  *steps.Registry
	listeners []domain.Listener
	metrics   *telemetry.Metrics
	env       map[string]string

	stepTimeout  time.Duration
	storeTimeout time.Duration

	// Active runs — runs в процессе выполнения (runID → state)
	activeRuns map[uuid.UUID]*RunState
	mu         sync.RWMutex
	stopped    bool

	// Lifecycle
	logger    *slog.Logger
	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Repositories
	Definitions *repo.DefinitionRepo
	Runs        *repo.RunRepo

	// Registry — типы шагов для определений без Action.
	// По умолчанию steps.DefaultRegistry().
	Registry *steps.Registry

	// Listeners подписываются на каждый run до его старта
	// (публикация событий, метрики, журналирование).
	Listeners []domain.Listener

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Env — переменные, доступные шаблонам как {{ .Env.NAME }}.
	Env map[string]string

	// StepTimeout — таймаут одного шага (0 — без таймаута).
	StepTimeout time.Duration

	// StoreTimeout — таймаут записи в хранилище (default: 5s).
	StoreTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// StartOptions — параметры запуска run.
type StartOptions struct {
	// Inputs дополняют и переопределяют Inputs определения.
	Inputs map[string]any

	// Listeners подписываются до первой мутации run
	// и получают все уведомления, включая переход в RUNNING.
	Listeners []domain.Listener
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		definitions:  cfg.Definitions,
		runs:         cfg.Runs,
		registry:     registry,
		listeners:    cfg.Listeners,
		metrics:      cfg.Metrics,
		env:          cfg.Env,
		stepTimeout:  cfg.StepTimeout,
		storeTimeout: storeTimeout,
		activeRuns:   make(map[uuid.UUID]*RunState),
		logger:       logger,
		baseCtx:      ctx,
		cancelAll:    cancel,
	}
}

// Registry возвращает реестр типов шагов.
func (o *Orchestrator) Registry() *steps.Registry {
	return o.registry
}

// StartRun валидирует определение и запускает новый run.
//
// Для структурно некорректного определения синхронно возвращает
// *engine.InvalidDefinitionError, run при этом не создаётся.
// ctx ограничивает только синхронную часть (запись стартового снимка):
// run живёт до завершения, Cancel или Stop.
func (o *Orchestrator) StartRun(ctx context.Context, def *domain.PipelineDefinition, opts StartOptions) (*Handle, error) {
	if err := engine.Validate(def, o.registry); err != nil {
		return nil, err
	}

	def = def.Clone()
	inputs := make(map[string]any, len(def.Inputs)+len(opts.Inputs))
	maps.Copy(inputs, def.Inputs)
	maps.Copy(inputs, opts.Inputs)

	run := domain.NewPipelineRun(def, inputs)

	tmpl := engine.NewContext(inputs)
	for k, v := range o.env {
		tmpl.SetEnv(k, v)
	}

	logger := telemetry.WithRunID(telemetry.WithDefinitionID(o.logger, def.ID), run.ID.String())
	state := newRunState(def, run, tmpl, logger)
	for _, l := range o.listeners {
		state.subscribe(l)
	}
	for _, l := range opts.Listeners {
		state.subscribe(l)
	}

	runCtx, cancel := context.WithCancel(o.baseCtx)
	state.cancel = cancel

	if err := o.addActiveRun(state); err != nil {
		cancel()
		return nil, err
	}

	state.start(time.Now().UTC())
	o.metrics.RunStarted()
	o.checkpoint(ctx, state, false)

	logger.Info("run started", "steps", len(def.Steps))

	o.wg.Add(1)
	go o.execute(runCtx, state)

	return &Handle{state: state}, nil
}

// StartByID загружает определение из хранилища и запускает run.
func (o *Orchestrator) StartByID(ctx context.Context, defID string, opts StartOptions) (*Handle, error) {
	if o.definitions == nil {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, defID)
	}

	def, err := o.definitions.Get(ctx, defID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, defID)
		}
		return nil, fmt.Errorf("get definition: %w", err)
	}

	return o.StartRun(ctx, def, opts)
}

// Lookup возвращает Handle активного run.
func (o *Orchestrator) Lookup(runID uuid.UUID) (*Handle, bool) {
	state := o.getActiveRun(runID)
	if state == nil {
		return nil, false
	}
	return &Handle{state: state}, true
}

// Get возвращает снимок run: активного из памяти, завершённого из хранилища.
func (o *Orchestrator) Get(ctx context.Context, runID uuid.UUID) (domain.PipelineRun, error) {
	if state := o.getActiveRun(runID); state != nil {
		return state.Snapshot(), nil
	}

	if o.runs == nil {
		return domain.PipelineRun{}, ErrRunNotFound
	}

	run, err := o.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.PipelineRun{}, ErrRunNotFound
		}
		return domain.PipelineRun{}, fmt.Errorf("get run: %w", err)
	}
	return *run, nil
}

// Cancel отменяет активный run по ID.
//
// Для завершённого run возвращает ErrAlreadyFinished,
// для неизвестного — ErrRunNotFound.
func (o *Orchestrator) Cancel(ctx context.Context, runID uuid.UUID) error {
	if state := o.getActiveRun(runID); state != nil {
		return state.requestCancel()
	}

	if _, err := o.Get(ctx, runID); err != nil {
		return err
	}
	return ErrAlreadyFinished
}

// IsActive проверяет, есть ли у определения выполняющийся run.
func (o *Orchestrator) IsActive(defID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, state := range o.activeRuns {
		if state.DefinitionID() == defID {
			return true
		}
	}
	return false
}

// ActiveRuns возвращает снимки активных runs, отсортированные по времени старта.
func (o *Orchestrator) ActiveRuns() []domain.PipelineRun {
	o.mu.RLock()
	states := make([]*RunState, 0, len(o.activeRuns))
	for _, state := range o.activeRuns {
		states = append(states, state)
	}
	o.mu.RUnlock()

	runs := make([]domain.PipelineRun, 0, len(states))
	for _, state := range states {
		runs = append(runs, state.Snapshot())
	}
	sort.Slice(runs, func(i, j int) bool {
		a, b := runs[i].StartedAt, runs[j].StartedAt
		if a == nil || b == nil {
			return b != nil
		}
		return a.Before(*b)
	})
	return runs
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// Stop отменяет все активные runs и ждёт их завершения.
// После Stop новые runs не запускаются.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	states := make([]*RunState, 0, len(o.activeRuns))
	for _, state := range o.activeRuns {
		states = append(states, state)
	}
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator...", "active_runs", len(states))

	for _, state := range states {
		_ = state.requestCancel()
	}
	o.cancelAll()

	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// getActiveRun возвращает активный RunState.
func (o *Orchestrator) getActiveRun(runID uuid.UUID) *RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.activeRuns[runID]
}

// addActiveRun добавляет run в активные.
func (o *Orchestrator) addActiveRun(state *RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return ErrOrchestratorStopped
	}
	o.activeRuns[state.RunID()] = state
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// checkpoint сохраняет снимок run. Ошибки хранилища только логируются.
func (o *Orchestrator) checkpoint(ctx context.Context, state *RunState, final bool) {
	if o.runs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.storeTimeout)
	defer cancel()

	snapshot := state.Snapshot()
	if err := o.runs.SaveLatest(ctx, &snapshot); err != nil {
		state.logger.Error("failed to save run snapshot", "error", err)
	}

	if final {
		if err := o.runs.AppendHistory(ctx, &snapshot); err != nil {
			state.logger.Error("failed to append run history", "error", err)
		}
	}
}
