package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCalculateNextDue(t *testing.T) {
	from := time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		sched    domain.Schedule
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "interval",
			sched:    domain.Schedule{IntervalSec: 90},
			expected: from.Add(90 * time.Second),
		},
		{
			name:     "cron nightly",
			sched:    domain.Schedule{CronExpr: "0 3 * * *"},
			expected: time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			name:     "cron descriptor",
			sched:    domain.Schedule{CronExpr: "@hourly"},
			expected: time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			name:     "cron in timezone",
			sched:    domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"},
			expected: time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC),
		},
		{
			name:     "cron takes precedence over interval",
			sched:    domain.Schedule{CronExpr: "0 3 * * *", IntervalSec: 10},
			expected: time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			name:    "invalid cron",
			sched:   domain.Schedule{CronExpr: "every day"},
			wantErr: true,
		},
		{
			name:    "empty",
			sched:   domain.Schedule{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(&tt.sched, from)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSchedule) {
					t.Errorf("expected ErrInvalidSchedule, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule(nil); err != nil {
		t.Errorf("nil schedule should be valid: %v", err)
	}
	if err := ValidateSchedule(&domain.Schedule{CronExpr: "*/5 * * * *"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateSchedule(&domain.Schedule{IntervalSec: 60, Timezone: "Mars/Olympus"}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for unknown timezone, got %v", err)
	}
	if err := ValidateSchedule(&domain.Schedule{IntervalSec: -1}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for negative interval, got %v", err)
	}
}

// fakeClock — управляемое время.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	defs      *repo.DefinitionRepo
	schedules *repo.ScheduleRepo
	orch      *orchestrator.Orchestrator
	clock     *fakeClock
	sched     *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repo.NewMemoryStore()
	f := &fixture{
		defs:      repo.NewDefinitionRepo(store),
		schedules: repo.NewScheduleRepo(store),
		clock:     &fakeClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)},
	}
	f.orch = orchestrator.New(orchestrator.Config{
		Definitions: f.defs,
		Runs:        repo.NewRunRepo(store, 0),
		Logger:      discardLogger,
	})
	t.Cleanup(f.orch.Stop)

	f.sched = New(Config{
		Definitions: f.defs,
		Schedules:   f.schedules,
		Runs:        f.orch,
		Logger:      discardLogger,
		Now:         f.clock.Now,
	})
	return f
}

func (f *fixture) save(t *testing.T, id string, durationMs int, sched *domain.Schedule) {
	t.Helper()
	def := &domain.PipelineDefinition{
		ID:       id,
		Schedule: sched,
		Steps: []domain.StepSpec{
			{ID: "wait", Type: "delay", Config: map[string]any{"duration_ms": durationMs, "ticks": 1}},
		},
	}
	if err := f.defs.Save(context.Background(), def); err != nil {
		t.Fatalf("save definition: %v", err)
	}
}

func (f *fixture) tick(t *testing.T) int {
	t.Helper()
	started, err := f.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	return started
}

func waitIdle(t *testing.T, orch *orchestrator.Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for orch.ActiveRunsCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("runs did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTick_StartsDueRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.save(t, "nightly", 1, &domain.Schedule{IntervalSec: 60, Enabled: true, Inputs: map[string]any{"suite": "smoke"}})
	f.save(t, "disabled", 1, &domain.Schedule{IntervalSec: 60})
	f.save(t, "manual", 1, nil)

	// первый тик только фиксирует время следующего запуска
	if n := f.tick(t); n != 0 {
		t.Fatalf("first tick should not start runs, started %d", n)
	}
	state, err := f.schedules.Get(ctx, "nightly")
	if err != nil {
		t.Fatalf("schedule state should be saved: %v", err)
	}
	if !state.NextDueAt.Equal(f.clock.Now().Add(time.Minute)) {
		t.Errorf("unexpected next due: %v", state.NextDueAt)
	}
	if _, err := f.schedules.Get(ctx, "disabled"); !errors.Is(err, repo.ErrNotFound) {
		t.Error("disabled schedule should be ignored")
	}

	f.clock.Advance(30 * time.Second)
	if n := f.tick(t); n != 0 {
		t.Errorf("schedule is not due yet, started %d", n)
	}

	f.clock.Advance(30 * time.Second)
	if n := f.tick(t); n != 1 {
		t.Fatalf("expected 1 run, started %d", n)
	}

	state, _ = f.schedules.Get(ctx, "nightly")
	if state.LastRunID == nil || state.LastRunAt == nil {
		t.Fatal("schedule state should record the run")
	}
	if !state.NextDueAt.Equal(f.clock.Now().Add(time.Minute)) {
		t.Errorf("next due should move forward, got %v", state.NextDueAt)
	}

	waitIdle(t, f.orch)

	run, err := f.orch.Get(ctx, *state.LastRunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.DefinitionID != "nightly" || run.Inputs["suite"] != "smoke" {
		t.Errorf("run should use schedule inputs, got %+v", run.Inputs)
	}
}

func TestTick_SkipsActiveDefinition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.save(t, "slow", 2000, &domain.Schedule{IntervalSec: 1, Enabled: true})

	f.tick(t)
	f.clock.Advance(time.Second)
	if n := f.tick(t); n != 1 {
		t.Fatalf("expected first run, started %d", n)
	}
	first, _ := f.schedules.Get(ctx, "slow")

	f.clock.Advance(time.Second)
	if n := f.tick(t); n != 0 {
		t.Errorf("definition with active run should be skipped, started %d", n)
	}
	if f.orch.ActiveRunsCount() != 1 {
		t.Errorf("expected exactly one active run, got %d", f.orch.ActiveRunsCount())
	}

	skipped, _ := f.schedules.Get(ctx, "slow")
	if *skipped.LastRunID != *first.LastRunID {
		t.Error("skipped tick must not record a run")
	}
	if !skipped.NextDueAt.After(first.NextDueAt) {
		t.Error("skipped tick should advance next due")
	}
}

func TestTick_InvalidScheduleDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.save(t, "broken", 1, &domain.Schedule{CronExpr: "not a cron", Enabled: true})
	f.save(t, "valid", 1, &domain.Schedule{IntervalSec: 10, Enabled: true})

	f.tick(t)

	if _, err := f.schedules.Get(ctx, "broken"); !errors.Is(err, repo.ErrNotFound) {
		t.Error("broken schedule should not produce state")
	}
	if _, err := f.schedules.Get(ctx, "valid"); err != nil {
		t.Errorf("valid schedule should be processed: %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sched.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
