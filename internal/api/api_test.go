package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

type testEnv struct {
	server *httptest.Server
	orch   *orchestrator.Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repo.NewMemoryStore()
	defs := repo.NewDefinitionRepo(store)
	runs := repo.NewRunRepo(store, 0)
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	orch := orchestrator.New(orchestrator.Config{
		Definitions: defs,
		Runs:        runs,
		Metrics:     metrics,
		Logger:      logger,
	})

	h := NewHandler(Config{
		Definitions:  defs,
		Runs:         runs,
		Schedules:    repo.NewScheduleRepo(store),
		Orchestrator: orch,
		Metrics:      metrics,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		orch.Stop()
	})

	return &testEnv{server: server, orch: orch}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return envelope.Data
}

func decodeError(t *testing.T, body []byte) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error %s: %v", body, err)
	}
	return resp.Error
}

func delayDefinition(durationMs int) map[string]any {
	return map[string]any{
		"name": "Deploy bot",
		"steps": []map[string]any{
			{"id": "build", "type": "delay", "config": map[string]any{"duration_ms": durationMs, "ticks": 3}},
			{"id": "push", "type": "delay", "weight": 2, "config": map[string]any{"duration_ms": durationMs, "ticks": 3}},
		},
	}
}

func (e *testEnv) waitFinished(t *testing.T, runID string) domain.PipelineRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body := e.do(t, http.MethodGet, "/api/v1/runs/"+runID, nil)
		run := decodeData[domain.PipelineRun](t, body)
		// финальная контрольная точка пишется до выхода из активных
		if _, active := e.orch.Lookup(run.ID); run.IsFinished() && !active {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", runID)
	return domain.PipelineRun{}
}

func TestDefinitions_CRUD(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPut, "/api/v1/definitions/deploy-bot", delayDefinition(1))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put: expected 200, got %d: %s", resp.StatusCode, body)
	}
	saved := decodeData[domain.PipelineDefinition](t, body)
	if saved.ID != "deploy-bot" || len(saved.Steps) != 2 {
		t.Errorf("unexpected saved definition: %+v", saved)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/definitions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	list := decodeData[[]DefinitionSummary](t, body)
	if len(list) != 1 || list[0].ID != "deploy-bot" || list[0].Steps != 2 || list[0].Name != "Deploy bot" {
		t.Errorf("unexpected list: %+v", list)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/definitions/deploy-bot", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/definitions/deploy-bot", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/definitions/deploy-bot", nil)
	if resp.StatusCode != http.StatusNotFound || decodeError(t, body).Code != ErrCodeNotFound {
		t.Errorf("get deleted: expected 404, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/definitions/deploy-bot", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing: expected 404, got %d", resp.StatusCode)
	}
}

func TestDefinitions_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   ErrorCode
	}{
		{
			name:   "no steps",
			path:   "/api/v1/definitions/empty",
			body:   map[string]any{"steps": []any{}},
			status: http.StatusUnprocessableEntity,
			code:   ErrCodeInvalidDefinition,
		},
		{
			name:   "unknown step type",
			path:   "/api/v1/definitions/unknown",
			body:   map[string]any{"steps": []map[string]any{{"id": "a", "type": "teleport"}}},
			status: http.StatusUnprocessableEntity,
			code:   ErrCodeInvalidDefinition,
		},
		{
			name: "invalid schedule",
			path: "/api/v1/definitions/cron",
			body: map[string]any{
				"steps":    []map[string]any{{"id": "a", "type": "delay"}},
				"schedule": map[string]any{"cron_expr": "sometimes", "enabled": true},
			},
			status: http.StatusUnprocessableEntity,
			code:   ErrCodeInvalidDefinition,
		},
		{
			name:   "id mismatch",
			path:   "/api/v1/definitions/a",
			body:   map[string]any{"id": "b", "steps": []map[string]any{{"id": "a", "type": "delay"}}},
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
		{
			name:   "malformed body",
			path:   "/api/v1/definitions/a",
			body:   "not an object",
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPut, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.StatusCode, body)
			}
			if code := decodeError(t, body).Code; code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, code)
			}
		})
	}
}

func TestRuns_StartAndInspect(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/definitions/deploy-bot", delayDefinition(15))

	resp, body := env.do(t, http.MethodPost, "/api/v1/definitions/deploy-bot/runs", StartRunRequest{
		Inputs: map[string]any{"bot": "shop"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", resp.StatusCode, body)
	}
	started := decodeData[domain.PipelineRun](t, body)
	if started.Status != domain.RunStatusRunning || started.DefinitionID != "deploy-bot" {
		t.Errorf("unexpected started run: %+v", started)
	}
	if started.Inputs["bot"] != "shop" {
		t.Errorf("inputs should be passed to the run, got %v", started.Inputs)
	}

	final := env.waitFinished(t, started.ID.String())
	if final.Status != domain.RunStatusCompleted || final.Progress != 100 {
		t.Errorf("expected completed/100, got %s/%d", final.Status, final.Progress)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/definitions/deploy-bot/runs/latest", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("latest: expected 200, got %d", resp.StatusCode)
	}
	if latest := decodeData[domain.PipelineRun](t, body); latest.ID != started.ID {
		t.Errorf("latest should be the started run")
	}

	_, body = env.do(t, http.MethodGet, "/api/v1/definitions/deploy-bot/runs/history", nil)
	history := decodeData[[]domain.RunSummary](t, body)
	if len(history) != 1 || history[0].Status != domain.RunStatusCompleted {
		t.Errorf("unexpected history: %+v", history)
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/runs/"+started.ID.String()+"/cancel", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel finished: expected 409, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/definitions/deploy-bot/runs/latest", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("discard: expected 204, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/v1/definitions/deploy-bot/runs/latest", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("latest after discard: expected 404, got %d", resp.StatusCode)
	}
}

func TestRuns_Errors(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/definitions/missing/runs", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("start unknown: expected 404, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/runs/3f1c1f8e-8f0c-4a0e-9a59-5a3a3f0b8f11", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown run: expected 404, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/runs/3f1c1f8e-8f0c-4a0e-9a59-5a3a3f0b8f11/cancel", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel unknown: expected 404, got %d", resp.StatusCode)
	}
}

func TestRuns_CancelActive(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/definitions/slow", delayDefinition(2000))

	_, body := env.do(t, http.MethodPost, "/api/v1/definitions/slow/runs", nil)
	started := decodeData[domain.PipelineRun](t, body)

	_, body = env.do(t, http.MethodGet, "/api/v1/runs", nil)
	if active := decodeData[[]domain.PipelineRun](t, body); len(active) != 1 {
		t.Errorf("expected 1 active run, got %d", len(active))
	}

	resp, _ := env.do(t, http.MethodDelete, "/api/v1/definitions/slow/runs/latest", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("discard active: expected 409, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/runs/"+started.ID.String()+"/cancel", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel: expected 202, got %d: %s", resp.StatusCode, body)
	}

	final := env.waitFinished(t, started.ID.String())
	if final.Status != domain.RunStatusFailed || !final.Cancelled || final.FailedStep != "build" {
		t.Errorf("expected cancelled at build, got %+v", final)
	}
	if final.Steps[1].Status != domain.StepStatusPending {
		t.Errorf("second step should stay pending, got %s", final.Steps[1].Status)
	}
}

func TestRuns_EventStream(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/definitions/stream", delayDefinition(60))

	_, body := env.do(t, http.MethodPost, "/api/v1/definitions/stream/runs", nil)
	started := decodeData[domain.PipelineRun](t, body)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/v1/runs/"+started.ID.String()+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	var snapshots []domain.PipelineRun
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var run domain.PipelineRun
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &run); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		snapshots = append(snapshots, run)
	}

	if len(snapshots) < 3 {
		t.Fatalf("expected several snapshots, got %d", len(snapshots))
	}

	last := snapshots[len(snapshots)-1]
	if last.Status != domain.RunStatusCompleted {
		t.Errorf("stream should end with the final snapshot, got %s", last.Status)
	}
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].Progress < snapshots[i-1].Progress {
			t.Errorf("progress went backward in stream: %d -> %d", snapshots[i-1].Progress, snapshots[i].Progress)
		}
	}

	// для завершённого run поток содержит один снимок
	_, body = env.do(t, http.MethodGet, "/api/v1/runs/"+started.ID.String()+"/events", nil)
	if n := strings.Count(string(body), "event: snapshot"); n != 1 {
		t.Errorf("finished run: expected 1 event, got %d", n)
	}
}

func TestSchedule_GetAndToggle(t *testing.T) {
	env := newTestEnv(t)

	def := delayDefinition(1)
	def["schedule"] = map[string]any{"interval_sec": 3600, "enabled": true}
	env.do(t, http.MethodPut, "/api/v1/definitions/nightly", def)
	env.do(t, http.MethodPut, "/api/v1/definitions/manual", delayDefinition(1))

	resp, body := env.do(t, http.MethodGet, "/api/v1/definitions/nightly/schedule", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get schedule: expected 200, got %d: %s", resp.StatusCode, body)
	}
	sched := decodeData[ScheduleResponse](t, body)
	if sched.Schedule == nil || sched.Schedule.IntervalSec != 3600 || !sched.Schedule.Enabled {
		t.Errorf("unexpected schedule: %+v", sched)
	}

	resp, body = env.do(t, http.MethodPut, "/api/v1/definitions/nightly/schedule/enabled", SetEnabledRequest{Enabled: false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle: expected 200, got %d: %s", resp.StatusCode, body)
	}
	if decodeData[ScheduleResponse](t, body).Schedule.Enabled {
		t.Error("schedule should be disabled")
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/definitions/manual/schedule", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("definition without schedule: expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("unexpected health response: %d %s", resp.StatusCode, body)
	}

	env.do(t, http.MethodGet, "/api/v1/definitions/missing", nil)

	_, body = env.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(string(body), `conveyor_api_http_requests_total{code="404",method="GET"} 1`) {
		t.Errorf("metrics should count API requests:\n%s", body)
	}
}
