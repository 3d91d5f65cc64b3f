package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRunID(NewLogger(&buf, "INFO", "json"), "r-1")

	logger.Debug("hidden")
	logger.Info("run started")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered")
	}
	if !strings.Contains(out, `"run_id":"r-1"`) {
		t.Errorf("expected run_id attribute, got %s", out)
	}

	buf.Reset()
	NewLogger(&buf, "INFO", "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text format, got %s", buf.String())
	}
}

func TestContextLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)

	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RunStarted()
	m.RunStarted()
	m.RunFinished("completed", false)
	m.RunFinished("failed", true)
	m.StepFinished("completed", 120*time.Millisecond)
	m.HTTPRequest(http.MethodGet, 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()

	for _, line := range []string{
		"conveyor_runs_started_total 2",
		`conveyor_runs_finished_total{status="failed"} 1`,
		"conveyor_runs_cancelled_total 1",
		"conveyor_active_runs 0",
		`conveyor_step_duration_seconds_count{status="completed"} 1`,
		`conveyor_api_http_requests_total{code="200",method="GET"} 1`,
	} {
		if !strings.Contains(out, line) {
			t.Errorf("metrics output should contain %q", line)
		}
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	// не должно паниковать
	m.RunStarted()
	m.RunFinished("completed", false)
	m.StepFinished("failed", time.Second)
	m.HTTPRequest(http.MethodPost, 500)
}
