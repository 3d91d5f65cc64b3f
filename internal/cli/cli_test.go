package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repo.NewMemoryStore()
	defs := repo.NewDefinitionRepo(store)
	runs := repo.NewRunRepo(store, 0)

	orch := orchestrator.New(orchestrator.Config{
		Definitions: defs,
		Runs:        runs,
		Logger:      logger,
	})

	h := api.NewHandler(api.Config{
		Definitions:  defs,
		Runs:         runs,
		Schedules:    repo.NewScheduleRepo(store),
		Orchestrator: orch,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		orch.Stop()
	})
	return server
}

// execute запускает корневую команду и возвращает stdout, stderr и ошибку.
func execute(t *testing.T, server *httptest.Server, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := NewRootCmd("test")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--api-url", server.URL}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const deployTOML = `
id = "deploy-bot"
name = "Deploy bot"

[[steps]]
id = "build"
type = "delay"
config = { duration_ms = 20, ticks = 2, message = "image built" }

[[steps]]
id = "push"
type = "delay"
weight = 2
config = { duration_ms = 20, ticks = 2 }
`

func TestDefinitionApplyAndList(t *testing.T) {
	server := newTestServer(t)

	_, stderr, err := execute(t, server, "definition", "apply", "-f", writeFile(t, "deploy.toml", deployTOML))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(stderr, "Definition applied: deploy-bot (2 steps)") {
		t.Errorf("unexpected apply message: %q", stderr)
	}

	stdout, _, err := execute(t, server, "--json", "definition", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var defs []DefinitionSummaryResponse
	if err := json.Unmarshal([]byte(stdout), &defs); err != nil {
		t.Fatalf("decode list: %v\n%s", err, stdout)
	}
	if len(defs) != 1 || defs[0].ID != "deploy-bot" || defs[0].Steps != 2 {
		t.Errorf("unexpected definitions: %+v", defs)
	}

	stdout, _, err = execute(t, server, "definition", "show", "deploy-bot")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(stdout, "build") || !strings.Contains(stdout, "push") {
		t.Errorf("show should list steps:\n%s", stdout)
	}

	if _, _, err := execute(t, server, "definition", "delete", "deploy-bot"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, _, err = execute(t, server, "definition", "show", "deploy-bot")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("expected 404 APIError, got %v", err)
	}
}

func TestDefinitionApply_InvalidDefinition(t *testing.T) {
	server := newTestServer(t)

	path := writeFile(t, "bad.json", `{"id": "bad", "steps": [{"id": "a", "type": "teleport"}]}`)
	_, _, err := execute(t, server, "definition", "apply", "-f", path)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_DEFINITION" {
		t.Errorf("expected INVALID_DEFINITION, got %v", err)
	}
}

func TestRunStartWatchAndHistory(t *testing.T) {
	server := newTestServer(t)

	if _, _, err := execute(t, server, "definition", "apply", "-f", writeFile(t, "deploy.toml", deployTOML)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	stdout, stderr, err := execute(t, server, "run", "start", "deploy-bot", "--input", "bot=shop", "--watch")
	if err != nil {
		t.Fatalf("start --watch: %v", err)
	}
	if !strings.Contains(stderr, "Run completed") {
		t.Errorf("expected completion message, got %q", stderr)
	}
	if !strings.Contains(stdout, "[100%]") {
		t.Errorf("watch should print final progress:\n%s", stdout)
	}

	stdout, _, err = execute(t, server, "--json", "run", "history", "deploy-bot")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var history []RunSummaryResponse
	if err := json.Unmarshal([]byte(stdout), &history); err != nil {
		t.Fatalf("decode history: %v\n%s", err, stdout)
	}
	if len(history) != 1 || history[0].Status != "completed" {
		t.Errorf("unexpected history: %+v", history)
	}

	stdout, _, err = execute(t, server, "run", "latest", "deploy-bot")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !strings.Contains(stdout, "Progress:   100%") {
		t.Errorf("unexpected latest output:\n%s", stdout)
	}
}

func TestRunWatch_FailedRun(t *testing.T) {
	server := newTestServer(t)

	path := writeFile(t, "fail.json", `{
		"id": "broken",
		"steps": [
			{"id": "build", "type": "delay", "config": {"duration_ms": 10, "ticks": 1}},
			{"id": "push", "type": "delay", "config": {"duration_ms": 10, "ticks": 1, "fail_message": "disk full"}}
		]
	}`)
	if _, _, err := execute(t, server, "definition", "apply", "-f", path); err != nil {
		t.Fatalf("apply: %v", err)
	}

	_, _, err := execute(t, server, "run", "start", "broken", "--watch")
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "push") || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error should name the failed step: %v", err)
	}
}

func TestRunShow_InvalidID(t *testing.T) {
	server := newTestServer(t)

	_, _, err := execute(t, server, "run", "show", "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Errorf("expected 400 APIError, got %v", err)
	}
}

func TestReadDefinitionFile(t *testing.T) {
	body, id, err := readDefinitionFile("-", strings.NewReader(`{"id": "stdin-def", "steps": []}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "stdin-def" || !json.Valid(body) {
		t.Errorf("unexpected result: id=%q body=%s", id, body)
	}

	if _, _, err := readDefinitionFile(writeFile(t, "x.json", "[1, 2]"), nil); err == nil {
		t.Error("expected error for non-object JSON")
	}
	if _, _, err := readDefinitionFile(writeFile(t, "x.toml", "steps = ["), nil); err == nil {
		t.Error("expected error for malformed TOML")
	}
}

func TestParseInputs(t *testing.T) {
	req, err := parseInputs([]string{"bot=shop", "url=http://x?a=b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Inputs["bot"] != "shop" || req.Inputs["url"] != "http://x?a=b" {
		t.Errorf("unexpected inputs: %v", req.Inputs)
	}

	if _, err := parseInputs([]string{"novalue"}); err == nil {
		t.Error("expected error for input without '='")
	}
}
