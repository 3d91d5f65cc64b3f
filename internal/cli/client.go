package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// --- Response types (дублируются из api и domain, CLI не импортирует внутренние пакеты) ---

// DefinitionSummaryResponse — элемент списка определений.
type DefinitionSummaryResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Steps       int           `json:"steps"`
	Schedule    *ScheduleSpec `json:"schedule,omitempty"`
	Active      bool          `json:"active"`
	UpdatedAt   string        `json:"updated_at"`
}

// StepSpecResponse — шаг определения.
type StepSpecResponse struct {
	ID     string         `json:"id"`
	Title  string         `json:"title,omitempty"`
	Type   string         `json:"type,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Weight float64        `json:"weight,omitempty"`
}

// DefinitionResponse — определение pipeline.
type DefinitionResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
	Inputs      map[string]any     `json:"inputs,omitempty"`
	Steps       []StepSpecResponse `json:"steps"`
	Schedule    *ScheduleSpec      `json:"schedule,omitempty"`
	UpdatedAt   string             `json:"updated_at,omitempty"`
}

// ScheduleSpec — расписание определения.
type ScheduleSpec struct {
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     bool           `json:"enabled"`
	Inputs      map[string]any `json:"inputs,omitempty"`
}

// ScheduleResponse — расписание и его состояние.
type ScheduleResponse struct {
	DefinitionID string        `json:"definition_id"`
	Schedule     *ScheduleSpec `json:"schedule"`
	NextDueAt    string        `json:"next_due_at,omitempty"`
	LastRunAt    string        `json:"last_run_at,omitempty"`
	LastRunID    string        `json:"last_run_id,omitempty"`
}

// LogEntryResponse — запись журнала шага.
type LogEntryResponse struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

// StepStateResponse — состояние шага в run.
type StepStateResponse struct {
	StepID     string             `json:"step_id"`
	Title      string             `json:"title,omitempty"`
	Status     string             `json:"status"`
	Progress   int                `json:"progress"`
	Log        []LogEntryResponse `json:"log"`
	StartedAt  string             `json:"started_at,omitempty"`
	FinishedAt string             `json:"finished_at,omitempty"`
	Error      string             `json:"error,omitempty"`
	Cancelled  bool               `json:"cancelled,omitempty"`
}

// RunResponse — снимок run.
type RunResponse struct {
	ID           string              `json:"id"`
	DefinitionID string              `json:"definition_id"`
	Status       string              `json:"status"`
	Progress     int                 `json:"progress"`
	Steps        []StepStateResponse `json:"steps"`
	Inputs       map[string]any      `json:"inputs,omitempty"`
	Cancelled    bool                `json:"cancelled,omitempty"`
	FailedStep   string              `json:"failed_step,omitempty"`
	Error        string              `json:"error,omitempty"`
	StartedAt    string              `json:"started_at,omitempty"`
	FinishedAt   string              `json:"finished_at,omitempty"`
}

// IsFinished возвращает true для completed и failed.
func (r *RunResponse) IsFinished() bool {
	return r.Status == "completed" || r.Status == "failed"
}

// RunSummaryResponse — запись истории runs.
type RunSummaryResponse struct {
	ID           string `json:"id"`
	DefinitionID string `json:"definition_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	Cancelled    bool   `json:"cancelled,omitempty"`
	FailedStep   string `json:"failed_step,omitempty"`
	Error        string `json:"error,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	FinishedAt   string `json:"finished_at,omitempty"`
}

// --- Request types ---

// StartRunRequest — запуск run.
type StartRunRequest struct {
	Inputs map[string]any `json:"inputs,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// streamClient без таймаута: поток событий живёт до конца run.
	streamClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// --- Definitions ---

// ListDefinitions возвращает все определения.
func (c *Client) ListDefinitions() ([]DefinitionSummaryResponse, error) {
	var defs []DefinitionSummaryResponse
	err := c.list("/api/v1/definitions", nil, &defs)
	return defs, err
}

// GetDefinition возвращает определение по ID.
func (c *Client) GetDefinition(id string) (*DefinitionResponse, error) {
	var def DefinitionResponse
	err := c.get(definitionPath(id), &def)
	return &def, err
}

// ApplyDefinition создаёт или заменяет определение.
func (c *Client) ApplyDefinition(id string, def json.RawMessage) (*DefinitionResponse, error) {
	var saved DefinitionResponse
	err := c.put(definitionPath(id), def, &saved)
	return &saved, err
}

// DeleteDefinition удаляет определение.
func (c *Client) DeleteDefinition(id string) error {
	return c.delete(definitionPath(id))
}

// --- Schedules ---

// GetSchedule возвращает расписание определения.
func (c *Client) GetSchedule(defID string) (*ScheduleResponse, error) {
	var sched ScheduleResponse
	err := c.get(definitionPath(defID)+"/schedule", &sched)
	return &sched, err
}

// SetScheduleEnabled включает или выключает расписание.
func (c *Client) SetScheduleEnabled(defID string, enabled bool) (*ScheduleResponse, error) {
	var sched ScheduleResponse
	body := map[string]bool{"enabled": enabled}
	err := c.put(definitionPath(defID)+"/schedule/enabled", body, &sched)
	return &sched, err
}

// --- Runs ---

// StartRun запускает run определения.
func (c *Client) StartRun(defID string, req StartRunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post(definitionPath(defID)+"/runs", req, &run)
	return &run, err
}

// LatestRun возвращает последний run определения.
func (c *Client) LatestRun(defID string) (*RunResponse, error) {
	var run RunResponse
	err := c.get(definitionPath(defID)+"/runs/latest", &run)
	return &run, err
}

// DiscardLatestRun удаляет последний run определения.
func (c *Client) DiscardLatestRun(defID string) error {
	return c.delete(definitionPath(defID) + "/runs/latest")
}

// RunHistory возвращает историю runs определения.
func (c *Client) RunHistory(defID string) ([]RunSummaryResponse, error) {
	var history []RunSummaryResponse
	err := c.list(definitionPath(defID)+"/runs/history", nil, &history)
	return history, err
}

// ActiveRuns возвращает выполняющиеся runs.
func (c *Client) ActiveRuns() ([]RunResponse, error) {
	var runs []RunResponse
	err := c.list("/api/v1/runs", nil, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// CancelRun запрашивает отмену run.
func (c *Client) CancelRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil, &run)
	return &run, err
}

// WatchRun читает поток снимков run и вызывает fn для каждого.
// Возвращает последний полученный снимок, когда сервер закрывает поток.
func (c *Client) WatchRun(ctx context.Context, id string, fn func(RunResponse)) (*RunResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/runs/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var last *RunResponse
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}

		var run RunResponse
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return last, fmt.Errorf("failed to decode event: %w", err)
		}
		last = &run
		fn(run)
	}

	if err := scanner.Err(); err != nil {
		return last, err
	}
	return last, nil
}

func definitionPath(id string) string {
	return "/api/v1/definitions/" + url.PathEscape(id)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}

	return apiErr
}
