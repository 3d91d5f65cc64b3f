package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

// StepTypeHTTP — тип HTTP шага.
const StepTypeHTTP = "http"

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 << 20
	maxErrorBody       = 256
)

// HTTPStep — шаг HTTP запроса: health-check бота, вебхук деплоя,
// вызов API площадки.
//
// Конфигурация:
//
//	{
//	    "method": "POST",
//	    "url": "https://deploy.example.com/hooks/{{ .Inputs.bot }}",
//	    "headers": {"Authorization": "Bearer {{ .Env.DEPLOY_TOKEN }}"},
//	    "body": {"image": "{{ .Steps.build.Outputs.image }}"},
//	    "expect_status": [200, 202],
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30
//	}
//
// Без expect_status ошибкой считается любой статус >= 400.
//
// Outputs: status_code, headers, body (JSON, если ответ application/json, иначе строка).
type HTTPStep struct{}

// NewHTTPStep создаёт HTTPStep.
func NewHTTPStep() *HTTPStep {
	return &HTTPStep{}
}

// Type возвращает тип шага.
func (s *HTTPStep) Type() string {
	return StepTypeHTTP
}

// Execute выполняет запрос. Прогресс: 10 перед отправкой, 50 после получения заголовков ответа.
func (s *HTTPStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	spec, err := parseHTTPSpec(req.Config)
	if err != nil {
		return nil, err
	}

	httpReq, err := spec.request(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Progress(10)

	resp, err := spec.client(req.Timeout).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	req.Progress(50)

	return spec.response(resp)
}

// httpSpec — конфигурация HTTP шага после рендеринга шаблонов.
type httpSpec struct {
	method          string
	url             string
	headers         http.Header
	body            any
	expectStatus    []int
	followRedirects bool
	validateSSL     bool
	timeout         time.Duration
}

func parseHTTPSpec(config map[string]any) (*httpSpec, error) {
	spec := &httpSpec{
		method:          strings.ToUpper(GetConfigString(config, "method")),
		url:             GetConfigString(config, "url"),
		headers:         make(http.Header),
		body:            config["body"],
		followRedirects: GetConfigBool(config, "follow_redirects", true),
		validateSSL:     GetConfigBool(config, "validate_ssl", true),
		timeout:         defaultHTTPTimeout,
	}
	if spec.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, StepTypeHTTP)
	}
	if spec.method == "" {
		spec.method = http.MethodGet
	}
	if sec := GetConfigInt(config, "timeout_sec"); sec > 0 {
		spec.timeout = time.Duration(sec) * time.Second
	}
	for k, v := range GetConfigMapString(config, "headers") {
		spec.headers.Set(k, v)
	}

	if raw, ok := config["expect_status"].([]any); ok {
		for _, v := range raw {
			code := GetConfigInt(map[string]any{"code": v}, "code")
			if code < 100 || code > 599 {
				return nil, fmt.Errorf("%w: %s: expect_status contains %v", ErrInvalidConfig, StepTypeHTTP, v)
			}
			spec.expectStatus = append(spec.expectStatus, code)
		}
	}
	return spec, nil
}

// client собирает клиента. Таймаут шага из Request важнее timeout_sec.
func (s *httpSpec) client(stepTimeout time.Duration) *http.Client {
	timeout := s.timeout
	if stepTimeout > 0 {
		timeout = stepTimeout
	}

	c := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !s.validateSSL},
		},
	}
	if !s.followRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

func (s *httpSpec) request(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if s.body != nil {
		var payload []byte
		switch v := s.body.(type) {
		case string:
			payload = []byte(v)
		case []byte:
			payload = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("serialize body: %w", err)
			}
			payload = b
		}
		body = bytes.NewReader(payload)

		if s.headers.Get("Content-Type") == "" {
			s.headers.Set("Content-Type", "application/json")
		}
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, body)
	if err != nil {
		return nil, err
	}
	req.Header = s.headers.Clone()
	return req, nil
}

func (s *httpSpec) accepts(code int) bool {
	if len(s.expectStatus) > 0 {
		return slices.Contains(s.expectStatus, code)
	}
	return code < http.StatusBadRequest
}

func (s *httpSpec) response(resp *http.Response) (*Response, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if !s.accepts(resp.StatusCode) {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       truncate(string(raw), maxErrorBody),
		}
	}

	var body any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			body = parsed
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	msg := fmt.Sprintf("%s %s: %d %s", s.method, s.url, resp.StatusCode, http.StatusText(resp.StatusCode))
	return NewResponse(msg, map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}), nil
}

// HTTPError — ответ с неожиданным статусом.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Status, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
