package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — Prometheus метрики движка и API.
//
// Все методы безопасны для nil-получателя: компоненты, собранные
// без метрик (тесты, CLI), просто ничего не записывают.
type Metrics struct {
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runsCancelled prometheus.Counter
	stepDuration  *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
	httpRequests  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics регистрирует метрики в reg.
// Если reg == nil, используется отдельный реестр.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		runsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_runs_started_total",
			Help: "Total number of started pipeline runs",
		}),
		runsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_runs_finished_total",
			Help: "Total number of finished pipeline runs by status",
		}, []string{"status"}),
		runsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_runs_cancelled_total",
			Help: "Total number of cancelled pipeline runs",
		}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_step_duration_seconds",
			Help:    "Duration of pipeline steps by final status",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"status"}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_active_runs",
			Help: "Number of pipeline runs currently executing",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_api_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "code"}),
		gatherer: reg,
	}
}

// RunStarted учитывает запуск run.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RunFinished учитывает завершение run.
func (m *Metrics) RunFinished(status string, cancelled bool) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(status).Inc()
	if cancelled {
		m.runsCancelled.Inc()
	}
	m.activeRuns.Dec()
}

// StepFinished учитывает длительность завершённого шага.
func (m *Metrics) StepFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(status).Observe(d.Seconds())
}

// HTTPRequest учитывает обработанный HTTP запрос.
func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// Handler возвращает HTTP handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
