package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(h.metrics),
		Logging(h.logger),
	)

	// Definitions
	mux.Handle("GET /api/v1/definitions", chain(http.HandlerFunc(h.ListDefinitions)))
	mux.Handle("GET /api/v1/definitions/{id}", chain(http.HandlerFunc(h.GetDefinition)))
	mux.Handle("PUT /api/v1/definitions/{id}", chain(http.HandlerFunc(h.PutDefinition)))
	mux.Handle("DELETE /api/v1/definitions/{id}", chain(http.HandlerFunc(h.DeleteDefinition)))

	// Schedule
	mux.Handle("GET /api/v1/definitions/{id}/schedule", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/definitions/{id}/schedule/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))

	// Runs of a definition
	mux.Handle("POST /api/v1/definitions/{id}/runs", chain(http.HandlerFunc(h.StartRun)))
	mux.Handle("GET /api/v1/definitions/{id}/runs/latest", chain(http.HandlerFunc(h.GetLatestRun)))
	mux.Handle("DELETE /api/v1/definitions/{id}/runs/latest", chain(http.HandlerFunc(h.DiscardLatestRun)))
	mux.Handle("GET /api/v1/definitions/{id}/runs/history", chain(http.HandlerFunc(h.ListRunHistory)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListActiveRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))

	// SSE не проходит через Logging: соединение живёт до конца run
	mux.Handle("GET /api/v1/runs/{id}/events", Chain(Recovery(h.logger), Metrics(h.metrics))(http.HandlerFunc(h.StreamRunEvents)))

	mux.HandleFunc("GET /healthz", h.Health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}
