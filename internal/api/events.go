package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaiso/Conveyor/internal/domain"
)

// eventBuffer — сколько снимков может ждать медленный клиент
// до того, как доставка начнёт задерживать run.
const eventBuffer = 256

// StreamRunEvents отдаёт снимки run как Server-Sent Events.
// GET /api/v1/runs/{id}/events
//
// Каждое событие:
//
//	event: snapshot
//	data: {...PipelineRun...}
//
// Поток закрывается после снимка в финальном статусе. Для уже
// завершённого run отдаётся один финальный снимок.
func (h *Handler) StreamRunEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRunID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, h.logger, fmt.Errorf("streaming is not supported"))
		return
	}

	handle, active := h.orchestrator.Lookup(id)
	if !active {
		run, err := h.orchestrator.Get(r.Context(), id)
		if HandleError(w, h.logger, err, "run not found") {
			return
		}
		startStream(w)
		_ = writeSnapshot(w, &run)
		flusher.Flush()
		return
	}

	events := make(chan domain.PipelineRun, eventBuffer)
	stop := make(chan struct{})
	defer close(stop)

	// подписка до чтения текущего снимка: ни одно изменение не потеряется
	unsubscribe := handle.Subscribe(func(run domain.PipelineRun) {
		select {
		case events <- run:
		case <-stop:
		}
	})
	defer unsubscribe()

	startStream(w)

	current := handle.Snapshot()
	if err := writeSnapshot(w, &current); err != nil {
		return
	}
	flusher.Flush()
	if current.IsFinished() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return

		case run := <-events:
			if err := writeSnapshot(w, &run); err != nil {
				h.logger.Debug("event stream closed", "run_id", id, "error", err)
				return
			}
			flusher.Flush()
			if run.IsFinished() {
				return
			}
		}
	}
}

func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func writeSnapshot(w http.ResponseWriter, run *domain.PipelineRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}
