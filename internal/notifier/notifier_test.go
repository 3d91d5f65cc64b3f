package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
)

func newTestNotifier(url string) *Notifier {
	return New(Config{
		WebhookURL: url,
		ChatID:     "-100500",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func delivery(t *testing.T, msgType mq.MessageType, payload mq.RunEventPayload) *mq.Delivery {
	t.Helper()
	// как в Consumer: сообщение проходит через JSON
	body, err := json.Marshal(mq.NewMessage(msgType, payload))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var msg mq.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &mq.Delivery{Message: msg}
}

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		name     string
		ev       mq.RunEventPayload
		expected string
	}{
		{
			name:     "completed",
			ev:       mq.RunEventPayload{DefinitionID: "deploy-bot", Status: domain.RunStatusCompleted, DurationMs: 4200},
			expected: "pipeline deploy-bot completed in 4.2s",
		},
		{
			name:     "failed",
			ev:       mq.RunEventPayload{DefinitionID: "deploy-bot", Status: domain.RunStatusFailed, StepID: "build", Error: "disk full"},
			expected: "pipeline deploy-bot failed at step build: disk full",
		},
		{
			name:     "cancelled",
			ev:       mq.RunEventPayload{DefinitionID: "deploy-bot", Status: domain.RunStatusFailed, StepID: "build", Cancelled: true},
			expected: "pipeline deploy-bot cancelled at step build",
		},
		{
			name:     "failed without step",
			ev:       mq.RunEventPayload{DefinitionID: "deploy-bot", Status: domain.RunStatusFailed},
			expected: "pipeline deploy-bot failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSummary(tt.ev); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestHandleEvent_RunFinishedPostsWebhook(t *testing.T) {
	var received webhookMessage
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := newTestNotifier(server.URL)

	d := delivery(t, mq.MessageTypeRunFinished, mq.RunEventPayload{
		RunID:        uuid.New(),
		DefinitionID: "deploy-bot",
		Status:       domain.RunStatusFailed,
		StepID:       "build",
		Error:        "disk full",
	})

	if err := n.HandleEvent(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected 1 webhook call, got %d", calls)
	}
	if received.ChatID != "-100500" || received.Text != "pipeline deploy-bot failed at step build: disk full" {
		t.Errorf("unexpected webhook body: %+v", received)
	}
}

func TestHandleEvent_IgnoresIntermediateEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("webhook must not be called for intermediate events")
	}))
	defer server.Close()

	n := newTestNotifier(server.URL)

	for _, msgType := range []mq.MessageType{mq.MessageTypeRunStarted, mq.MessageTypeStepFinished} {
		if err := n.HandleEvent(context.Background(), delivery(t, msgType, mq.RunEventPayload{})); err != nil {
			t.Errorf("%s: unexpected error: %v", msgType, err)
		}
	}

	err := n.HandleEvent(context.Background(), delivery(t, "task.ready", mq.RunEventPayload{}))
	if !errors.Is(err, mq.ErrUnknownMessageType) {
		t.Errorf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestNotify_StatusHandling(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantErr      bool
		wantRejected bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "no content", status: http.StatusNoContent},
		{name: "bad request is permanent", status: http.StatusBadRequest, wantErr: true, wantRejected: true},
		{name: "unavailable is transient", status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := newTestNotifier(server.URL).Notify(context.Background(), mq.RunEventPayload{
				DefinitionID: "nightly-tests",
				Status:       domain.RunStatusCompleted,
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if errors.Is(err, mq.ErrRejected) != tt.wantRejected {
				t.Errorf("rejected: expected %v, got %v", tt.wantRejected, err)
			}
			if tt.wantErr && !errors.Is(err, ErrWebhookRequest) {
				t.Errorf("error should wrap ErrWebhookRequest: %v", err)
			}
		})
	}
}

func TestNotify_NotConfigured(t *testing.T) {
	n := newTestNotifier("")

	if err := n.Notify(context.Background(), mq.RunEventPayload{}); !errors.Is(err, ErrWebhookNotConfigured) {
		t.Errorf("expected ErrWebhookNotConfigured, got %v", err)
	}
	if err := n.Start(context.Background()); !errors.Is(err, ErrWebhookNotConfigured) {
		t.Errorf("Start: expected ErrWebhookNotConfigured, got %v", err)
	}
}
