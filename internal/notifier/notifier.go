package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/mq"
)

// Default configuration values.
const (
	defaultTimeout  = 10 * time.Second
	defaultPrefetch = 5
)

// Notifier отправляет уведомления о завершённых runs.
//
// Потребляет очередь runs.events. На событие run.finished формирует
// текст и отправляет его POST-запросом в webhook
// (совместимо с Telegram sendMessage и простыми чат-ботами).
// Остальные события подтверждаются без действий.
type Notifier struct {
	conn   *mq.Connection
	client *http.Client

	webhookURL string
	chatID     string
	prefetch   int

	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Notifier.
type Config struct {
	// Conn — соединение с RabbitMQ (нужно только для Start).
	Conn *mq.Connection

	// WebhookURL — адрес, принимающий {"chat_id": ..., "text": ...}.
	WebhookURL string

	// ChatID — идентификатор чата получателя.
	ChatID string

	// HTTPClient (опционально). По умолчанию клиент с таймаутом Timeout.
	HTTPClient *http.Client

	// Timeout — таймаут запроса к webhook (default: 10s).
	Timeout time.Duration

	// Prefetch — количество сообщений в обработке (default: 5).
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Notifier.
func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		conn:       cfg.Conn,
		client:     client,
		webhookURL: cfg.WebhookURL,
		chatID:     cfg.ChatID,
		prefetch:   prefetch,
		logger:     logger.With("component", "notifier"),
	}
}

// Start запускает потребление runs.events.
func (n *Notifier) Start(ctx context.Context) error {
	if n.webhookURL == "" {
		return ErrWebhookNotConfigured
	}

	ctx, cancel := context.WithCancel(ctx)
	n.cancelFunc = cancel

	n.consumer = mq.NewConsumer(n.conn, n.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueRunEvents),
		Handler:  n.HandleEvent,
		Prefetch: n.prefetch,
	})

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Error("event consumer error", "error", err)
		}
	}()

	n.logger.Info("notifier started", "queue", mq.QueueRunEvents)
	return nil
}

// Stop останавливает Notifier и ждёт завершения обработки.
func (n *Notifier) Stop() {
	n.logger.Info("stopping notifier...")

	if n.cancelFunc != nil {
		n.cancelFunc()
	}
	if n.consumer != nil {
		n.consumer.Stop()
	}

	n.wg.Wait()
	n.logger.Info("notifier stopped")
}

// HandleEvent — mq.Handler для очереди runs.events.
func (n *Notifier) HandleEvent(ctx context.Context, delivery *mq.Delivery) error {
	switch delivery.Message.Type {
	case mq.MessageTypeRunStarted, mq.MessageTypeStepFinished:
		return nil

	case mq.MessageTypeRunFinished:
		payload, err := mq.ParsePayload[mq.RunEventPayload](&delivery.Message)
		if err != nil {
			return fmt.Errorf("%w: %v", mq.ErrRejected, err)
		}
		return n.Notify(ctx, payload)

	default:
		return fmt.Errorf("%w: %s", mq.ErrUnknownMessageType, delivery.Message.Type)
	}
}

// webhookMessage — тело запроса к webhook.
type webhookMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Notify отправляет уведомление о завершении run.
//
// Ответ 4xx считается окончательным отказом (mq.ErrRejected),
// ошибки сети и 5xx — временными.
func (n *Notifier) Notify(ctx context.Context, ev mq.RunEventPayload) error {
	if n.webhookURL == "" {
		return ErrWebhookNotConfigured
	}

	text := FormatSummary(ev)
	body, err := json.Marshal(webhookMessage{ChatID: n.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrWebhookRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookRequest, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrWebhookRequest, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %w: status %d", mq.ErrRejected, ErrWebhookRequest, resp.StatusCode)
	}

	n.logger.Info("notification sent",
		"run_id", ev.RunID,
		"definition_id", ev.DefinitionID,
		"status", ev.Status,
	)
	return nil
}
