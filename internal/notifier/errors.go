package notifier

import "errors"

// Ошибки notifier.
var (
	// ErrWebhookNotConfigured — не задан URL webhook.
	ErrWebhookNotConfigured = errors.New("webhook url is not configured")

	// ErrWebhookRequest — запрос к webhook завершился ошибкой.
	ErrWebhookRequest = errors.New("webhook request failed")
)
