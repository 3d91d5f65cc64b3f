// Package notifier отправляет уведомления о завершении pipeline runs.
//
// Notifier — отдельный процесс (cmd/conveyor-notifier), потребляющий
// очередь runs.events. События публикует mq.EventSink, подключённый
// к Orchestrator как слушатель.
//
//	n := notifier.New(notifier.Config{
//	    Conn:       mqConn,
//	    WebhookURL: cfg.Notifier.WebhookURL,
//	    ChatID:     cfg.Notifier.ChatID,
//	    Logger:     logger,
//	})
//	if err := n.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer n.Stop()
//
// Формат уведомлений — см. FormatSummary.
package notifier
