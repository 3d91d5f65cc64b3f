package notifier

import (
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
)

// FormatSummary формирует текст уведомления о завершении run.
//
//	pipeline deploy-bot completed in 4.2s
//	pipeline deploy-bot failed at step build: disk full
//	pipeline deploy-bot cancelled at step build
func FormatSummary(ev mq.RunEventPayload) string {
	switch {
	case ev.Status == domain.RunStatusCompleted:
		return fmt.Sprintf("pipeline %s completed in %s",
			ev.DefinitionID, (time.Duration(ev.DurationMs) * time.Millisecond).String())

	case ev.Cancelled:
		return fmt.Sprintf("pipeline %s cancelled at step %s", ev.DefinitionID, ev.StepID)

	case ev.StepID != "":
		return fmt.Sprintf("pipeline %s failed at step %s: %s", ev.DefinitionID, ev.StepID, ev.Error)

	default:
		return fmt.Sprintf("pipeline %s %s", ev.DefinitionID, ev.Status)
	}
}
