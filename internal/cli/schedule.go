package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newScheduleCmd — подгруппа definition schedule.
func newScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and toggle definition schedules",
	}

	cmd.AddCommand(
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleToggleCmd(clientFn, outputFn, true),
		newScheduleToggleCmd(clientFn, outputFn, false),
	)

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show DEFINITION_ID",
		Short: "Show schedule and next due time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sched, err := client.GetSchedule(args[0])
			if err != nil {
				return err
			}

			out.Print(scheduleHeaders, [][]string{scheduleRow(sched)}, sched)
			return nil
		},
	}
}

func newScheduleToggleCmd(clientFn func() *Client, outputFn func() *Output, enabled bool) *cobra.Command {
	use, short, verb := "disable", "Disable a schedule", "disabled"
	if enabled {
		use, short, verb = "enable", "Enable a schedule", "enabled"
	}

	return &cobra.Command{
		Use:   use + " DEFINITION_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sched, err := client.SetScheduleEnabled(args[0], enabled)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule %s: %s", verb, sched.DefinitionID))
			return nil
		},
	}
}

var scheduleHeaders = []string{"DEFINITION", "CRON", "INTERVAL", "TIMEZONE", "ENABLED", "NEXT_DUE", "LAST_RUN"}

func scheduleRow(s *ScheduleResponse) []string {
	row := []string{s.DefinitionID, "", "", "", "false", s.NextDueAt, s.LastRunID}
	if s.Schedule != nil {
		row[1] = s.Schedule.CronExpr
		if s.Schedule.IntervalSec > 0 {
			row[2] = strconv.Itoa(s.Schedule.IntervalSec) + "s"
		}
		row[3] = s.Schedule.Timezone
		row[4] = strconv.FormatBool(s.Schedule.Enabled)
	}
	return row
}
