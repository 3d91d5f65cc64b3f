package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// ErrRunFailed возвращается watch, если run завершился со статусом failed.
var ErrRunFailed = errors.New("run failed")

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
		newRunLatestCmd(clientFn, outputFn),
		newRunDiscardCmd(clientFn, outputFn),
		newRunHistoryCmd(clientFn, outputFn),
		newRunWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ActiveRuns()
			if err != nil {
				return err
			}

			headers := []string{"ID", "DEFINITION", "STATUS", "PROGRESS", "STEP", "STARTED"}
			rows := make([][]string, len(runs))
			for i := range runs {
				r := &runs[i]
				step := ""
				if s := currentStep(r); s != nil {
					step = s.StepID
				}
				rows[i] = []string{r.ID, r.DefinitionID, r.Status, progressLabel(r.Progress), step, r.StartedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var watch bool

	cmd := &cobra.Command{
		Use:   "start DEFINITION_ID",
		Short: "Start a new run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			run, err := client.StartRun(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			if watch {
				return watchRun(cmd, client, out, run.ID)
			}

			out.Print(
				[]string{"ID", "DEFINITION", "STATUS", "PROGRESS"},
				[][]string{{run.ID, run.DefinitionID, run.Status, progressLabel(run.Progress)}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the run until it finishes")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().GetRun(args[0])
			if err != nil {
				return err
			}

			outputFn().RunDetails(run)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Request cancellation of a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().CancelRun(args[0])
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Cancellation requested: %s", run.ID))
			return nil
		},
	}
}

func newRunLatestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "latest DEFINITION_ID",
		Short: "Show the latest run of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().LatestRun(args[0])
			if err != nil {
				return err
			}

			outputFn().RunDetails(run)
			return nil
		},
	}
}

func newRunDiscardCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "discard DEFINITION_ID",
		Short: "Discard the latest run of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DiscardLatestRun(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Latest run discarded: %s", args[0]))
			return nil
		},
	}
}

func newRunHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "history DEFINITION_ID",
		Short: "List finished runs of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			history, err := client.RunHistory(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "PROGRESS", "FAILED_STEP", "ERROR", "FINISHED"}
			rows := make([][]string, len(history))
			for i, r := range history {
				status := r.Status
				if r.Cancelled {
					status += " (cancelled)"
				}
				rows[i] = []string{r.ID, status, progressLabel(r.Progress), r.FailedStep, r.Error, r.FinishedAt}
			}

			out.Print(headers, rows, history)
			return nil
		},
	}
}

func newRunWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Follow run progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchRun(cmd, clientFn(), outputFn(), args[0])
		},
	}
}

// watchRun печатает снимки run до его завершения.
func watchRun(cmd *cobra.Command, client *Client, out *Output, id string) error {
	last, err := client.WatchRun(cmd.Context(), id, func(run RunResponse) {
		out.ProgressLine(&run)
	})
	if err != nil {
		return err
	}
	if last == nil || !last.IsFinished() {
		return fmt.Errorf("event stream closed before run %s finished", id)
	}

	if last.Status == "failed" {
		if last.Cancelled {
			return fmt.Errorf("%w: cancelled at step %s", ErrRunFailed, last.FailedStep)
		}
		return fmt.Errorf("%w at step %s: %s", ErrRunFailed, last.FailedStep, last.Error)
	}

	out.Success(fmt.Sprintf("Run completed: %s", last.ID))
	return nil
}

func parseInputs(inputs []string) (StartRunRequest, error) {
	var req StartRunRequest
	if len(inputs) == 0 {
		return req, nil
	}

	req.Inputs = make(map[string]any, len(inputs))
	for _, kv := range inputs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return req, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		req.Inputs[key] = value
	}
	return req, nil
}

func progressLabel(p int) string {
	return strconv.Itoa(p) + "%"
}
