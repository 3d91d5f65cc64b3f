package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// JSONMode сообщает, выводятся ли данные в JSON.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Line выводит строку в stdout.
func (o *Output) Line(format string, args ...any) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// RunDetails выводит run вместе с состоянием шагов.
func (o *Output) RunDetails(run *RunResponse) {
	if o.jsonMode {
		o.JSON(run)
		return
	}

	o.Line("Run:        %s", run.ID)
	o.Line("Definition: %s", run.DefinitionID)
	o.Line("Status:     %s", runStatusLabel(run))
	o.Line("Progress:   %d%%", run.Progress)
	if run.Error != "" {
		o.Line("Error:      %s", run.Error)
	}
	o.Line("")

	rows := make([][]string, len(run.Steps))
	for i, s := range run.Steps {
		rows[i] = []string{s.StepID, s.Title, s.Status, fmt.Sprintf("%d%%", s.Progress), s.Error}
	}
	o.Table([]string{"STEP", "TITLE", "STATUS", "PROGRESS", "ERROR"}, rows)
}

// ProgressLine выводит одну строку прогресса для watch.
func (o *Output) ProgressLine(run *RunResponse) {
	if o.jsonMode {
		data, _ := json.Marshal(run)
		fmt.Fprintln(o.w, string(data))
		return
	}

	step := currentStep(run)
	if step == nil {
		o.Line("[%3d%%] %s", run.Progress, runStatusLabel(run))
		return
	}

	msg := ""
	if n := len(step.Log); n > 0 {
		msg = step.Log[n-1].Message
	}
	o.Line("[%3d%%] %s %s: %s", run.Progress, step.StepID, step.Status, msg)
}

func runStatusLabel(run *RunResponse) string {
	if run.Cancelled {
		return run.Status + " (cancelled)"
	}
	return run.Status
}

// currentStep возвращает выполняющийся шаг или последний завершённый.
func currentStep(run *RunResponse) *StepStateResponse {
	var last *StepStateResponse
	for i := range run.Steps {
		s := &run.Steps[i]
		if s.Status == "running" {
			return s
		}
		if s.Status != "pending" {
			last = s
		}
	}
	return last
}
