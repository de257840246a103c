package events

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
)

// ConsoleObserver renders refinement progress as colored terminal lines.
type ConsoleObserver struct {
	out io.Writer
}

// NewConsoleObserver creates a console observer writing to w.
func NewConsoleObserver(w io.Writer) *ConsoleObserver {
	return &ConsoleObserver{out: w}
}

// OnEvent implements Observer
func (c *ConsoleObserver) OnEvent(event Event) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	var marker string
	switch event.Status {
	case StatusStarting:
		marker = gray("…")
	case StatusCompleted:
		marker = green("✓")
	case StatusFailed:
		marker = red("✗")
	}

	line := fmt.Sprintf("  %s %s iter=%d", marker, event.Step, event.Iteration)
	if score, ok := event.Payload["composite_score"].(float64); ok {
		line += fmt.Sprintf(" score=%.3f", score)
	}
	if status, ok := event.Payload["gate_status"].(string); ok {
		line += fmt.Sprintf(" gate=%s", status)
	}
	if errMsg, ok := event.Payload["error"].(string); ok {
		line += fmt.Sprintf(" error=%s", errMsg)
	}
	fmt.Fprintln(c.out, line)
}

// SlogObserver mirrors events into structured logs.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates an observer writing to the given logger, or the
// default logger when nil.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{logger: logger}
}

// OnEvent implements Observer
func (s *SlogObserver) OnEvent(event Event) {
	s.logger.Info("refinement event",
		"run_id", event.RunID,
		"stage", event.Stage,
		"step", string(event.Step),
		"status", string(event.Status),
		"iteration", event.Iteration,
	)
}
