// Package events defines the progress events emitted by refinement runs and
// the observer contract consumed by the CLI and other presentation layers.
//
// Observer calls are fire-and-forget by contract: a panicking observer is
// logged and swallowed, never aborting the run that emitted the event.
// Observers are invoked synchronously, so a slow observer stalls the run;
// that is a documented limitation, not a bug to engineer around.
package events

import (
	"log/slog"
	"time"
)

// Step identifies the phase of the refinement loop an event refers to.
type Step string

const (
	// StepGenerate is the initial content generation call
	StepGenerate Step = "generate"
	// StepSchemaCheck is the cheap structural pre-validation
	StepSchemaCheck Step = "schema_check"
	// StepValidate is the expensive validation service call
	StepValidate Step = "validate"
	// StepCorrect is a correction service call
	StepCorrect Step = "correct"
	// StepFinalize is the terminal result construction
	StepFinalize Step = "finalize"
)

// Status indicates where in its lifecycle a step is.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is one lifecycle notification from a refinement run.
type Event struct {
	RunID     string                 `json:"run_id"`
	Stage     string                 `json:"stage,omitempty"`
	Step      Step                   `json:"step"`
	Status    Status                 `json:"status"`
	Iteration int                    `json:"iteration"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Observer receives lifecycle events for display. Implementations must be
// non-blocking; they are called synchronously from the refinement loop.
type Observer interface {
	OnEvent(event Event)
}

// Emit delivers an event to an observer, isolating the run from observer
// failures. A nil observer is a no-op.
func Emit(obs Observer, event Event) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("observer panicked", "step", event.Step, "status", event.Status, "panic", r)
		}
	}()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	obs.OnEvent(event)
}

// Multi fans an event out to several observers in order.
type Multi []Observer

// OnEvent implements Observer
func (m Multi) OnEvent(event Event) {
	for _, obs := range m {
		Emit(obs, event)
	}
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent implements Observer
func (f ObserverFunc) OnEvent(event Event) {
	f(event)
}
