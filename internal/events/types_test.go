package events

import (
	"bytes"
	"strings"
	"testing"
)

func TestEmitNilObserver(t *testing.T) {
	// Must not panic
	Emit(nil, Event{Step: StepGenerate, Status: StatusStarting})
}

func TestEmitSwallowsPanic(t *testing.T) {
	panicky := ObserverFunc(func(Event) {
		panic("observer bug")
	})
	// A panicking observer must never abort the caller
	Emit(panicky, Event{Step: StepValidate, Status: StatusCompleted})
}

func TestMultiDeliversInOrder(t *testing.T) {
	var order []string
	first := ObserverFunc(func(e Event) { order = append(order, "first") })
	second := ObserverFunc(func(e Event) { order = append(order, "second") })

	Multi{first, second}.OnEvent(Event{Step: StepCorrect, Status: StatusStarting})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected delivery order: %v", order)
	}
}

func TestMultiIsolatesFailingObserver(t *testing.T) {
	called := false
	panicky := ObserverFunc(func(Event) { panic("boom") })
	healthy := ObserverFunc(func(Event) { called = true })

	Multi{panicky, healthy}.OnEvent(Event{Step: StepGenerate, Status: StatusFailed})

	if !called {
		t.Error("observer after a panicking one was not called")
	}
}

func TestConsoleObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := NewConsoleObserver(&buf)

	obs.OnEvent(Event{
		Step:      StepValidate,
		Status:    StatusCompleted,
		Iteration: 2,
		Payload: map[string]interface{}{
			"composite_score": 0.87,
			"gate_status":     "warning",
		},
	})

	out := buf.String()
	if !strings.Contains(out, "validate") {
		t.Errorf("expected step name in output: %q", out)
	}
	if !strings.Contains(out, "score=0.870") {
		t.Errorf("expected score in output: %q", out)
	}
	if !strings.Contains(out, "gate=warning") {
		t.Errorf("expected gate status in output: %q", out)
	}
}
