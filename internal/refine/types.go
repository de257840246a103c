package refine

import (
	"context"
	"time"

	"github.com/scipress/scipress/internal/events"
	"github.com/scipress/scipress/internal/gates"
	"github.com/scipress/scipress/internal/types"
)

// Services bundles the three external content calls for one refinement run.
// Implementations are typically backed by a generative model but the loop
// only assumes candidate-in/candidate-or-scores-out.
type Services interface {
	// Generate produces the initial candidate from the run's input context,
	// which the implementation carries internally.
	Generate(ctx context.Context) (*types.Candidate, error)

	// Validate scores a candidate and itemizes its defects. The returned
	// scores are raw dimension scores; verdict derivation belongs to the
	// gate, not the validator.
	Validate(ctx context.Context, candidate *types.Candidate) (types.ScoreSet, []types.Issue, error)

	// Correct produces a revised candidate from the current candidate and
	// its quality report.
	Correct(ctx context.Context, candidate *types.Candidate, report *types.QualityReport) (*types.Candidate, error)
}

// SchemaChecker is the cheap structural pre-validation gate. It runs before
// the expensive validation service on every iteration.
type SchemaChecker interface {
	// Check returns a structural quality score in [0,1]. An error counts
	// as structurally unusable.
	Check(candidate *types.Candidate) (float64, error)
}

// Store durably records iterations and the selected best iteration per run.
// Writes are side effects: the loop never reads back its own iterations.
type Store interface {
	SaveIteration(ctx context.Context, runID string, rec *types.IterationRecord) error
	SaveBest(ctx context.Context, runID string, rec *types.IterationRecord) error
}

// Config controls iteration budget, the schema floor, early stop, and retry
// behavior for one run.
type Config struct {
	// MaxIterations bounds correction attempts. The hard ceiling on
	// generation calls is MaxIterations+1 (one initial generation plus up
	// to MaxIterations corrections).
	MaxIterations int

	// SchemaFloor is the hard floor for the structural pre-check. A
	// candidate scoring below it terminates the run without invoking the
	// validation service.
	SchemaFloor float64

	// Window is the degradation detection window (default 2).
	Window int

	// Retry configures transient-error retry for the service calls.
	Retry RetryConfig
}

// DefaultConfig returns the reference loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 3,
		SchemaFloor:   0.3,
		Window:        2,
		Retry:         DefaultRetryConfig(),
	}
}

// Request carries everything one refinement run needs.
type Request struct {
	// RunID keys all persisted artifacts for this run
	RunID string

	// Stage names the pipeline stage for events and logs (e.g. "extraction")
	Stage string

	Services Services
	Checker  SchemaChecker
	Gate     *gates.Gate

	// Store is optional; nil disables persistence
	Store Store

	// Observer is optional; nil disables progress events
	Observer events.Observer

	// Collector is optional; nil disables metrics collection
	Collector Collector

	Config Config

	// now is overridable for tests
	now func() time.Time
}
