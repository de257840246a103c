package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Candidate is the artifact under refinement: an opaque JSON document
// produced by a generation service. The refinement loop never inspects its
// content beyond serialization; structure is interpreted only by the
// collaborators (validator, corrector, schema checker).
type Candidate struct {
	raw json.RawMessage
}

// NewCandidate wraps raw JSON as a candidate. Returns an error if the bytes
// are not syntactically valid JSON - an unparseable candidate is a fatal
// output condition, never silently carried forward.
func NewCandidate(raw []byte) (*Candidate, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("candidate is not valid JSON (%d bytes)", len(raw))
	}
	// Copy so callers can't mutate the candidate after creation
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &Candidate{raw: buf}, nil
}

// MarshalCandidate encodes a value as JSON and wraps it as a candidate.
func MarshalCandidate(v interface{}) (*Candidate, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candidate: %w", err)
	}
	return &Candidate{raw: raw}, nil
}

// MustCandidate wraps raw JSON, panicking on invalid input. Test helper only.
func MustCandidate(raw []byte) *Candidate {
	c, err := NewCandidate(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// Raw returns the candidate's JSON bytes.
func (c *Candidate) Raw() json.RawMessage {
	return c.raw
}

// Decode unmarshals the candidate into a generic document tree.
func (c *Candidate) Decode() (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(c.raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode candidate: %w", err)
	}
	return doc, nil
}

// Severity classifies how damaging a validator-reported issue is
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityModerate, SeverityMinor:
		return true
	}
	return false
}

// Issue is a single validator finding. Informational to the control loop -
// only the critical count affects control flow - but the full list is
// persisted for human review and fed back to the correction service.
type Issue struct {
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Location       string   `json:"location,omitempty"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// ScoreSet maps named quality dimensions (completeness, accuracy,
// schema_compliance, consistency, ...) to values in [0.0, 1.0].
type ScoreSet map[string]float64

// Get returns the score for a dimension. Missing dimensions read as 0.0:
// fail-safe, never fail-open.
func (s ScoreSet) Get(dimension string) float64 {
	return s[dimension]
}

// GateStatus is the gate's verdict on one iteration
type GateStatus string

const (
	GatePassed  GateStatus = "passed"
	GateWarning GateStatus = "warning"
	GateFailed  GateStatus = "failed"
)

// QualityReport is the structured result of validating one candidate.
// CompositeScore and Status are derived by the quality gate, never supplied
// raw by the validator.
type QualityReport struct {
	Scores         ScoreSet   `json:"scores"`
	Issues         []Issue    `json:"issues,omitempty"`
	CompositeScore float64    `json:"composite_score"`
	Status         GateStatus `json:"status"`
}

// CriticalCount returns the number of critical-severity issues.
func (r *QualityReport) CriticalCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// IterationRecord pairs one candidate with its quality report. Immutable
// once created. Index 0 is always the unmodified first generation; index n
// (n>0) is the candidate produced by the n-th correction attempt.
type IterationRecord struct {
	Index     int            `json:"index"`
	Candidate *Candidate     `json:"-"`
	Report    *QualityReport `json:"report,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// FinalStatus is the terminal outcome of a refinement run
type FinalStatus string

const (
	StatusPassed                 FinalStatus = "passed"
	StatusMaxIterationsReached   FinalStatus = "max_iterations_reached"
	StatusEarlyStoppedDegrading  FinalStatus = "early_stopped_degradation"
	StatusFailedGeneration       FinalStatus = "failed_generation"
	StatusFailedSchemaValidation FinalStatus = "failed_schema_validation"
	StatusFailedValidation       FinalStatus = "failed_validation"
	StatusFailedInvalidOutput    FinalStatus = "failed_invalid_output"
)

// IsFailure reports whether the status is a true failure, as opposed to a
// successful termination carrying a warning (max iterations, degradation).
func (s FinalStatus) IsFailure() bool {
	switch s {
	case StatusFailedGeneration, StatusFailedSchemaValidation,
		StatusFailedValidation, StatusFailedInvalidOutput:
		return true
	}
	return false
}

// SelectionReason explains why the selector chose a particular iteration
type SelectionReason string

const (
	SelectionOnlyIteration SelectionReason = "only_iteration"
	SelectionBestRanked    SelectionReason = "best_ranked"
)

// RefinementResult is the terminal output of one refinement run. Created
// once per run and never mutated after being returned.
type RefinementResult struct {
	RunID           string            `json:"run_id"`
	Best            *IterationRecord  `json:"-"`
	History         []*IterationRecord `json:"-"`
	FinalStatus     FinalStatus       `json:"final_status"`
	SelectionReason SelectionReason   `json:"selection_reason,omitempty"`
	Warning         string            `json:"warning,omitempty"`
	Elapsed         time.Duration     `json:"elapsed"`
}

// ThresholdConfig configures the quality gate for one artifact type:
// per-dimension minimum scores, per-dimension weights for the composite
// score, and the critical-issue ceiling (normally 0).
type ThresholdConfig struct {
	// Minimums maps dimension name -> minimum acceptable score
	Minimums map[string]float64 `yaml:"minimums" json:"minimums"`

	// Weights maps dimension name -> composite weight. Must sum to 1.0
	// across the configured dimensions; checked at startup, not auto
	// normalized.
	Weights map[string]float64 `yaml:"weights" json:"weights"`

	// MaxCriticalIssues is the critical-issue ceiling for passing (normally 0)
	MaxCriticalIssues int `yaml:"max_critical_issues" json:"max_critical_issues"`

	// PrimaryDimension breaks ties when selecting the best iteration.
	// Empty means: use the highest-weighted dimension.
	PrimaryDimension string `yaml:"primary_dimension,omitempty" json:"primary_dimension,omitempty"`
}

// weightSumTolerance absorbs float accumulation error when checking that
// weights sum to 1.0.
const weightSumTolerance = 1e-6

// Validate checks the threshold configuration. A malformed config is a
// programmer/operator error surfaced at startup, before any run begins.
func (c *ThresholdConfig) Validate() error {
	if len(c.Weights) == 0 {
		return fmt.Errorf("at least one weighted dimension is required")
	}
	sum := 0.0
	for dim, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %q cannot be negative (got %f)", dim, w)
		}
		sum += w
	}
	if sum < 1.0-weightSumTolerance || sum > 1.0+weightSumTolerance {
		return fmt.Errorf("dimension weights must sum to 1.0 (got %f)", sum)
	}
	for dim, min := range c.Minimums {
		if min < 0 || min > 1 {
			return fmt.Errorf("minimum for %q must be in [0,1] (got %f)", dim, min)
		}
	}
	if c.MaxCriticalIssues < 0 {
		return fmt.Errorf("max_critical_issues cannot be negative (got %d)", c.MaxCriticalIssues)
	}
	if c.PrimaryDimension != "" {
		if _, ok := c.Weights[c.PrimaryDimension]; !ok {
			return fmt.Errorf("primary_dimension %q is not a weighted dimension", c.PrimaryDimension)
		}
	}
	return nil
}

// TieBreakDimension returns the dimension used as the selector tie-break:
// PrimaryDimension when set, otherwise the highest-weighted dimension
// (lexicographically smallest name on equal weights, for determinism).
func (c ThresholdConfig) TieBreakDimension() string {
	if c.PrimaryDimension != "" {
		return c.PrimaryDimension
	}
	best := ""
	bestWeight := -1.0
	for dim, w := range c.Weights {
		if w > bestWeight || (w == bestWeight && dim < best) {
			best = dim
			bestWeight = w
		}
	}
	return best
}
