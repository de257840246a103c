// Package gates evaluates validator score sets against configured quality
// thresholds and derives the composite score and pass/warning/fail verdict
// for each refinement iteration.
package gates

import (
	"fmt"
	"math"

	"github.com/scipress/scipress/internal/types"
)

// Policy holds the discrete gate policy constants. The defaults mirror the
// reference behavior and are tunable, not load-bearing correctness
// constraints.
type Policy struct {
	// CriticalScoreCap caps the composite score of any iteration carrying
	// critical issues, so it can never be mistaken for "nearly passing".
	CriticalScoreCap float64

	// WarnMargin is the maximum absolute shortfall below a dimension
	// minimum that still qualifies for a warning verdict.
	WarnMargin float64

	// WarnMaxDimensions is the maximum number of below-minimum dimensions
	// that still qualifies for a warning verdict.
	WarnMaxDimensions int
}

// DefaultPolicy returns the reference gate policy.
func DefaultPolicy() Policy {
	return Policy{
		CriticalScoreCap:  0.69,
		WarnMargin:        0.05,
		WarnMaxDimensions: 2,
	}
}

// Gate evaluates quality reports against a threshold configuration.
type Gate struct {
	thresholds types.ThresholdConfig
	policy     Policy
}

// New creates a gate for the given thresholds. The threshold configuration
// is validated here, at startup: a malformed config (weights not summing to
// 1.0, out-of-range minimums) is an operator error, not a runtime state.
func New(thresholds types.ThresholdConfig, policy Policy) (*Gate, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid threshold config: %w", err)
	}
	if policy.CriticalScoreCap <= 0 || policy.CriticalScoreCap >= 1 {
		return nil, fmt.Errorf("critical score cap must be in (0,1) (got %f)", policy.CriticalScoreCap)
	}
	if policy.WarnMargin < 0 {
		return nil, fmt.Errorf("warn margin cannot be negative (got %f)", policy.WarnMargin)
	}
	return &Gate{thresholds: thresholds, policy: policy}, nil
}

// Thresholds returns the gate's threshold configuration.
func (g *Gate) Thresholds() types.ThresholdConfig {
	return g.thresholds
}

// Evaluate derives the composite score and verdict for one validator
// result. The issue list passes through unchanged; scores for dimensions
// the validator omitted read as 0.0.
//
// Verdict rules, in order:
//  1. Any critical issue beyond the configured ceiling forces failed and
//     caps the composite score. This overrides every other rule.
//  2. Every configured dimension at or above its minimum: passed.
//  3. At most WarnMaxDimensions dimensions short, each by at most
//     WarnMargin: warning.
//  4. Otherwise: failed.
func (g *Gate) Evaluate(scores types.ScoreSet, issues []types.Issue) *types.QualityReport {
	report := &types.QualityReport{
		Scores: scores,
		Issues: issues,
	}

	composite := 0.0
	for dim, weight := range g.thresholds.Weights {
		composite += weight * scores.Get(dim)
	}
	report.CompositeScore = composite

	if report.CriticalCount() > g.thresholds.MaxCriticalIssues {
		report.Status = types.GateFailed
		report.CompositeScore = math.Min(composite, g.policy.CriticalScoreCap)
		return report
	}

	shortfalls := 0
	withinMargin := true
	for dim, min := range g.thresholds.Minimums {
		score := scores.Get(dim)
		if score >= min {
			continue
		}
		shortfalls++
		if min-score > g.policy.WarnMargin {
			withinMargin = false
		}
	}

	switch {
	case shortfalls == 0:
		report.Status = types.GatePassed
	case shortfalls <= g.policy.WarnMaxDimensions && withinMargin:
		report.Status = types.GateWarning
	default:
		report.Status = types.GateFailed
	}

	return report
}
