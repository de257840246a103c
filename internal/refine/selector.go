package refine

import (
	"github.com/scipress/scipress/internal/types"
)

// Selector picks the best iteration to return when no iteration cleanly
// passes the gate. Ranking is a composite sort key, not sequential filters:
//
//  1. No critical issues (true ranks above false). A hard-looking rule
//     implemented as a sort key so that when every iteration has critical
//     issues the least-bad one is still returned instead of nothing.
//  2. Higher composite score.
//  3. Higher score on the tie-break dimension (the stage's highest-weighted
//     dimension unless configured otherwise).
//  4. Lower iteration index: earlier iterations are strictly cheaper, and a
//     model-driven correction is not guaranteed to be deterministic-improving.
type Selector struct {
	// TieBreakDimension is the raw dimension used at rank 3.
	TieBreakDimension string
}

// SelectBest returns the best iteration from a non-empty history and the
// reason it was chosen. A single-element history is returned unconditionally
// with reason "only_iteration". Returns nil for an empty history.
//
// The history is never mutated; calling SelectBest twice on the same
// history yields the same record.
func (s *Selector) SelectBest(history []*types.IterationRecord) (*types.IterationRecord, types.SelectionReason) {
	if len(history) == 0 {
		return nil, ""
	}
	if len(history) == 1 {
		return history[0], types.SelectionOnlyIteration
	}

	best := history[0]
	for _, rec := range history[1:] {
		if s.better(rec, best) {
			best = rec
		}
	}
	return best, types.SelectionBestRanked
}

// better reports whether a ranks strictly above b.
func (s *Selector) better(a, b *types.IterationRecord) bool {
	aClean := a.Report.CriticalCount() == 0
	bClean := b.Report.CriticalCount() == 0
	if aClean != bClean {
		return aClean
	}

	if a.Report.CompositeScore != b.Report.CompositeScore {
		return a.Report.CompositeScore > b.Report.CompositeScore
	}

	if s.TieBreakDimension != "" {
		aDim := a.Report.Scores.Get(s.TieBreakDimension)
		bDim := b.Report.Scores.Get(s.TieBreakDimension)
		if aDim != bDim {
			return aDim > bDim
		}
	}

	return a.Index < b.Index
}
