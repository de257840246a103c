package refine

import (
	"github.com/scipress/scipress/internal/types"
)

// DegradationDetector decides whether continuing to correct is
// counter-productive: the run has moved away from its best-ever composite
// score for at least Window consecutive iterations.
//
// The window exists to filter single-iteration noise. One bad iteration
// followed by recovery never triggers an early stop; a peak that occurred at
// iteration 0 and is never rebeaten for Window correction attempts does.
type DegradationDetector struct {
	// Window is the number of consecutive below-peak iterations required
	// (default 2).
	Window int
}

// NewDegradationDetector creates a detector with the given window,
// defaulting to 2 when non-positive.
func NewDegradationDetector(window int) *DegradationDetector {
	if window <= 0 {
		window = 2
	}
	return &DegradationDetector{Window: window}
}

// IsDegrading reports whether every one of the last Window composite scores
// is strictly below the peak across all iterations seen so far. Histories
// of length <= Window never degrade.
func (d *DegradationDetector) IsDegrading(history []*types.IterationRecord) bool {
	window := d.Window
	if window <= 0 {
		window = 2
	}
	if len(history) < window+1 {
		return false
	}

	peak := history[0].Report.CompositeScore
	for _, rec := range history[1:] {
		if rec.Report.CompositeScore > peak {
			peak = rec.Report.CompositeScore
		}
	}

	for _, rec := range history[len(history)-window:] {
		if rec.Report.CompositeScore >= peak {
			return false
		}
	}
	return true
}
