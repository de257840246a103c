package refine

import (
	"sort"
	"sync"
	"time"

	"github.com/scipress/scipress/internal/types"
)

// Collector provides instrumentation for refinement runs. Implementations
// track per-iteration and per-run metrics to measure quality improvement,
// latency, and how often runs pass cleanly versus exhaust their budget.
//
// This interface is optional - a nil Collector on the Request disables
// metrics collection.
type Collector interface {
	// RecordIterationStart is called before generation (index 0) and before
	// each correction attempt
	RecordIterationStart(runID string, index int)

	// RecordIterationEnd is called when an iteration has been validated
	RecordIterationEnd(runID string, index int, metrics *IterationMetrics)

	// RecordRunComplete is called once per run at termination
	RecordRunComplete(result *types.RefinementResult, metrics *RunMetrics)
}

// IterationMetrics captures metrics for a single validated iteration.
type IterationMetrics struct {
	Index          int
	CompositeScore float64
	GateStatus     types.GateStatus
	CriticalIssues int
	Duration       time.Duration
}

// RunMetrics captures metrics for an entire refinement run.
type RunMetrics struct {
	RunID       string
	Stage       string
	FinalStatus types.FinalStatus
	Iterations  int
	BestScore   float64
	Duration    time.Duration

	// Iterations contains the per-iteration metrics, attached at completion
	PerIteration []*IterationMetrics
}

// AggregateMetrics provides rolled-up statistics across runs.
type AggregateMetrics struct {
	TotalRuns        int
	PassedRuns       int
	MaxedOutRuns     int
	EarlyStoppedRuns int
	FailedRuns       int

	TotalIterations int
	MeanIterations  float64
	P50Iterations   int
	P95Iterations   int

	MeanBestScore float64
	TotalDuration time.Duration

	// ByStage breaks down run counts and mean scores per pipeline stage
	ByStage map[string]*StageMetrics
}

// StageMetrics aggregates runs for one pipeline stage.
type StageMetrics struct {
	Count         int
	PassedCount   int
	MeanBestScore float64
}

// InMemoryCollector is a thread-safe in-memory Collector. Runs for several
// documents may execute concurrently and share one collector; pending
// iteration metrics are keyed by run ID so interleaved runs never see each
// other's records.
type InMemoryCollector struct {
	mu sync.Mutex

	runs    []*RunMetrics
	pending map[string][]*IterationMetrics
}

// NewInMemoryCollector creates an empty in-memory collector
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		pending: make(map[string][]*IterationMetrics),
	}
}

// RecordIterationStart implements Collector
func (c *InMemoryCollector) RecordIterationStart(runID string, index int) {}

// RecordIterationEnd implements Collector
func (c *InMemoryCollector) RecordIterationEnd(runID string, index int, metrics *IterationMetrics) {
	if metrics == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[runID] = append(c.pending[runID], metrics)
}

// RecordRunComplete implements Collector
func (c *InMemoryCollector) RecordRunComplete(result *types.RefinementResult, metrics *RunMetrics) {
	if metrics == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	metrics.PerIteration = c.pending[metrics.RunID]
	delete(c.pending, metrics.RunID)
	c.runs = append(c.runs, metrics)
}

// Runs returns all completed run metrics.
func (c *InMemoryCollector) Runs() []*RunMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*RunMetrics, len(c.runs))
	copy(out, c.runs)
	return out
}

// Aggregate rolls up statistics across all completed runs.
func (c *InMemoryCollector) Aggregate() *AggregateMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	agg := &AggregateMetrics{
		ByStage: make(map[string]*StageMetrics),
	}
	if len(c.runs) == 0 {
		return agg
	}

	var iterCounts []int
	var scoreSum float64

	for _, run := range c.runs {
		agg.TotalRuns++
		agg.TotalIterations += run.Iterations
		agg.TotalDuration += run.Duration
		scoreSum += run.BestScore
		iterCounts = append(iterCounts, run.Iterations)

		switch {
		case run.FinalStatus == types.StatusPassed:
			agg.PassedRuns++
		case run.FinalStatus == types.StatusMaxIterationsReached:
			agg.MaxedOutRuns++
		case run.FinalStatus == types.StatusEarlyStoppedDegrading:
			agg.EarlyStoppedRuns++
		case run.FinalStatus.IsFailure():
			agg.FailedRuns++
		}

		sm := agg.ByStage[run.Stage]
		if sm == nil {
			sm = &StageMetrics{}
			agg.ByStage[run.Stage] = sm
		}
		sm.Count++
		if run.FinalStatus == types.StatusPassed {
			sm.PassedCount++
		}
		// Incremental mean update
		sm.MeanBestScore += (run.BestScore - sm.MeanBestScore) / float64(sm.Count)
	}

	agg.MeanIterations = float64(agg.TotalIterations) / float64(agg.TotalRuns)
	agg.MeanBestScore = scoreSum / float64(agg.TotalRuns)

	sort.Ints(iterCounts)
	agg.P50Iterations = percentile(iterCounts, 50)
	agg.P95Iterations = percentile(iterCounts, 95)

	return agg
}

// percentile returns the Nth percentile from a sorted slice
func percentile(sorted []int, p int) int {
	if len(sorted) == 0 {
		return 0
	}
	index := (len(sorted) * p) / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
