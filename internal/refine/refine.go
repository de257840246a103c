package refine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scipress/scipress/internal/events"
	"github.com/scipress/scipress/internal/types"
)

// Run drives one quality-gated refinement run to termination. The function
// handles iteration mechanics (history, retry, budget, early stop) while
// delegating content generation and judgment to the request's collaborators.
//
// Run returns an error only for an invalid request. Every runtime failure -
// schema floor, unparseable correction, exhausted retries - terminates the
// run with the corresponding FinalStatus on the result, preserving the best
// iteration gathered so far. Losing work already paid for in generation
// calls is worse than returning a sub-threshold artifact with a warning.
func Run(ctx context.Context, req Request) (*types.RefinementResult, error) {
	if req.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if req.Checker == nil {
		return nil, fmt.Errorf("schema checker is required")
	}
	if req.Gate == nil {
		return nil, fmt.Errorf("gate is required")
	}
	if req.RunID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	if req.Config.MaxIterations < 0 {
		return nil, fmt.Errorf("MaxIterations cannot be negative: %d", req.Config.MaxIterations)
	}
	if req.Config.SchemaFloor < 0 || req.Config.SchemaFloor > 1 {
		return nil, fmt.Errorf("SchemaFloor must be in [0,1]: %f", req.Config.SchemaFloor)
	}

	r := &run{
		req:      req,
		detector: NewDegradationDetector(req.Config.Window),
		selector: &Selector{TieBreakDimension: req.Gate.Thresholds().TieBreakDimension()},
		now:      req.now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r.execute(ctx), nil
}

// run holds the mutable state of one refinement run. The history is owned
// exclusively by this run for its duration; it is mirrored to the store as
// a side effect and never read back.
type run struct {
	req      Request
	detector *DegradationDetector
	selector *Selector
	now      func() time.Time

	history     []*types.IterationRecord
	corrections int
	started     time.Time
}

func (r *run) execute(ctx context.Context) *types.RefinementResult {
	r.started = r.now()

	// Generating (iteration 0 only)
	r.emit(events.StepGenerate, events.StatusStarting, 0, nil)
	if r.req.Collector != nil {
		r.req.Collector.RecordIterationStart(r.req.RunID, 0)
	}

	var candidate *types.Candidate
	err := retryWithBackoff(ctx, r.req.Config.Retry, "generate", func(ctx context.Context) error {
		var genErr error
		candidate, genErr = r.req.Services.Generate(ctx)
		return genErr
	})
	if err != nil {
		r.emit(events.StepGenerate, events.StatusFailed, 0, map[string]interface{}{"error": err.Error()})
		return r.terminate(types.StatusFailedGeneration, fmt.Sprintf("generation failed: %v", err))
	}
	r.emit(events.StepGenerate, events.StatusCompleted, 0, nil)

	current := &types.IterationRecord{
		Index:     0,
		Candidate: candidate,
		CreatedAt: r.now(),
	}

	for {
		// Validating: cheap structural check gates the expensive validator
		r.emit(events.StepSchemaCheck, events.StatusStarting, current.Index, nil)
		schemaScore, err := r.req.Checker.Check(current.Candidate)
		if err != nil || schemaScore < r.req.Config.SchemaFloor {
			warning := fmt.Sprintf("structural check failed at iteration %d (score %.2f, floor %.2f)",
				current.Index, schemaScore, r.req.Config.SchemaFloor)
			if err != nil {
				warning = fmt.Sprintf("structural check errored at iteration %d: %v", current.Index, err)
			}
			r.emit(events.StepSchemaCheck, events.StatusFailed, current.Index,
				map[string]interface{}{"schema_score": schemaScore, "error": warning})
			// Persist the structurally unusable candidate for post-mortem,
			// without a report
			r.persistIteration(ctx, current)
			return r.terminate(types.StatusFailedSchemaValidation, warning)
		}
		r.emit(events.StepSchemaCheck, events.StatusCompleted, current.Index,
			map[string]interface{}{"schema_score": schemaScore})

		r.emit(events.StepValidate, events.StatusStarting, current.Index, nil)
		iterStart := r.now()
		var scores types.ScoreSet
		var issues []types.Issue
		err = retryWithBackoff(ctx, r.req.Config.Retry, "validate", func(ctx context.Context) error {
			var valErr error
			scores, issues, valErr = r.req.Services.Validate(ctx, current.Candidate)
			return valErr
		})
		if err != nil {
			r.emit(events.StepValidate, events.StatusFailed, current.Index, map[string]interface{}{"error": err.Error()})
			return r.terminate(types.StatusFailedValidation, fmt.Sprintf("validation failed: %v", err))
		}

		report := r.req.Gate.Evaluate(scores, issues)
		current.Report = report
		r.persistIteration(ctx, current)
		r.history = append(r.history, current)

		r.emit(events.StepValidate, events.StatusCompleted, current.Index, map[string]interface{}{
			"composite_score": report.CompositeScore,
			"gate_status":     string(report.Status),
			"critical_issues": report.CriticalCount(),
		})
		if r.req.Collector != nil {
			r.req.Collector.RecordIterationEnd(r.req.RunID, current.Index, &IterationMetrics{
				Index:          current.Index,
				CompositeScore: report.CompositeScore,
				GateStatus:     report.Status,
				CriticalIssues: report.CriticalCount(),
				Duration:       r.now().Sub(iterStart),
			})
		}

		// Gating
		if report.Status == types.GatePassed {
			return r.terminate(types.StatusPassed, "")
		}

		if r.detector.IsDegrading(r.history) {
			return r.terminate(types.StatusEarlyStoppedDegrading,
				fmt.Sprintf("quality degrading: last %d iterations all below peak composite score", r.detector.Window))
		}

		if r.corrections >= r.req.Config.MaxIterations {
			return r.terminate(types.StatusMaxIterationsReached,
				fmt.Sprintf("no iteration reached passing quality within %d correction attempts", r.req.Config.MaxIterations))
		}

		// Correcting
		nextIndex := current.Index + 1
		r.emit(events.StepCorrect, events.StatusStarting, nextIndex, nil)
		if r.req.Collector != nil {
			r.req.Collector.RecordIterationStart(r.req.RunID, nextIndex)
		}

		var corrected *types.Candidate
		err = retryWithBackoff(ctx, r.req.Config.Retry, "correct", func(ctx context.Context) error {
			var corrErr error
			corrected, corrErr = r.req.Services.Correct(ctx, current.Candidate, report)
			return corrErr
		})
		if err != nil {
			r.emit(events.StepCorrect, events.StatusFailed, nextIndex, map[string]interface{}{"error": err.Error()})
			return r.terminate(types.StatusFailedInvalidOutput, fmt.Sprintf("correction failed: %v", err))
		}
		r.emit(events.StepCorrect, events.StatusCompleted, nextIndex, nil)

		r.corrections++
		current = &types.IterationRecord{
			Index:     nextIndex,
			Candidate: corrected,
			CreatedAt: r.now(),
		}
	}
}

// terminate builds the terminal result, selecting the best iteration from
// history and mirroring it to the store's best slot.
func (r *run) terminate(status types.FinalStatus, warning string) *types.RefinementResult {
	result := &types.RefinementResult{
		RunID:       r.req.RunID,
		History:     r.history,
		FinalStatus: status,
		Warning:     warning,
		Elapsed:     r.now().Sub(r.started),
	}

	if status == types.StatusPassed {
		// The passing iteration is by definition the last validated one
		result.Best = r.history[len(r.history)-1]
		result.SelectionReason = types.SelectionBestRanked
		if len(r.history) == 1 {
			result.SelectionReason = types.SelectionOnlyIteration
		}
	} else {
		result.Best, result.SelectionReason = r.selector.SelectBest(r.history)
	}

	if result.Best != nil && r.req.Store != nil {
		if err := r.req.Store.SaveBest(context.Background(), r.req.RunID, result.Best); err != nil {
			slog.Warn("failed to save best iteration", "run_id", r.req.RunID, "error", err)
		}
	}

	payload := map[string]interface{}{"final_status": string(status)}
	if result.Best != nil && result.Best.Report != nil {
		payload["composite_score"] = result.Best.Report.CompositeScore
		payload["best_iteration"] = result.Best.Index
	}
	eventStatus := events.StatusCompleted
	if status.IsFailure() {
		eventStatus = events.StatusFailed
		payload["error"] = warning
	}
	r.emit(events.StepFinalize, eventStatus, len(r.history), payload)

	if r.req.Collector != nil {
		r.req.Collector.RecordRunComplete(result, &RunMetrics{
			RunID:       r.req.RunID,
			Stage:       r.req.Stage,
			FinalStatus: status,
			Iterations:  len(r.history),
			Duration:    result.Elapsed,
			BestScore:   bestScore(result),
		})
	}

	return result
}

// persistIteration mirrors an iteration to the store. Persistence is a side
// effect; failures are logged and do not abort the run.
func (r *run) persistIteration(ctx context.Context, rec *types.IterationRecord) {
	if r.req.Store == nil {
		return
	}
	if err := r.req.Store.SaveIteration(ctx, r.req.RunID, rec); err != nil {
		slog.Warn("failed to persist iteration", "run_id", r.req.RunID, "index", rec.Index, "error", err)
	}
}

func (r *run) emit(step events.Step, status events.Status, iteration int, payload map[string]interface{}) {
	events.Emit(r.req.Observer, events.Event{
		RunID:     r.req.RunID,
		Stage:     r.req.Stage,
		Step:      step,
		Status:    status,
		Iteration: iteration,
		Payload:   payload,
	})
}

func bestScore(result *types.RefinementResult) float64 {
	if result.Best == nil || result.Best.Report == nil {
		return 0
	}
	return result.Best.Report.CompositeScore
}
