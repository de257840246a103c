// Package refine implements the quality-gated refinement loop at the heart
// of the document pipeline: generate a candidate artifact, validate it,
// evaluate the validator's scores against configured thresholds, and either
// accept the candidate, correct it and try again, or stop.
//
// The loop is a small state machine:
//
//	Generating -> Validating -> Gating -> Correcting -> Validating -> ...
//	                                  \-> Terminated
//
// Run handles iteration mechanics (history, retry, budget, early stop)
// while delegating all content judgment to pluggable collaborators: a
// Services implementation produces and repairs candidates, a SchemaChecker
// provides the cheap structural pre-gate, and a gates.Gate turns validator
// scores into verdicts.
//
// Termination guarantees:
//
//   - MaxIterations bounds correction attempts, so generation calls are
//     bounded by MaxIterations+1.
//   - A degradation check stops early when the last Window iterations all
//     score strictly below the best composite seen so far.
//   - Every termination that saw at least one validated iteration returns
//     a best iteration; work already paid for is never discarded.
//   - Runtime failures (schema floor, unparseable corrections, exhausted
//     retries) surface as a FinalStatus on the result, never as an error
//     from Run. Errors are reserved for invalid configuration.
//
// A single run is synchronous and single-threaded: each state transition
// blocks on exactly one outbound call. Independent runs may execute
// concurrently; each owns its history exclusively and the store is keyed
// by run ID, so no locking is needed at this layer. There is deliberately
// no mechanism for aborting a run mid-call beyond context cancellation of
// the underlying service calls.
//
// Example:
//
//	gate, _ := gates.New(thresholds, gates.DefaultPolicy())
//	result, err := refine.Run(ctx, refine.Request{
//	    RunID:    runID,
//	    Stage:    "extraction",
//	    Services: svc,
//	    Checker:  checker,
//	    Gate:     gate,
//	    Store:    store,
//	    Observer: obs,
//	    Config:   refine.DefaultConfig(),
//	})
package refine
