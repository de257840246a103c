// Package pipeline chains the document-processing stages: single-shot
// classification, then one quality-gated refinement run per content stage,
// each feeding its accepted artifact to the stages downstream.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scipress/scipress/internal/ai"
	"github.com/scipress/scipress/internal/config"
	"github.com/scipress/scipress/internal/events"
	"github.com/scipress/scipress/internal/gates"
	"github.com/scipress/scipress/internal/refine"
	"github.com/scipress/scipress/internal/schema"
	"github.com/scipress/scipress/internal/storage"
	"github.com/scipress/scipress/internal/types"
)

// StageOutcome is the result of one stage run over one document.
type StageOutcome struct {
	Stage  string
	RunID  string
	Result *types.RefinementResult
}

// Outcome is the terminal result of processing one document.
type Outcome struct {
	DocumentID string
	Path       string
	Status     storage.DocumentStatus
	Stages     []StageOutcome

	// FailedStage names the stage that ended the chain, empty on success
	FailedStage string
}

// Pipeline runs documents through classification and the refinement stages.
type Pipeline struct {
	cfg       *config.Config
	store     storage.Storage
	observer  events.Observer
	collector refine.Collector

	// classify and newServices are the model-call seams, overridable in tests
	classify    func(ctx context.Context, documentText string) (*ai.Classification, *types.Candidate, error)
	newServices func(stage string, input ai.Input) (refine.Services, error)
}

// New creates a pipeline over a live model client. Store, observer, and
// collector are optional.
func New(cfg *config.Config, client *ai.Client, store storage.Storage, observer events.Observer, collector refine.Collector) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}

	classifier, err := ai.NewClassifier(client)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		observer:  observer,
		collector: collector,
		classify:  classifier.Classify,
	}
	p.newServices = func(stage string, input ai.Input) (refine.Services, error) {
		spec, ok := stagePrompts[stage]
		if !ok {
			return nil, fmt.Errorf("unknown stage: %s", stage)
		}
		stageCfg, err := cfg.Stage(stage)
		if err != nil {
			return nil, err
		}
		if stageCfg.Model != "" {
			spec.Model = stageCfg.Model
		} else if cfg.AI.Model != "" {
			spec.Model = cfg.AI.Model
		}
		if stageCfg.MaxTokens > 0 {
			spec.MaxTokens = stageCfg.MaxTokens
		}
		return ai.NewStageServices(client, spec, input)
	}
	return p, nil
}

// ProcessAll runs every document through the pipeline, at most
// MaxConcurrentDocuments at a time. One document's failure does not stop
// the others; the first infrastructure error does.
func (p *Pipeline) ProcessAll(ctx context.Context, paths []string) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentDocuments)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			outcome, err := p.Process(ctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Process runs one document through classification and all refinement
// stages. A run that ends in a failure status marks the document failed and
// stops the chain; the error return is reserved for infrastructure faults
// (unreadable input, storage unavailable).
func (p *Pipeline) Process(ctx context.Context, path string) (*Outcome, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if len(text) == 0 {
		return nil, fmt.Errorf("document is empty: %s", path)
	}

	outcome := &Outcome{
		DocumentID: uuid.New().String(),
		Path:       path,
		Status:     storage.DocumentProcessing,
	}

	if p.store != nil {
		doc := &storage.DocumentRecord{
			DocumentID: outcome.DocumentID,
			Path:       path,
			Status:     storage.DocumentProcessing,
			CreatedAt:  time.Now().UTC(),
		}
		if err := p.store.CreateDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	input := ai.Input{
		DocumentText: string(text),
		Upstream:     make(map[string]*types.Candidate),
	}

	// Classification is single-shot: a wrong classification degrades
	// downstream validation scores rather than failing the document.
	classification, candidate, err := p.classify(ctx, input.DocumentText)
	if err != nil {
		return p.fail(ctx, outcome, StageClassification, fmt.Errorf("classification failed: %w", err))
	}
	input.Upstream[StageClassification] = candidate
	events.Emit(p.observer, events.Event{
		RunID:  outcome.DocumentID,
		Stage:  StageClassification,
		Step:   events.StepGenerate,
		Status: events.StatusCompleted,
		Payload: map[string]interface{}{
			"document_type": classification.DocumentType,
			"discipline":    classification.Discipline,
		},
	})
	if p.store != nil {
		if err := p.store.UpdateDocument(ctx, outcome.DocumentID, storage.DocumentProcessing, candidate.Raw()); err != nil {
			return nil, err
		}
	}

	for _, stage := range refinedStages {
		result, err := p.runStage(ctx, outcome.DocumentID, stage, input)
		if err != nil {
			return nil, err
		}
		outcome.Stages = append(outcome.Stages, StageOutcome{
			Stage:  stage,
			RunID:  result.RunID,
			Result: result,
		})

		if result.FinalStatus.IsFailure() || result.Best == nil {
			return p.fail(ctx, outcome, stage, nil)
		}
		input.Upstream[stage] = result.Best.Candidate
	}

	outcome.Status = storage.DocumentCompleted
	if p.store != nil {
		if err := p.store.UpdateDocument(ctx, outcome.DocumentID, storage.DocumentCompleted, nil); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// runStage executes one refinement run and records it.
func (p *Pipeline) runStage(ctx context.Context, documentID, stage string, input ai.Input) (*types.RefinementResult, error) {
	stageCfg, err := p.cfg.Stage(stage)
	if err != nil {
		return nil, err
	}
	gate, err := gates.New(stageCfg.Thresholds, gates.DefaultPolicy())
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", stage, err)
	}
	services, err := p.newServices(stage, input)
	if err != nil {
		return nil, err
	}
	loopCfg, err := p.cfg.RefineConfig()
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	if p.store != nil {
		if err := p.store.CreateRun(ctx, documentID, runID, stage); err != nil {
			return nil, err
		}
	}

	req := refine.Request{
		RunID:     runID,
		Stage:     stage,
		Services:  services,
		Checker:   schema.NewChecker(stageShapes[stage]),
		Gate:      gate,
		Observer:  p.observer,
		Collector: p.collector,
		Config:    loopCfg,
	}
	if p.store != nil {
		req.Store = p.store
	}

	result, err := refine.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", stage, err)
	}

	if p.store != nil {
		if err := p.store.CompleteRun(ctx, runID, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// fail marks the document failed and returns the outcome. A non-nil cause
// is an infrastructure-ish stage failure worth surfacing in the outcome's
// failed stage rather than as a process error.
func (p *Pipeline) fail(ctx context.Context, outcome *Outcome, stage string, cause error) (*Outcome, error) {
	outcome.Status = storage.DocumentFailed
	outcome.FailedStage = stage
	if cause != nil {
		events.Emit(p.observer, events.Event{
			RunID:   outcome.DocumentID,
			Stage:   stage,
			Step:    events.StepFinalize,
			Status:  events.StatusFailed,
			Payload: map[string]interface{}{"error": cause.Error()},
		})
	}
	if p.store != nil {
		if err := p.store.UpdateDocument(ctx, outcome.DocumentID, storage.DocumentFailed, nil); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}
