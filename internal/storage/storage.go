package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scipress/scipress/internal/types"
)

// DocumentStatus tracks a document through the pipeline
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// DocumentRecord is one ingested document and its pipeline outcome
type DocumentRecord struct {
	DocumentID     string
	Path           string
	Status         DocumentStatus
	Classification json.RawMessage // classification artifact, nil until classified
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RunRecord is one refinement run of one stage over one document
type RunRecord struct {
	RunID           string
	DocumentID      string
	Stage           string
	FinalStatus     types.FinalStatus
	SelectionReason types.SelectionReason
	Warning         string
	BestIteration   int // -1 when no best exists
	Iterations      int
	CreatedAt       time.Time
	CompletedAt     time.Time
	Elapsed         time.Duration
}

// Storage persists documents, refinement runs, and their iterations. The
// iteration-write subset doubles as the refinement loop's store.
type Storage interface {
	// Document lifecycle
	CreateDocument(ctx context.Context, doc *DocumentRecord) error
	UpdateDocument(ctx context.Context, documentID string, status DocumentStatus, classification json.RawMessage) error
	GetDocument(ctx context.Context, documentID string) (*DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]*DocumentRecord, error)

	// Run lifecycle
	CreateRun(ctx context.Context, documentID, runID, stage string) error
	CompleteRun(ctx context.Context, runID string, result *types.RefinementResult) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, documentID string) ([]*RunRecord, error)

	// Iteration writes (the refinement loop's view of the store)
	SaveIteration(ctx context.Context, runID string, rec *types.IterationRecord) error
	SaveBest(ctx context.Context, runID string, rec *types.IterationRecord) error

	// Iteration reads
	GetIteration(ctx context.Context, runID string, index int) (*types.IterationRecord, error)
	GetIterations(ctx context.Context, runID string) ([]*types.IterationRecord, error)
	GetBest(ctx context.Context, runID string) (*types.IterationRecord, error)

	Close() error
}
