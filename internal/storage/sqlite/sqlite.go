// Package sqlite implements the pipeline's storage interface on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/scipress/scipress/internal/storage"
	"github.com/scipress/scipress/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// Compile-time check that SQLiteStorage implements the Storage interface
var _ storage.Storage = (*SQLiteStorage)(nil)

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateDocument registers a new document in the pipeline
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *storage.DocumentRecord) error {
	if doc.DocumentID == "" {
		return fmt.Errorf("document ID is required")
	}
	status := doc.Status
	if status == "" {
		status = storage.DocumentProcessing
	}

	var classification interface{}
	if doc.Classification != nil {
		classification = string(doc.Classification)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, path, status, classification)
		VALUES (?, ?, ?, ?)
	`, doc.DocumentID, doc.Path, string(status), classification)
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", doc.DocumentID, err)
	}
	return nil
}

// UpdateDocument records a document's pipeline status and, when non-nil,
// its classification artifact.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, documentID string, status storage.DocumentStatus, classification json.RawMessage) error {
	var result sql.Result
	var err error
	if classification != nil {
		result, err = s.db.ExecContext(ctx, `
			UPDATE documents
			SET status = ?, classification = ?, updated_at = CURRENT_TIMESTAMP
			WHERE document_id = ?
		`, string(status), string(classification), documentID)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE documents
			SET status = ?, updated_at = CURRENT_TIMESTAMP
			WHERE document_id = ?
		`, string(status), documentID)
	}
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", documentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("document not found: %s", documentID)
	}
	return nil
}

// GetDocument retrieves a document by ID
func (s *SQLiteStorage) GetDocument(ctx context.Context, documentID string) (*storage.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, path, status, classification, created_at, updated_at
		FROM documents
		WHERE document_id = ?
	`, documentID)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	return doc, nil
}

// ListDocuments returns all documents, newest first
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*storage.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, path, status, classification, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*storage.DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*storage.DocumentRecord, error) {
	var doc storage.DocumentRecord
	var status string
	var classification sql.NullString
	if err := row.Scan(&doc.DocumentID, &doc.Path, &status, &classification, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Status = storage.DocumentStatus(status)
	if classification.Valid {
		doc.Classification = json.RawMessage(classification.String)
	}
	return &doc, nil
}

// CreateRun registers a new refinement run for a document stage
func (s *SQLiteStorage) CreateRun(ctx context.Context, documentID, runID, stage string) error {
	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, document_id, stage)
		VALUES (?, ?, ?)
	`, runID, documentID, stage)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// CompleteRun records the terminal outcome of a refinement run
func (s *SQLiteStorage) CompleteRun(ctx context.Context, runID string, result *types.RefinementResult) error {
	bestIdx := -1
	if result.Best != nil {
		bestIdx = result.Best.Index
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET final_status = ?, selection_reason = ?, warning = ?,
		    best_iteration = ?, iterations = ?,
		    completed_at = CURRENT_TIMESTAMP, elapsed_ms = ?
		WHERE run_id = ?
	`, string(result.FinalStatus), string(result.SelectionReason), result.Warning,
		bestIdx, len(result.History), result.Elapsed.Milliseconds(), runID)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", runID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*storage.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, document_id, stage, final_status, selection_reason,
		       warning, best_iteration, iterations, created_at, completed_at, elapsed_ms
		FROM runs
		WHERE run_id = ?
	`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns a document's runs in creation order
func (s *SQLiteStorage) ListRuns(ctx context.Context, documentID string) ([]*storage.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, document_id, stage, final_status, selection_reason,
		       warning, best_iteration, iterations, created_at, completed_at, elapsed_ms
		FROM runs
		WHERE document_id = ?
		ORDER BY created_at ASC, run_id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", documentID, err)
	}
	defer rows.Close()

	var runs []*storage.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row scanner) (*storage.RunRecord, error) {
	var run storage.RunRecord
	var finalStatus, selectionReason string
	var completedAt sql.NullTime
	var elapsedMS int64
	if err := row.Scan(&run.RunID, &run.DocumentID, &run.Stage, &finalStatus,
		&selectionReason, &run.Warning, &run.BestIteration, &run.Iterations,
		&run.CreatedAt, &completedAt, &elapsedMS); err != nil {
		return nil, err
	}
	run.FinalStatus = types.FinalStatus(finalStatus)
	run.SelectionReason = types.SelectionReason(selectionReason)
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &run, nil
}

// SaveIteration persists one iteration of a run. The report is NULL for
// candidates that never reached validation.
func (s *SQLiteStorage) SaveIteration(ctx context.Context, runID string, rec *types.IterationRecord) error {
	report, score, gateStatus, err := encodeReport(rec.Report)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO iterations (run_id, idx, candidate, report, composite_score, gate_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, rec.Index, string(rec.Candidate.Raw()), report, score, gateStatus, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save iteration %d of run %s: %w", rec.Index, runID, err)
	}
	return nil
}

// SaveBest persists the selected best iteration of a run
func (s *SQLiteStorage) SaveBest(ctx context.Context, runID string, rec *types.IterationRecord) error {
	report, _, _, err := encodeReport(rec.Report)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO best_iterations (run_id, idx, candidate, report, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			idx = excluded.idx,
			candidate = excluded.candidate,
			report = excluded.report,
			created_at = excluded.created_at
	`, runID, rec.Index, string(rec.Candidate.Raw()), report, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save best iteration of run %s: %w", runID, err)
	}
	return nil
}

// GetIteration returns one iteration of a run by index
func (s *SQLiteStorage) GetIteration(ctx context.Context, runID string, index int) (*types.IterationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT idx, candidate, report, created_at
		FROM iterations
		WHERE run_id = ? AND idx = ?
	`, runID, index)

	rec, err := scanIteration(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("iteration not found: run %s index %d", runID, index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get iteration %d of run %s: %w", index, runID, err)
	}
	return rec, nil
}

// GetIterations returns a run's iterations in index order
func (s *SQLiteStorage) GetIterations(ctx context.Context, runID string) ([]*types.IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, candidate, report, created_at
		FROM iterations
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations for run %s: %w", runID, err)
	}
	defer rows.Close()

	var recs []*types.IterationRecord
	for rows.Next() {
		rec, err := scanIteration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetBest returns the selected best iteration of a run
func (s *SQLiteStorage) GetBest(ctx context.Context, runID string) (*types.IterationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT idx, candidate, report, created_at
		FROM best_iterations
		WHERE run_id = ?
	`, runID)

	rec, err := scanIteration(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no best iteration for run: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get best iteration for run %s: %w", runID, err)
	}
	return rec, nil
}

func scanIteration(row scanner) (*types.IterationRecord, error) {
	var idx int
	var candidate string
	var report sql.NullString
	var createdAt time.Time
	if err := row.Scan(&idx, &candidate, &report, &createdAt); err != nil {
		return nil, err
	}

	c, err := types.NewCandidate([]byte(candidate))
	if err != nil {
		return nil, fmt.Errorf("stored candidate is corrupt: %w", err)
	}

	rec := &types.IterationRecord{
		Index:     idx,
		Candidate: c,
		CreatedAt: createdAt,
	}
	if report.Valid {
		var r types.QualityReport
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("stored report is corrupt: %w", err)
		}
		rec.Report = &r
	}
	return rec, nil
}

// encodeReport flattens a report for storage: JSON body plus denormalized
// score and status columns for queries. All three are NULL for unvalidated
// iterations.
func encodeReport(r *types.QualityReport) (interface{}, interface{}, interface{}, error) {
	if r == nil {
		return nil, nil, nil, nil
	}
	buf, err := json.Marshal(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(buf), r.CompositeScore, string(r.Status), nil
}
