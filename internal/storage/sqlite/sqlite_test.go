package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/scipress/scipress/internal/storage"
	"github.com/scipress/scipress/internal/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "scipress.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestDocumentRoundTrip verifies document create/update/get/list
func TestDocumentRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	doc := &storage.DocumentRecord{
		DocumentID: "doc-1",
		Path:       "/papers/example.pdf",
	}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	got, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Path != "/papers/example.pdf" {
		t.Errorf("Expected path /papers/example.pdf, got %s", got.Path)
	}
	if got.Status != storage.DocumentProcessing {
		t.Errorf("Expected status processing, got %s", got.Status)
	}
	if got.Classification != nil {
		t.Errorf("Expected nil classification, got %s", got.Classification)
	}

	classification := json.RawMessage(`{"document_type":"research_article"}`)
	if err := s.UpdateDocument(ctx, "doc-1", storage.DocumentCompleted, classification); err != nil {
		t.Fatalf("UpdateDocument failed: %v", err)
	}

	got, err = s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument after update failed: %v", err)
	}
	if got.Status != storage.DocumentCompleted {
		t.Errorf("Expected status completed, got %s", got.Status)
	}
	if string(got.Classification) != `{"document_type":"research_article"}` {
		t.Errorf("Unexpected classification: %s", got.Classification)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("Expected 1 document, got %d", len(docs))
	}
}

// TestUpdateMissingDocument verifies updates fail for unknown documents
func TestUpdateMissingDocument(t *testing.T) {
	s := newTestStorage(t)

	err := s.UpdateDocument(context.Background(), "no-such-doc", storage.DocumentFailed, nil)
	if err == nil {
		t.Error("Expected error updating missing document")
	}
}

// TestRunLifecycle verifies run create/complete/get/list
func TestRunLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.CreateDocument(ctx, &storage.DocumentRecord{DocumentID: "doc-1", Path: "a.pdf"}); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if err := s.CreateRun(ctx, "doc-1", "run-1", "extraction"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	run, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Stage != "extraction" {
		t.Errorf("Expected stage extraction, got %s", run.Stage)
	}
	if run.FinalStatus != "running" {
		t.Errorf("Expected final_status running before completion, got %s", run.FinalStatus)
	}
	if run.BestIteration != -1 {
		t.Errorf("Expected best_iteration -1 before completion, got %d", run.BestIteration)
	}

	best := &types.IterationRecord{
		Index:     1,
		Candidate: types.MustCandidate([]byte(`{"title":"Example"}`)),
		Report:    &types.QualityReport{CompositeScore: 0.91, Status: types.GatePassed},
		CreatedAt: time.Now().UTC(),
	}
	result := &types.RefinementResult{
		RunID:           "run-1",
		Best:            best,
		History:         []*types.IterationRecord{{Index: 0}, best},
		FinalStatus:     types.StatusPassed,
		SelectionReason: types.SelectionBestRanked,
		Elapsed:         3 * time.Second,
	}
	if err := s.CompleteRun(ctx, "run-1", result); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	run, err = s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun after completion failed: %v", err)
	}
	if run.FinalStatus != types.StatusPassed {
		t.Errorf("Expected status passed, got %s", run.FinalStatus)
	}
	if run.BestIteration != 1 {
		t.Errorf("Expected best_iteration 1, got %d", run.BestIteration)
	}
	if run.Iterations != 2 {
		t.Errorf("Expected 2 iterations, got %d", run.Iterations)
	}
	if run.Elapsed != 3*time.Second {
		t.Errorf("Expected 3s elapsed, got %v", run.Elapsed)
	}
	if run.CompletedAt.IsZero() {
		t.Error("Expected completed_at to be set")
	}

	runs, err := s.ListRuns(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" {
		t.Errorf("Unexpected runs: %+v", runs)
	}
}

// TestIterationRoundTrip verifies iterations survive storage intact,
// including the nil report of a candidate that never reached validation
func TestIterationRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.CreateDocument(ctx, &storage.DocumentRecord{DocumentID: "doc-1", Path: "a.pdf"}); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if err := s.CreateRun(ctx, "doc-1", "run-1", "appraisal"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	validated := &types.IterationRecord{
		Index:     0,
		Candidate: types.MustCandidate([]byte(`{"score":"high"}`)),
		Report: &types.QualityReport{
			Scores:         types.ScoreSet{"completeness": 0.82, "accuracy": 0.9},
			CompositeScore: 0.86,
			Status:         types.GateFailed,
			Issues: []types.Issue{
				{Severity: types.SeverityModerate, Category: "completeness", Description: "missing limitations section"},
			},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	unvalidated := &types.IterationRecord{
		Index:     1,
		Candidate: types.MustCandidate([]byte(`[1,2]`)),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := s.SaveIteration(ctx, "run-1", validated); err != nil {
		t.Fatalf("SaveIteration failed: %v", err)
	}
	if err := s.SaveIteration(ctx, "run-1", unvalidated); err != nil {
		t.Fatalf("SaveIteration (unvalidated) failed: %v", err)
	}

	recs, err := s.GetIterations(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetIterations failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 iterations, got %d", len(recs))
	}

	if string(recs[0].Candidate.Raw()) != `{"score":"high"}` {
		t.Errorf("Candidate bytes changed: %s", recs[0].Candidate.Raw())
	}
	if recs[0].Report == nil {
		t.Fatal("Expected report on validated iteration")
	}
	if recs[0].Report.CompositeScore != 0.86 {
		t.Errorf("Expected composite 0.86, got %v", recs[0].Report.CompositeScore)
	}
	if len(recs[0].Report.Issues) != 1 || recs[0].Report.Issues[0].Severity != types.SeverityModerate {
		t.Errorf("Issues did not round-trip: %+v", recs[0].Report.Issues)
	}
	if recs[0].Report.Scores.Get("accuracy") != 0.9 {
		t.Errorf("Scores did not round-trip: %+v", recs[0].Report.Scores)
	}

	if recs[1].Report != nil {
		t.Errorf("Expected nil report on unvalidated iteration, got %+v", recs[1].Report)
	}

	// Single-iteration reads return the same records by index
	rec, err := s.GetIteration(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("GetIteration failed: %v", err)
	}
	if rec.Report == nil || rec.Report.CompositeScore != 0.86 {
		t.Errorf("GetIteration returned wrong record: %+v", rec)
	}
	rec, err = s.GetIteration(ctx, "run-1", 1)
	if err != nil {
		t.Fatalf("GetIteration (unvalidated) failed: %v", err)
	}
	if string(rec.Candidate.Raw()) != `[1,2]` || rec.Report != nil {
		t.Errorf("GetIteration returned wrong unvalidated record: %+v", rec)
	}
	if _, err := s.GetIteration(ctx, "run-1", 5); err == nil {
		t.Error("Expected error for missing iteration index")
	}
}

// TestSaveBestUpsert verifies SaveBest overwrites a prior selection
func TestSaveBestUpsert(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.CreateDocument(ctx, &storage.DocumentRecord{DocumentID: "doc-1", Path: "a.pdf"}); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if err := s.CreateRun(ctx, "doc-1", "run-1", "report"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	first := &types.IterationRecord{
		Index:     0,
		Candidate: types.MustCandidate([]byte(`{"v":1}`)),
		CreatedAt: time.Now().UTC(),
	}
	second := &types.IterationRecord{
		Index:     2,
		Candidate: types.MustCandidate([]byte(`{"v":2}`)),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.SaveBest(ctx, "run-1", first); err != nil {
		t.Fatalf("SaveBest failed: %v", err)
	}
	if err := s.SaveBest(ctx, "run-1", second); err != nil {
		t.Fatalf("SaveBest (upsert) failed: %v", err)
	}

	best, err := s.GetBest(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetBest failed: %v", err)
	}
	if best.Index != 2 || string(best.Candidate.Raw()) != `{"v":2}` {
		t.Errorf("Expected upserted best, got index=%d candidate=%s", best.Index, best.Candidate.Raw())
	}
}

// TestGetBestMissing verifies GetBest errors for runs with no selection
func TestGetBestMissing(t *testing.T) {
	s := newTestStorage(t)

	if _, err := s.GetBest(context.Background(), "no-such-run"); err == nil {
		t.Error("Expected error for missing best iteration")
	}
}
