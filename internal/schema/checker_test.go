package schema

import (
	"testing"

	"github.com/scipress/scipress/internal/types"
)

func extractionShape() Shape {
	return Shape{
		Name: "extraction",
		Fields: []Field{
			{Name: "title", Kind: KindString, Required: true},
			{Name: "authors", Kind: KindArray, Required: true},
			{Name: "outcomes", Kind: KindArray, Required: true},
			{Name: "sample_size", Kind: KindNumber},
		},
	}
}

func TestCheckCompleteDocument(t *testing.T) {
	c := NewChecker(extractionShape())
	cand := types.MustCandidate([]byte(`{
		"title": "Effects of X on Y",
		"authors": ["Smith", "Jones"],
		"outcomes": [{"name": "mortality"}],
		"sample_size": 120
	}`))

	score, err := c.Check(cand)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if score != 1.0 {
		t.Errorf("expected 1.0 for complete document, got %f", score)
	}
}

func TestCheckMissingRequiredFields(t *testing.T) {
	c := NewChecker(extractionShape())
	cand := types.MustCandidate([]byte(`{"title": "Effects of X on Y"}`))

	score, err := c.Check(cand)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	// 4 checks run: 3 required-present (1 satisfied), 1 kind check on title
	if score >= 1.0 || score <= 0.0 {
		t.Errorf("expected partial score, got %f", score)
	}
	if score != 0.5 {
		t.Errorf("expected 0.5 (2 of 4 checks), got %f", score)
	}
}

func TestCheckWrongKinds(t *testing.T) {
	c := NewChecker(extractionShape())
	cand := types.MustCandidate([]byte(`{
		"title": 42,
		"authors": "Smith",
		"outcomes": [],
		"sample_size": "many"
	}`))

	score, err := c.Check(cand)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	// All present (3 required satisfied) but 3 of 4 kind checks fail
	if score >= 0.7 {
		t.Errorf("expected low score for wrong kinds, got %f", score)
	}
}

func TestCheckNullRequiredField(t *testing.T) {
	c := NewChecker(Shape{Fields: []Field{
		{Name: "title", Kind: KindString, Required: true},
	}})
	cand := types.MustCandidate([]byte(`{"title": null}`))

	score, err := c.Check(cand)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if score != 0.0 {
		t.Errorf("null required field must not count as present, got %f", score)
	}
}

func TestCheckNonObjectCandidate(t *testing.T) {
	c := NewChecker(extractionShape())
	cand := types.MustCandidate([]byte(`["not", "an", "object"]`))

	if _, err := c.Check(cand); err == nil {
		t.Error("expected error for non-object candidate")
	}
}

func TestCheckEmptyShape(t *testing.T) {
	c := NewChecker(Shape{Name: "anything"})
	cand := types.MustCandidate([]byte(`{"whatever": true}`))

	score, err := c.Check(cand)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if score != 1.0 {
		t.Errorf("empty shape imposes no constraints, got %f", score)
	}
}
