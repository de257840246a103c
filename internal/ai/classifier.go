package ai

import (
	"context"
	"fmt"

	"github.com/scipress/scipress/internal/types"
)

// Classification is the document triage artifact produced before the
// refinement stages run. It is cheap and single-shot: a wrong guess here
// surfaces as validation issues downstream rather than a hard failure.
type Classification struct {
	DocumentType string   `json:"document_type"`
	Discipline   string   `json:"discipline"`
	StudyDesign  string   `json:"study_design,omitempty"`
	Language     string   `json:"language"`
	Keywords     []string `json:"keywords,omitempty"`
}

// Classifier performs single-shot document classification using the
// simple-task model.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) (*Classifier, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	return &Classifier{client: client}, nil
}

// Classify identifies the document type, discipline, and study design from
// the opening text of the paper.
func (c *Classifier) Classify(ctx context.Context, documentText string) (*Classification, *types.Candidate, error) {
	prompt := fmt.Sprintf(`Classify this scientific document.

DOCUMENT TEXT (opening portion):
%s

Respond with JSON:
{
  "document_type": "research_article|review|case_report|editorial|letter|other",
  "discipline": "primary field, e.g. oncology, materials_science",
  "study_design": "e.g. randomized_controlled_trial, cohort, in_vitro, or empty if not applicable",
  "language": "ISO 639-1 code",
  "keywords": ["up to 8 topical keywords"]
}

Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences.`,
		truncate(documentText, 6000))

	text, err := c.client.Complete(ctx, prompt, GetSimpleTaskModel(), 1024)
	if err != nil {
		return nil, nil, fmt.Errorf("classification call failed: %w", err)
	}

	result := Parse[Classification](text, "document classification")
	if !result.Success {
		return nil, nil, fmt.Errorf("failed to parse classification response: %s", result.Error)
	}
	if result.Data.DocumentType == "" {
		return nil, nil, fmt.Errorf("classification response missing document_type")
	}

	candidate, err := types.MarshalCandidate(result.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode classification: %w", err)
	}
	return &result.Data, candidate, nil
}
