package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/scipress/scipress/internal/refine"
	"github.com/scipress/scipress/internal/types"
)

// StageSpec declares the model-facing contract of one pipeline stage: what
// to produce, what the validator scrutinizes, and which dimensions it must
// score.
type StageSpec struct {
	// Name identifies the stage (e.g. "extraction", "appraisal", "report")
	Name string

	// Model overrides the client default when non-empty
	Model string

	// MaxTokens bounds each response (default 4096)
	MaxTokens int64

	// Instructions describe the artifact the generator must produce
	Instructions string

	// ValidationGuidance tells the validator what to scrutinize
	ValidationGuidance string

	// Dimensions are the quality dimensions the validator must score
	Dimensions []string
}

// Input is the opaque context bundle a stage works from: the document text
// plus artifacts produced by earlier stages.
type Input struct {
	// DocumentText is the extracted text of the paper
	DocumentText string

	// Upstream maps stage name -> accepted artifact from earlier stages
	Upstream map[string]*types.Candidate
}

// StageServices implements refine.Services for one pipeline stage, backed
// by the shared model client.
type StageServices struct {
	client *Client
	spec   StageSpec
	input  Input
}

// Compile-time check that StageServices implements refine.Services
var _ refine.Services = (*StageServices)(nil)

// NewStageServices creates the generate/validate/correct services for one
// stage over one document.
func NewStageServices(client *Client, spec StageSpec, input Input) (*StageServices, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("stage name is required")
	}
	if len(spec.Dimensions) == 0 {
		return nil, fmt.Errorf("stage %q declares no quality dimensions", spec.Name)
	}
	if spec.MaxTokens <= 0 {
		spec.MaxTokens = 4096
	}
	return &StageServices{client: client, spec: spec, input: input}, nil
}

// Generate produces the initial candidate artifact for the stage.
func (s *StageServices) Generate(ctx context.Context) (*types.Candidate, error) {
	prompt := s.buildGenerationPrompt()

	text, err := s.client.Complete(ctx, prompt, s.spec.Model, s.spec.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%s generation call failed: %w", s.spec.Name, err)
	}

	return s.parseCandidate(text, s.spec.Name+" generation")
}

// validatorResponse is the structured response the validation prompt asks for
type validatorResponse struct {
	Scores map[string]float64 `json:"scores"`
	Issues []types.Issue      `json:"issues"`
}

// Validate scores a candidate against the stage's quality dimensions.
func (s *StageServices) Validate(ctx context.Context, candidate *types.Candidate) (types.ScoreSet, []types.Issue, error) {
	prompt := s.buildValidationPrompt(candidate)

	text, err := s.client.Complete(ctx, prompt, s.spec.Model, s.spec.MaxTokens)
	if err != nil {
		return nil, nil, fmt.Errorf("%s validation call failed: %w", s.spec.Name, err)
	}

	result := Parse[validatorResponse](text, s.spec.Name+" validation")
	if !result.Success {
		return nil, nil, refine.Fatal(fmt.Errorf("failed to parse validation response: %s", result.Error))
	}

	return types.ScoreSet(result.Data.Scores), result.Data.Issues, nil
}

// Correct produces a revised candidate from the current one and its report.
func (s *StageServices) Correct(ctx context.Context, candidate *types.Candidate, report *types.QualityReport) (*types.Candidate, error) {
	prompt := s.buildCorrectionPrompt(candidate, report)

	text, err := s.client.Complete(ctx, prompt, s.spec.Model, s.spec.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%s correction call failed: %w", s.spec.Name, err)
	}

	return s.parseCandidate(text, s.spec.Name+" correction")
}

// parseCandidate extracts a JSON artifact from model output. Output that
// cannot be parsed as JSON at all is a fatal failure - retrying the same
// parse cannot succeed, the loop must decide what to do with the run.
func (s *StageServices) parseCandidate(text, context string) (*types.Candidate, error) {
	result := Parse[json.RawMessage](text, context)
	if !result.Success {
		return nil, refine.Fatal(fmt.Errorf("%s produced unparseable output: %s", context, result.Error))
	}
	candidate, err := types.NewCandidate(result.Data)
	if err != nil {
		return nil, refine.Fatal(fmt.Errorf("%s: %w", context, err))
	}
	return candidate, nil
}

func (s *StageServices) buildGenerationPrompt() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `You are producing the %s artifact for a scientific paper.

TASK:
%s

DOCUMENT TEXT:
%s
`, s.spec.Name, s.spec.Instructions, truncate(s.input.DocumentText, 12000))

	s.writeUpstream(&sb)

	sb.WriteString(`
Respond with ONLY the raw JSON artifact. Do NOT wrap it in markdown code fences.`)

	return sb.String()
}

func (s *StageServices) buildValidationPrompt(candidate *types.Candidate) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `You are validating a %s artifact produced from a scientific paper. Be thorough and critical: your job is to find what is wrong or missing, not to approve.

%s

CANDIDATE ARTIFACT:
%s

DOCUMENT TEXT:
%s
`, s.spec.Name, s.spec.ValidationGuidance,
		truncate(string(candidate.Raw()), 8000),
		truncate(s.input.DocumentText, 8000))

	s.writeUpstream(&sb)

	fmt.Fprintf(&sb, `
Score each of these dimensions from 0.0 to 1.0: %s.

Classify every defect you find by severity:
- "critical": the artifact is materially wrong or unusable (fabricated content, contradicts the document, missing a mandatory element)
- "moderate": meaningful but recoverable gaps
- "minor": cosmetic or stylistic

Respond with JSON:
{
  "scores": {%s},
  "issues": [
    {
      "severity": "critical|moderate|minor",
      "category": "...",
      "location": "where in the artifact",
      "description": "...",
      "recommendation": "how to fix it"
    }
  ]
}

Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences.`,
		strings.Join(s.spec.Dimensions, ", "),
		exampleScores(s.spec.Dimensions))

	return sb.String()
}

func (s *StageServices) buildCorrectionPrompt(candidate *types.Candidate, report *types.QualityReport) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `You are correcting a %s artifact that failed quality validation.

TASK:
%s

CURRENT ARTIFACT:
%s

VALIDATION FINDINGS (composite score %.2f):
%s

DOCUMENT TEXT:
%s
`, s.spec.Name, s.spec.Instructions,
		truncate(string(candidate.Raw()), 8000),
		report.CompositeScore,
		formatIssues(report.Issues),
		truncate(s.input.DocumentText, 8000))

	s.writeUpstream(&sb)

	sb.WriteString(`
Produce a corrected version of the artifact that resolves every critical issue and as many moderate and minor issues as possible. Keep everything that was already correct. Do not invent content absent from the document.

Respond with ONLY the full corrected JSON artifact. Do NOT wrap it in markdown code fences.`)

	return sb.String()
}

func (s *StageServices) writeUpstream(sb *strings.Builder) {
	names := make([]string, 0, len(s.input.Upstream))
	for name := range s.input.Upstream {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sb, "\nUPSTREAM %s ARTIFACT:\n%s\n",
			strings.ToUpper(name), truncate(string(s.input.Upstream[name].Raw()), 4000))
	}
}

// formatIssues renders a report's issue list for the correction prompt
func formatIssues(issues []types.Issue) string {
	if len(issues) == 0 {
		return "(no itemized issues; scores below threshold)"
	}
	var sb strings.Builder
	for i, issue := range issues {
		fmt.Fprintf(&sb, "%d. [%s] %s: %s", i+1, issue.Severity, issue.Category, issue.Description)
		if issue.Location != "" {
			fmt.Fprintf(&sb, " (at %s)", issue.Location)
		}
		if issue.Recommendation != "" {
			fmt.Fprintf(&sb, " -> %s", issue.Recommendation)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// exampleScores renders the scores object skeleton for the prompt
func exampleScores(dimensions []string) string {
	parts := make([]string, len(dimensions))
	for i, d := range dimensions {
		parts[i] = fmt.Sprintf("%q: 0.0-1.0", d)
	}
	return strings.Join(parts, ", ")
}
