package pipeline

import (
	"github.com/scipress/scipress/internal/ai"
	"github.com/scipress/scipress/internal/schema"
)

// Stage execution order. Classification runs first as a single-shot call;
// the remaining stages each run a full refinement loop and feed their
// accepted artifact to the stages after them.
const (
	StageClassification = "classification"
	StageExtraction     = "extraction"
	StageAppraisal      = "appraisal"
	StageReport         = "report"
)

// refinedStages lists the refinement-loop stages in execution order
var refinedStages = []string{StageExtraction, StageAppraisal, StageReport}

// stageShapes declares the structural pre-check shape per stage
var stageShapes = map[string]schema.Shape{
	StageExtraction: {
		Name: StageExtraction,
		Fields: []schema.Field{
			{Name: "title", Kind: schema.KindString, Required: true},
			{Name: "authors", Kind: schema.KindArray, Required: true},
			{Name: "abstract", Kind: schema.KindString, Required: false},
			{Name: "methods", Kind: schema.KindString, Required: true},
			{Name: "findings", Kind: schema.KindArray, Required: true},
			{Name: "limitations", Kind: schema.KindArray, Required: false},
			{Name: "citations", Kind: schema.KindArray, Required: false},
		},
	},
	StageAppraisal: {
		Name: StageAppraisal,
		Fields: []schema.Field{
			{Name: "strengths", Kind: schema.KindArray, Required: true},
			{Name: "weaknesses", Kind: schema.KindArray, Required: true},
			{Name: "rigor_assessment", Kind: schema.KindString, Required: true},
			{Name: "evidence_quality", Kind: schema.KindString, Required: true},
			{Name: "overall_rating", Kind: schema.KindNumber, Required: true},
		},
	},
	StageReport: {
		Name: StageReport,
		Fields: []schema.Field{
			{Name: "summary", Kind: schema.KindString, Required: true},
			{Name: "key_findings", Kind: schema.KindArray, Required: true},
			{Name: "critical_appraisal", Kind: schema.KindString, Required: true},
			{Name: "conclusion", Kind: schema.KindString, Required: true},
			{Name: "audience", Kind: schema.KindString, Required: false},
		},
	},
}

// stagePrompts declares the model-facing contract per stage. Dimensions
// must line up with the gate thresholds configured for the stage.
var stagePrompts = map[string]ai.StageSpec{
	StageExtraction: {
		Name: StageExtraction,
		Instructions: `Extract the structured content of the paper as JSON with fields:
"title" (string), "authors" (array of strings), "abstract" (string),
"methods" (string summarizing the methodology), "findings" (array of
strings, one per distinct result), "limitations" (array of strings),
"citations" (array of strings, the works the findings rest on).
Only include content present in the document. Never invent values.`,
		ValidationGuidance: `Check the extraction against the document:
- completeness: is every substantive section of the paper represented?
- accuracy: does every extracted value appear in the document, verbatim or faithfully paraphrased? Fabricated or altered content is a critical issue.
- consistency: do the extracted fields agree with each other?`,
		Dimensions: []string{"completeness", "accuracy", "consistency"},
	},
	StageAppraisal: {
		Name: StageAppraisal,
		Instructions: `Critically appraise the paper as JSON with fields:
"strengths" (array of strings), "weaknesses" (array of strings),
"rigor_assessment" (string evaluating the methodology),
"evidence_quality" (string: "high", "moderate", or "low" with rationale),
"overall_rating" (number from 1 to 10).
Ground every judgment in the extraction and the document text.`,
		ValidationGuidance: `Check the appraisal:
- rigor: is the methodological critique specific and technically sound?
- accuracy: does every claim about the paper match the document and the extraction? A judgment about content the paper does not contain is a critical issue.
- coherence: do the rating, strengths, and weaknesses tell one consistent story?`,
		Dimensions: []string{"rigor", "accuracy", "coherence"},
	},
	StageReport: {
		Name: StageReport,
		Instructions: `Write the final structured report as JSON with fields:
"summary" (string, plain-language summary of the paper),
"key_findings" (array of strings), "critical_appraisal" (string
condensing the appraisal), "conclusion" (string), "audience" (string
naming who the report serves).
Synthesize from the extraction and appraisal artifacts; do not re-analyze the raw document.`,
		ValidationGuidance: `Check the report:
- completeness: are all key findings and appraisal points represented?
- coherence: does the report read as one document, with conclusion following from findings?
- readability: is it understandable without reading the paper?`,
		Dimensions: []string{"completeness", "coherence", "readability"},
	},
}
