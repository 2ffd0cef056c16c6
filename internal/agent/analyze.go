package agent

import (
	"context"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

const extractionSystemPrompt = `You are an extraction service for scanned government bulletins.
Given the text of a bulletin section, return a single JSON object with the fields:
  "section_type": one of "designation", "budget", "tender", "regulation", "other"
  "entities": array of {"name", "kind"} for organizations, people and jurisdictions
  "amounts": array of {"value", "currency"} for every monetary amount
  "summary": one-sentence summary
Return only the JSON object, no prose.`

const anomalySystemPrompt = `You are an auditing assistant for government bulletins.
Given extracted facts from one or more bulletin entries, identify anomalies:
unusual amounts, retroactive designations, duplicated appointments, or budget
modifications without a stated legal basis. Return a JSON object with
  "anomalies": array of {"kind", "severity", "description"}
  "summary": one short paragraph
Return only the JSON object.`

// AnalyzeAgent extracts structured facts from document text through the
// external analyzer.
type AnalyzeAgent struct {
	analyzer Analyzer
}

// NewAnalyzeAgent creates the fact-extraction agent.
func NewAnalyzeAgent(analyzer Analyzer) *AnalyzeAgent {
	return &AnalyzeAgent{analyzer: analyzer}
}

// Type implements Agent.
func (a *AnalyzeAgent) Type() string { return TypeAnalyze }

// Execute implements Agent.
func (a *AnalyzeAgent) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	if a.analyzer == nil {
		return nil, types.NewError(types.ErrCodeConfig, "no analyzer configured")
	}
	doc, err := docFromInvocation(inv)
	if err != nil {
		return nil, err
	}
	if doc.Text == "" {
		return nil, types.NewError(types.ErrCodeConfig, "document %s has no text to analyze", doc.ID)
	}

	prompt := strOpt(inv.Params, "prompt", extractionSystemPrompt)
	out, err := a.analyzer.Analyze(ctx, prompt, doc.Text)
	if err != nil {
		return nil, err
	}
	doc.SetMeta("analysis", out)
	return &Result{Output: out, Doc: doc}, nil
}

// AnomalyAgent runs the higher-level anomaly analysis over previously
// extracted facts.
type AnomalyAgent struct {
	analyzer Analyzer
}

// NewAnomalyAgent creates the anomaly-analysis agent.
func NewAnomalyAgent(analyzer Analyzer) *AnomalyAgent {
	return &AnomalyAgent{analyzer: analyzer}
}

// Type implements Agent.
func (a *AnomalyAgent) Type() string { return TypeAnomaly }

// Execute implements Agent.
func (a *AnomalyAgent) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	if a.analyzer == nil {
		return nil, types.NewError(types.ErrCodeConfig, "no analyzer configured")
	}

	input := strOpt(inv.Params, "facts", "")
	if input == "" {
		doc, err := docFromInvocation(inv)
		if err != nil {
			return nil, err
		}
		if analysis, ok := doc.Meta["analysis"].(string); ok && analysis != "" {
			input = analysis
		} else {
			input = doc.Text
		}
		if input == "" {
			return nil, types.NewError(types.ErrCodeConfig, "nothing to analyze for document %s", doc.ID)
		}
		out, err := a.analyzer.Analyze(ctx, anomalySystemPrompt, input)
		if err != nil {
			return nil, err
		}
		doc.SetMeta("anomalies", out)
		return &Result{Output: out, Doc: doc}, nil
	}

	out, err := a.analyzer.Analyze(ctx, anomalySystemPrompt, input)
	if err != nil {
		return nil, err
	}
	return &Result{Output: out}, nil
}
