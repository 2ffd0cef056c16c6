package agent

import (
	"context"
	"strings"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// ExtractAgent runs the extraction stage: it turns the raw document
// payload into working text. The "text" extractor takes the payload as
// is; the "analyzer" extractor additionally asks the external analyzer
// to produce structured facts from the raw text.
type ExtractAgent struct {
	analyzer Analyzer
}

// NewExtractAgent creates the extraction-stage agent. analyzer may be
// nil when only the text extractor is configured.
func NewExtractAgent(analyzer Analyzer) *ExtractAgent {
	return &ExtractAgent{analyzer: analyzer}
}

// Type implements Agent.
func (a *ExtractAgent) Type() string { return TypeExtract }

// Execute implements Agent.
func (a *ExtractAgent) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	doc, err := docFromInvocation(inv)
	if err != nil {
		return nil, err
	}

	cfg := section(inv.Config, "extraction")
	extractor := strOpt(cfg, "extractor", "text")

	switch extractor {
	case "text":
		if strings.TrimSpace(doc.Text) == "" {
			return nil, types.NewError(types.ErrCodeTaskFailure,
				"document %s has no extractable text", doc.ID)
		}
	case "analyzer":
		if a.analyzer == nil {
			return nil, types.NewError(types.ErrCodeConfig,
				"extractor 'analyzer' requires a configured analyzer")
		}
		if strings.TrimSpace(doc.Text) == "" {
			return nil, types.NewError(types.ErrCodeTaskFailure,
				"document %s has no extractable text", doc.ID)
		}
		facts, err := a.analyzer.Analyze(ctx, extractionSystemPrompt, doc.Text)
		if err != nil {
			return nil, err
		}
		doc.SetMeta("analysis", facts)
	default:
		return nil, types.NewError(types.ErrCodeConfig, "unknown extractor: %s", extractor)
	}

	doc.SetMeta("extractor", extractor)
	return &Result{
		Output: map[string]any{"characters": len(doc.Text), "extractor": extractor},
		Doc:    doc,
	}, nil
}
