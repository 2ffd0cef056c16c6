package agent

import (
	"context"
	"regexp"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
)

// EnrichAgent runs the enrichment stage: per-chunk section typing,
// monetary amount and table detection, and entity extraction. When the
// document carries analyzer output, entities and amounts are also
// pulled from it by JSONPath.
type EnrichAgent struct{}

// NewEnrichAgent creates the enrichment-stage agent.
func NewEnrichAgent() *EnrichAgent { return &EnrichAgent{} }

// Type implements Agent.
func (a *EnrichAgent) Type() string { return TypeEnrich }

var (
	amountRe = regexp.MustCompile(`(?i)(?:\$|ARS|USD|EUR)\s?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?`)
	// A table row: three or more columns separated by runs of spaces or pipes.
	tableRowRe = regexp.MustCompile(`(?m)^(?:[^\s|]+(?:\s{2,}|\s*\|\s*)){2,}[^\s|]+$`)
	// Uppercase multiword names: organizations, ministries, directorates.
	entityRe = regexp.MustCompile(`\b(?:[A-ZÁÉÍÓÚÑ][A-ZÁÉÍÓÚÑa-záéíóúñ]+\s+){1,5}(?:de\s+)?[A-ZÁÉÍÓÚÑ][A-ZÁÉÍÓÚÑa-záéíóúñ]+\b`)
)

var sectionKeywords = []struct {
	kind     string
	keywords []string
}{
	{"designation", []string{"desígnase", "designase", "designación", "nómbrase"}},
	{"budget", []string{"presupuesto", "partida", "crédito", "modificación presupuestaria"}},
	{"tender", []string{"licitación", "contratación directa", "concurso de precios"}},
	{"regulation", []string{"resolución", "disposición", "decreto", "reglamento"}},
}

// Execute implements Agent.
func (a *EnrichAgent) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	doc, err := docFromInvocation(inv)
	if err != nil {
		return nil, err
	}

	cfg := section(inv.Config, "enrichment")
	if !boolOpt(cfg, "enabled", true) {
		return &Result{Output: map[string]any{"skipped": true}, Doc: doc}, nil
	}

	detectSection := boolOpt(cfg, "detect_section_type", true)
	detectAmounts := boolOpt(cfg, "detect_amounts", true)
	detectTables := boolOpt(cfg, "detect_tables", true)
	extractEntities := boolOpt(cfg, "extract_entities", true)

	totalAmounts := 0
	for i := range doc.Chunks {
		c := &doc.Chunks[i]
		if c.Meta == nil {
			c.Meta = make(map[string]any)
		}
		if detectSection {
			c.Meta["section_type"] = classifySection(c.Text)
		}
		if detectAmounts {
			amounts := amountRe.FindAllString(c.Text, -1)
			if len(amounts) > 0 {
				c.Meta["amounts"] = amounts
				totalAmounts += len(amounts)
			}
		}
		if detectTables {
			c.Meta["has_table"] = len(tableRowRe.FindAllString(c.Text, -1)) >= 2
		}
		if extractEntities {
			if ents := dedupe(entityRe.FindAllString(c.Text, -1)); len(ents) > 0 {
				c.Meta["entities"] = ents
			}
		}
	}

	// Analyzer output, when present, is authoritative for document-level
	// entities and amounts.
	if analysis, ok := doc.Meta["analysis"].(string); ok && analysis != "" {
		applyAnalysis(doc, analysis)
	}

	return &Result{
		Output: map[string]any{"chunks": len(doc.Chunks), "amounts": totalAmounts},
		Doc:    doc,
	}, nil
}

// applyAnalysis pulls entities and amounts out of the analyzer's JSON
// response. A malformed response is logged and ignored; enrichment
// already produced its own detections.
func applyAnalysis(doc *Document, analysis string) {
	parsed, err := oj.ParseString(strings.TrimSpace(analysis))
	if err != nil {
		logger.Debug("enrich: analyzer output is not JSON for document %s: %v", doc.ID, err)
		return
	}
	if names := jp.C("entities").W().C("name").Get(parsed); len(names) > 0 {
		doc.SetMeta("entities", names)
	}
	if amounts := jp.C("amounts").W().C("value").Get(parsed); len(amounts) > 0 {
		doc.SetMeta("amounts", amounts)
	}
	if st := jp.C("section_type").Get(parsed); len(st) == 1 {
		doc.SetMeta("section_type", st[0])
	}
}

func classifySection(text string) string {
	lower := strings.ToLower(text)
	for _, sk := range sectionKeywords {
		for _, kw := range sk.keywords {
			if strings.Contains(lower, kw) {
				return sk.kind
			}
		}
	}
	return "other"
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
