package agent

import (
	"context"
	"regexp"
	"strings"
)

// CleanAgent runs the cleaning stage: encoding fixes, unicode and
// whitespace normalization, OCR artifact removal and legal-text
// normalization, each switchable through the "cleaning" config section.
type CleanAgent struct{}

// NewCleanAgent creates the cleaning-stage agent.
func NewCleanAgent() *CleanAgent { return &CleanAgent{} }

// Type implements Agent.
func (a *CleanAgent) Type() string { return TypeClean }

var (
	// OCR noise: lines that are mostly punctuation or single characters.
	artifactLineRe = regexp.MustCompile(`(?m)^[\s\W_]{1,4}$`)
	// Page markers of the form "Página 12 de 40" or "- 12 -".
	pageMarkerRe = regexp.MustCompile(`(?mi)^\s*(página\s+\d+(\s+de\s+\d+)?|-\s*\d+\s*-)\s*$`)
	multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)
	multiBlankRe = regexp.MustCompile(`\n{3,}`)
	// Legal boilerplate headings normalized to canonical casing.
	legalHeadingRe = regexp.MustCompile(`(?mi)^\s*(visto|considerando|resuelve|decreta|art[íi]culo\s+\d+[°º]?)\s*[:.]?\s*$`)
)

// ligatures and other glyphs common in OCR output of printed bulletins.
var unicodeFolds = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"’", "'",
	"‘", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
	" ", " ",
)

// Execute implements Agent.
func (a *CleanAgent) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	doc, err := docFromInvocation(inv)
	if err != nil {
		return nil, err
	}

	cfg := section(inv.Config, "cleaning")
	if !boolOpt(cfg, "enabled", true) {
		return &Result{Output: map[string]any{"skipped": true}, Doc: doc}, nil
	}

	text := doc.Text
	before := len(text)

	if boolOpt(cfg, "fix_encoding", true) {
		text = strings.ReplaceAll(text, "�", "")
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
	}
	if boolOpt(cfg, "normalize_unicode", true) {
		text = unicodeFolds.Replace(text)
	}
	if boolOpt(cfg, "remove_artifacts", true) {
		text = pageMarkerRe.ReplaceAllString(text, "")
		text = artifactLineRe.ReplaceAllString(text, "")
	}
	if boolOpt(cfg, "normalize_legal_text", false) {
		text = legalHeadingRe.ReplaceAllStringFunc(text, func(h string) string {
			return strings.ToUpper(strings.TrimRight(strings.TrimSpace(h), ":.")) + ":"
		})
	}
	if boolOpt(cfg, "normalize_whitespace", true) {
		text = multiSpaceRe.ReplaceAllString(text, " ")
		text = multiBlankRe.ReplaceAllString(text, "\n\n")
		text = strings.TrimSpace(text)
	}

	doc.Text = text
	return &Result{
		Output: map[string]any{"characters_before": before, "characters_after": len(text)},
		Doc:    doc,
	}, nil
}
