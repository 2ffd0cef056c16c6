package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanText(t *testing.T, text string, config map[string]any) string {
	t.Helper()
	agent := NewCleanAgent()
	res, err := agent.Execute(context.Background(), &Invocation{
		Doc:    &Document{ID: "d", Filename: "d.txt", Text: text},
		Config: config,
	})
	require.NoError(t, err)
	return res.Doc.Text
}

func TestCleanAgent_RemovesPageMarkers(t *testing.T) {
	in := "DECRETO 1234\nPágina 3 de 40\ntexto del artículo\n- 4 -\nmás texto"
	out := cleanText(t, in, nil)

	assert.NotContains(t, out, "Página")
	assert.NotContains(t, out, "- 4 -")
	assert.Contains(t, out, "texto del artículo")
}

func TestCleanAgent_NormalizesUnicode(t *testing.T) {
	out := cleanText(t, "la “oficina” ﬁscal — informe", nil)
	assert.Equal(t, `la "oficina" fiscal - informe`, out)
}

func TestCleanAgent_NormalizesWhitespace(t *testing.T) {
	out := cleanText(t, "a   b\t\tc\n\n\n\n\nd  ", nil)
	assert.Equal(t, "a b c\n\nd", out)
}

func TestCleanAgent_FixEncoding(t *testing.T) {
	out := cleanText(t, "line1\r\nline2\rbad�char", nil)
	assert.Equal(t, "line1\nline2\nbadchar", out)
}

func TestCleanAgent_LegalHeadings(t *testing.T) {
	config := map[string]any{"cleaning": map[string]any{"normalize_legal_text": true}}
	out := cleanText(t, "visto:\nel expediente\nConsiderando\nque corresponde", config)

	assert.Contains(t, out, "VISTO:")
	assert.Contains(t, out, "CONSIDERANDO:")
}

func TestCleanAgent_Disabled(t *testing.T) {
	in := "a   b   c"
	config := map[string]any{"cleaning": map[string]any{"enabled": false}}
	out := cleanText(t, in, config)
	assert.Equal(t, in, out)
}

func TestCleanAgent_TogglesOff(t *testing.T) {
	config := map[string]any{"cleaning": map[string]any{
		"normalize_whitespace": false,
		"remove_artifacts":     false,
	}}
	in := "a   b\nPágina 1 de 2\nc"
	out := cleanText(t, in, config)

	assert.Contains(t, out, "a   b")
	assert.Contains(t, out, "Página 1 de 2")
}

func TestCleanAgent_ReportsCharacterCounts(t *testing.T) {
	agent := NewCleanAgent()
	res, err := agent.Execute(context.Background(), &Invocation{
		Doc: &Document{ID: "d", Text: "x   y"},
	})
	require.NoError(t, err)

	out, ok := res.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, out["characters_before"])
	assert.Equal(t, 3, out["characters_after"])
}
