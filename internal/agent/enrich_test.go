package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enrichDoc(t *testing.T, doc *Document, config map[string]any) *Document {
	t.Helper()
	agent := NewEnrichAgent()
	res, err := agent.Execute(context.Background(), &Invocation{Doc: doc, Config: config})
	require.NoError(t, err)
	return res.Doc
}

func TestEnrichAgent_ClassifiesSections(t *testing.T) {
	doc := &Document{
		ID: "d",
		Chunks: []Chunk{
			{ID: "d#0", Seq: 0, Text: "Desígnase al agente Juan Pérez en la planta permanente."},
			{ID: "d#1", Seq: 1, Text: "Apruébase la licitación pública N° 12/2024."},
			{ID: "d#2", Seq: 2, Text: "Incorpórase la partida al presupuesto vigente."},
			{ID: "d#3", Seq: 3, Text: "Texto sin clasificación aparente."},
		},
	}
	out := enrichDoc(t, doc, nil)

	assert.Equal(t, "designation", out.Chunks[0].Meta["section_type"])
	assert.Equal(t, "tender", out.Chunks[1].Meta["section_type"])
	assert.Equal(t, "budget", out.Chunks[2].Meta["section_type"])
	assert.Equal(t, "other", out.Chunks[3].Meta["section_type"])
}

func TestEnrichAgent_DetectsAmounts(t *testing.T) {
	doc := &Document{
		ID: "d",
		Chunks: []Chunk{
			{ID: "d#0", Text: "por la suma de $ 1.234.567,89 y ARS 500,00 adicionales"},
			{ID: "d#1", Text: "sin montos"},
		},
	}
	agent := NewEnrichAgent()
	res, err := agent.Execute(context.Background(), &Invocation{Doc: doc})
	require.NoError(t, err)

	amounts, ok := res.Doc.Chunks[0].Meta["amounts"].([]string)
	require.True(t, ok)
	assert.Len(t, amounts, 2)
	assert.Contains(t, amounts[0], "1.234.567,89")

	_, present := res.Doc.Chunks[1].Meta["amounts"]
	assert.False(t, present)

	out := res.Output.(map[string]any)
	assert.Equal(t, 2, out["amounts"])
}

func TestEnrichAgent_DetectsTables(t *testing.T) {
	table := "Partida  Monto  Estado\n101  5000  aprobada\n102  9000  pendiente"
	doc := &Document{
		ID: "d",
		Chunks: []Chunk{
			{ID: "d#0", Text: table},
			{ID: "d#1", Text: "prosa corrida sin columnas"},
		},
	}
	out := enrichDoc(t, doc, nil)

	assert.Equal(t, true, out.Chunks[0].Meta["has_table"])
	assert.Equal(t, false, out.Chunks[1].Meta["has_table"])
}

func TestEnrichAgent_ExtractsEntities(t *testing.T) {
	doc := &Document{
		ID: "d",
		Chunks: []Chunk{
			{ID: "d#0", Text: "convenio entre el Ministerio de Hacienda y el Ministerio de Hacienda."},
		},
	}
	out := enrichDoc(t, doc, nil)

	ents, ok := out.Chunks[0].Meta["entities"].([]string)
	require.True(t, ok)
	assert.Contains(t, ents, "Ministerio de Hacienda")
	// Repeated mentions collapse to one entry.
	assert.Len(t, ents, 1)
}

func TestEnrichAgent_AnalyzerOutputWins(t *testing.T) {
	doc := &Document{
		ID:     "d",
		Chunks: []Chunk{{ID: "d#0", Text: "algo"}},
		Meta: map[string]any{
			"analysis": `{"entities":[{"name":"Dirección de Compras"}],"amounts":[{"value":1500.5}],"section_type":"tender"}`,
		},
	}
	out := enrichDoc(t, doc, nil)

	names, ok := out.Meta["entities"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Dirección de Compras"}, names)
	assert.Equal(t, "tender", out.Meta["section_type"])
}

func TestEnrichAgent_MalformedAnalysisIgnored(t *testing.T) {
	doc := &Document{
		ID:     "d",
		Chunks: []Chunk{{ID: "d#0", Text: "algo"}},
		Meta:   map[string]any{"analysis": "not json at all {"},
	}
	out := enrichDoc(t, doc, nil)
	_, present := out.Meta["entities"]
	assert.False(t, present)
}

func TestEnrichAgent_Disabled(t *testing.T) {
	doc := &Document{ID: "d", Chunks: []Chunk{{ID: "d#0", Text: "Desígnase"}}}
	config := map[string]any{"enrichment": map[string]any{"enabled": false}}
	out := enrichDoc(t, doc, config)
	assert.Nil(t, out.Chunks[0].Meta)
}

func TestEnrichAgent_SelectiveToggles(t *testing.T) {
	doc := &Document{ID: "d", Chunks: []Chunk{{ID: "d#0", Text: "presupuesto de $ 100,00"}}}
	config := map[string]any{"enrichment": map[string]any{
		"detect_amounts":      false,
		"detect_tables":       false,
		"extract_entities":    false,
		"detect_section_type": true,
	}}
	out := enrichDoc(t, doc, config)

	assert.Equal(t, "budget", out.Chunks[0].Meta["section_type"])
	_, present := out.Chunks[0].Meta["amounts"]
	assert.False(t, present)
	_, present = out.Chunks[0].Meta["has_table"]
	assert.False(t, present)
}
