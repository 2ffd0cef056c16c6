package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

func chunkDoc(t *testing.T, text string, config map[string]any) *Document {
	t.Helper()
	agent := NewChunkAgent()
	res, err := agent.Execute(context.Background(), &Invocation{
		Doc:    &Document{ID: "doc", Text: text},
		Config: config,
	})
	require.NoError(t, err)
	return res.Doc
}

func chunkConfig(opts map[string]any) map[string]any {
	return map[string]any{"chunking": opts}
}

func TestChunkAgent_ParagraphStrategy(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60) + "\n\n" + strings.Repeat("c", 60)
	doc := chunkDoc(t, text, chunkConfig(map[string]any{"chunk_size": 130}))

	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, strings.Repeat("a", 60)+"\n\n"+strings.Repeat("b", 60), doc.Chunks[0].Text)
	assert.Equal(t, strings.Repeat("c", 60), doc.Chunks[1].Text)
}

func TestChunkAgent_ParagraphOversizeEmittedWhole(t *testing.T) {
	big := strings.Repeat("x", 500)
	doc := chunkDoc(t, big+"\n\n"+strings.Repeat("y", 80), chunkConfig(map[string]any{"chunk_size": 100}))

	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, big, doc.Chunks[0].Text)
}

func TestChunkAgent_FixedStrategy(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30) // 300 chars
	doc := chunkDoc(t, text, chunkConfig(map[string]any{
		"strategy":      "fixed",
		"chunk_size":    100,
		"chunk_overlap": 20,
		// steps of 80: windows at 0, 80, 160, 240
	}))

	require.Len(t, doc.Chunks, 4)
	assert.Equal(t, text[:100], doc.Chunks[0].Text)
	assert.Equal(t, text[80:180], doc.Chunks[1].Text)
	assert.Equal(t, text[240:], doc.Chunks[3].Text)
}

func TestChunkAgent_ChunkIDsAndSeq(t *testing.T) {
	text := strings.Repeat("p", 60) + "\n\n" + strings.Repeat("q", 60)
	doc := chunkDoc(t, text, chunkConfig(map[string]any{"chunk_size": 70}))

	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, "doc#0", doc.Chunks[0].ID)
	assert.Equal(t, 0, doc.Chunks[0].Seq)
	assert.Equal(t, "doc#1", doc.Chunks[1].ID)
	assert.Equal(t, 1, doc.Chunks[1].Seq)
}

func TestChunkAgent_DropsShortPieces(t *testing.T) {
	text := "tiny\n\n" + strings.Repeat("z", 80)
	doc := chunkDoc(t, text, chunkConfig(map[string]any{
		"chunk_size":     60,
		"min_chunk_size": 50,
	}))

	require.Len(t, doc.Chunks, 1)
	assert.Equal(t, strings.Repeat("z", 80), doc.Chunks[0].Text)
}

func TestChunkAgent_EmptyTextFails(t *testing.T) {
	agent := NewChunkAgent()
	_, err := agent.Execute(context.Background(), &Invocation{
		Doc: &Document{ID: "doc", Text: ""},
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeTaskFailure))
}

func TestChunkAgent_ConfigValidation(t *testing.T) {
	agent := NewChunkAgent()
	cases := []struct {
		name string
		opts map[string]any
	}{
		{"zero size", map[string]any{"chunk_size": 0}},
		{"overlap equals size", map[string]any{"chunk_size": 100, "chunk_overlap": 100}},
		{"negative overlap", map[string]any{"chunk_overlap": -1}},
		{"unknown strategy", map[string]any{"strategy": "semantic"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := agent.Execute(context.Background(), &Invocation{
				Doc:    &Document{ID: "doc", Text: "some text"},
				Config: chunkConfig(tc.opts),
			})
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrCodeConfig))
		})
	}
}

func TestChunkAgent_FromTaskParams(t *testing.T) {
	agent := NewChunkAgent()
	res, err := agent.Execute(context.Background(), &Invocation{
		Params: map[string]any{
			"document_id": "b-2024",
			"text":        strings.Repeat("m", 120),
		},
		Config: chunkConfig(map[string]any{"strategy": "fixed", "chunk_size": 120, "chunk_overlap": 0}),
	})
	require.NoError(t, err)
	require.Len(t, res.Doc.Chunks, 1)
	assert.Equal(t, "b-2024#0", res.Doc.Chunks[0].ID)

	out, ok := res.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, out["chunks"])
	assert.Equal(t, "fixed", out["strategy"])
}
