package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// ChunkAgent runs the chunking stage, splitting the cleaned text into
// indexable fragments. Strategies: "fixed" (sliding window of
// chunk_size with chunk_overlap) and "paragraph" (blank-line blocks
// merged up to chunk_size).
type ChunkAgent struct{}

// NewChunkAgent creates the chunking-stage agent.
func NewChunkAgent() *ChunkAgent { return &ChunkAgent{} }

// Type implements Agent.
func (a *ChunkAgent) Type() string { return TypeChunk }

// Execute implements Agent.
func (a *ChunkAgent) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	doc, err := docFromInvocation(inv)
	if err != nil {
		return nil, err
	}
	if doc.Text == "" {
		return nil, types.NewError(types.ErrCodeTaskFailure, "document %s has no text to chunk", doc.ID)
	}

	cfg := section(inv.Config, "chunking")
	size := intOpt(cfg, "chunk_size", 1000)
	overlap := intOpt(cfg, "chunk_overlap", 100)
	minSize := intOpt(cfg, "min_chunk_size", 50)
	strategy := strOpt(cfg, "strategy", "paragraph")

	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, types.NewError(types.ErrCodeConfig,
			"invalid chunking config: chunk_size=%d chunk_overlap=%d", size, overlap)
	}

	var pieces []string
	switch strategy {
	case "fixed":
		pieces = fixedChunks(doc.Text, size, overlap)
	case "paragraph":
		pieces = paragraphChunks(doc.Text, size)
	default:
		return nil, types.NewError(types.ErrCodeConfig, "unknown chunking strategy: %s", strategy)
	}

	doc.Chunks = doc.Chunks[:0]
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if len(p) < minSize {
			continue
		}
		seq := len(doc.Chunks)
		doc.Chunks = append(doc.Chunks, Chunk{
			ID:   fmt.Sprintf("%s#%d", doc.ID, seq),
			Seq:  seq,
			Text: p,
		})
	}

	return &Result{
		Output: map[string]any{"chunks": len(doc.Chunks), "strategy": strategy},
		Doc:    doc,
	}, nil
}

func fixedChunks(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func paragraphChunks(text string, size int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var out []string
	var cur strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p)+2 > size {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
		// A single paragraph larger than the budget is emitted whole:
		// splitting mid-sentence hurts retrieval more than an oversized chunk.
		if cur.Len() >= size {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
