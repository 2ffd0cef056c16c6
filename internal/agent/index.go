package agent

import (
	"context"

	"github.com/germanevangelisti/watcher-sub003/internal/index"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// IndexAgent runs the indexing stage, writing enriched chunks into the
// SQLite store. The vector-store option is recognized but handled by an
// external retrieval service; this agent only records the requested
// embedding model in the document metadata.
type IndexAgent struct {
	store *index.Store
}

// NewIndexAgent creates the indexing-stage agent.
func NewIndexAgent(store *index.Store) *IndexAgent {
	return &IndexAgent{store: store}
}

// Type implements Agent.
func (a *IndexAgent) Type() string { return TypeIndex }

// Execute implements Agent.
func (a *IndexAgent) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	doc, err := docFromInvocation(inv)
	if err != nil {
		return nil, err
	}
	if len(doc.Chunks) == 0 {
		return nil, types.NewError(types.ErrCodeTaskFailure, "document %s has no chunks to index", doc.ID)
	}

	cfg := section(inv.Config, "indexing")
	if !boolOpt(cfg, "use_sqlite", true) {
		return &Result{Output: map[string]any{"skipped": true}, Doc: doc}, nil
	}
	if a.store == nil {
		return nil, types.NewError(types.ErrCodeConfig, "no index store configured")
	}

	if boolOpt(cfg, "use_vector_store", false) {
		doc.SetMeta("embedding_model", strOpt(cfg, "embedding_model", "text-embedding-3-small"))
	}

	chunks := make([]index.IndexedChunk, len(doc.Chunks))
	for i, c := range doc.Chunks {
		chunks[i] = index.IndexedChunk{
			ID:         c.ID,
			DocumentID: doc.ID,
			Seq:        c.Seq,
			Text:       c.Text,
			Meta:       c.Meta,
		}
	}
	if err := a.store.IndexDocument(ctx, doc.ID, doc.Filename, doc.Meta, chunks); err != nil {
		return nil, types.WrapError(types.ErrCodeTaskFailure, err, "indexing document %s", doc.ID)
	}

	return &Result{
		Output: map[string]any{"indexed_chunks": len(chunks)},
		Doc:    doc,
	}, nil
}
