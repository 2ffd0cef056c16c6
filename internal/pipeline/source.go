package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/germanevangelisti/watcher-sub003/internal/agent"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// DocumentSource supplies the raw documents the pipeline processes.
// Download and OCR mechanics live behind this boundary.
type DocumentSource interface {
	// ListPending returns the documents available for processing.
	ListPending(ctx context.Context) ([]*agent.Document, error)

	// Load returns one document by ID.
	Load(ctx context.Context, documentID string) (*agent.Document, error)
}

// DirSource reads already-extracted bulletin text files from a
// directory. The file name (without extension) is the document ID.
type DirSource struct {
	dir string
}

// NewDirSource creates a filesystem-backed document source.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// ListPending implements DocumentSource.
func (s *DirSource) ListPending(ctx context.Context) ([]*agent.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeTaskFailure, err, "reading document directory %s", s.dir)
	}

	var docs []*agent.Document
	for _, e := range entries {
		if e.IsDir() || !isTextFile(e.Name()) {
			continue
		}
		doc, err := s.load(e.Name())
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Load implements DocumentSource.
func (s *DirSource) Load(ctx context.Context, documentID string) (*agent.Document, error) {
	for _, ext := range []string{".txt", ".md"} {
		name := documentID + ext
		if _, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
			return s.load(name)
		}
	}
	return nil, types.NewError(types.ErrCodeNotFound, "document not found: %s", documentID)
}

func (s *DirSource) load(name string) (*agent.Document, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, types.WrapError(types.ErrCodeTaskFailure, err, "reading document %s", name)
	}
	id := strings.TrimSuffix(name, filepath.Ext(name))
	return &agent.Document{ID: id, Filename: name, Text: string(data)}, nil
}

func isTextFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}
