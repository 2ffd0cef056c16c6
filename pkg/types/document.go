package types

import "time"

// Stage is one step of the document processing pipeline.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageCleaning   Stage = "cleaning"
	StageChunking   Stage = "chunking"
	StageEnrichment Stage = "enrichment"
	StageIndexing   Stage = "indexing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// stageRank orders the canonical pipeline progression. Failed is not
// ranked: it is a terminal marker, not a position in the progression.
var stageRank = map[Stage]int{
	StageExtraction: 0,
	StageCleaning:   1,
	StageChunking:   2,
	StageEnrichment: 3,
	StageIndexing:   4,
	StageCompleted:  5,
}

// Rank returns the position of the stage in the canonical order and
// whether the stage participates in that order.
func (s Stage) Rank() (int, bool) {
	r, ok := stageRank[s]
	return r, ok
}

// Terminal reports whether the stage is terminal for a document.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// PipelineStages lists the processing stages in canonical order,
// excluding the terminal markers.
var PipelineStages = []Stage{
	StageExtraction,
	StageCleaning,
	StageChunking,
	StageEnrichment,
	StageIndexing,
}

// StageTransition is one entry in a document's stage history.
type StageTransition struct {
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// DocumentState is the per-document finite-state record of pipeline
// progress. History is append-only and never holds two consecutive
// entries for the same stage.
type DocumentState struct {
	DocumentID string            `json:"document_id"`
	Filename   string            `json:"filename"`
	Stage      Stage             `json:"stage"`
	Error      string            `json:"error,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
	History    []StageTransition `json:"stage_history"`
}

// Clone returns a deep copy of the document state.
func (d *DocumentState) Clone() *DocumentState {
	cp := *d
	cp.History = append([]StageTransition(nil), d.History...)
	return &cp
}
