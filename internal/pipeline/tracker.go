// Package pipeline tracks per-document progress through the processing
// stages and coordinates exclusive processing sessions.
package pipeline

import (
	"sync"
	"time"

	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Tracker records the pipeline stage each document currently occupies.
// Stage advances for one document are serialized: the caller that holds
// the document's slot is the only writer for that document.
type Tracker struct {
	mu   sync.RWMutex
	docs map[string]*types.DocumentState

	// lockMu guards the per-document mutex table.
	lockMu   sync.Mutex
	docLocks map[string]*sync.Mutex

	bus *bus.Bus
}

// NewTracker creates a tracker publishing document events on b.
// b may be nil in tests.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{
		docs:     make(map[string]*types.DocumentState),
		docLocks: make(map[string]*sync.Mutex),
		bus:      b,
	}
}

func (t *Tracker) docLock(documentID string) *sync.Mutex {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	l, ok := t.docLocks[documentID]
	if !ok {
		l = &sync.Mutex{}
		t.docLocks[documentID] = l
	}
	return l
}

// Advance records a stage transition for the document, creating the
// record on first sight. Repeating the current stage is idempotent and
// leaves the history untouched. Skipping forward past intermediate
// stages is accepted and logged as an out-of-order anomaly. Regressing
// to an earlier stage is rejected with OUT_OF_ORDER_STAGE; the document
// state is left unchanged.
func (t *Tracker) Advance(documentID, filename string, stage types.Stage, details string) (*types.DocumentState, error) {
	rank, ok := stage.Rank()
	if !ok {
		return nil, types.NewError(types.ErrCodeInvalidState, "unknown pipeline stage: %s", stage)
	}

	l := t.docLock(documentID)
	l.Lock()
	defer l.Unlock()

	t.mu.Lock()
	doc, exists := t.docs[documentID]
	if !exists {
		doc = &types.DocumentState{
			DocumentID: documentID,
			Filename:   filename,
			Stage:      stage,
			UpdatedAt:  time.Now(),
			History: []types.StageTransition{
				{Stage: stage, Timestamp: time.Now(), Details: details},
			},
		}
		t.docs[documentID] = doc
		snapshot := doc.Clone()
		t.mu.Unlock()
		t.publishStageChanged(snapshot, details)
		return snapshot, nil
	}

	if doc.Stage == types.StageFailed {
		t.mu.Unlock()
		return nil, types.NewError(types.ErrCodeInvalidState,
			"document %s failed at stage %s and must be reset before reprocessing", documentID, t.failedStage(doc))
	}

	if doc.Stage == stage {
		// Idempotent retry of the same stage: refresh the timestamp only.
		doc.UpdatedAt = time.Now()
		snapshot := doc.Clone()
		t.mu.Unlock()
		return snapshot, nil
	}

	currentRank, _ := doc.Stage.Rank()
	if rank < currentRank {
		snapshot := doc.Clone()
		t.mu.Unlock()
		logger.Warn("pipeline: out-of-order stage %s for document %s (current %s), ignoring", stage, documentID, snapshot.Stage)
		return snapshot, types.NewError(types.ErrCodeOutOfOrderStage,
			"stage %s regresses past recorded stage %s for document %s", stage, snapshot.Stage, documentID)
	}
	if rank > currentRank+1 {
		logger.Warn("pipeline: document %s jumped from %s to %s, skipping intermediate stages", documentID, doc.Stage, stage)
		if details == "" {
			details = "out-of-order: skipped intermediate stages"
		}
	}

	if filename != "" {
		doc.Filename = filename
	}
	doc.Stage = stage
	doc.UpdatedAt = time.Now()
	doc.History = append(doc.History, types.StageTransition{
		Stage:     stage,
		Timestamp: doc.UpdatedAt,
		Details:   details,
	})
	snapshot := doc.Clone()
	t.mu.Unlock()

	t.publishStageChanged(snapshot, details)
	return snapshot, nil
}

// failedStage returns the last non-terminal stage recorded before the
// failure marker. Callers hold t.mu.
func (t *Tracker) failedStage(doc *types.DocumentState) types.Stage {
	for i := len(doc.History) - 1; i >= 0; i-- {
		if !doc.History[i].Stage.Terminal() {
			return doc.History[i].Stage
		}
	}
	return doc.Stage
}

// MarkFailed records a terminal failure, retaining the stage at which
// the document failed.
func (t *Tracker) MarkFailed(documentID, filename, errMsg string, stage types.Stage) *types.DocumentState {
	l := t.docLock(documentID)
	l.Lock()
	defer l.Unlock()

	t.mu.Lock()
	doc, exists := t.docs[documentID]
	if !exists {
		doc = &types.DocumentState{DocumentID: documentID, Filename: filename}
		t.docs[documentID] = doc
	}
	doc.Error = errMsg
	doc.UpdatedAt = time.Now()
	if doc.Stage != types.StageFailed {
		doc.History = append(doc.History, types.StageTransition{
			Stage:     types.StageFailed,
			Timestamp: doc.UpdatedAt,
			Details:   "failed at stage " + string(stage) + ": " + errMsg,
		})
		doc.Stage = types.StageFailed
	}
	snapshot := doc.Clone()
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Publish(types.NewEvent(types.EventDocumentFailed, "pipeline", map[string]any{
			"document_id": snapshot.DocumentID,
			"filename":    snapshot.Filename,
			"stage":       string(stage),
			"error":       errMsg,
		}))
	}
	return snapshot
}

// MarkCompleted records terminal completion of the document.
func (t *Tracker) MarkCompleted(documentID string) (*types.DocumentState, error) {
	l := t.docLock(documentID)
	l.Lock()
	defer l.Unlock()

	t.mu.Lock()
	doc, exists := t.docs[documentID]
	if !exists {
		t.mu.Unlock()
		return nil, types.NewError(types.ErrCodeNotFound, "document not tracked: %s", documentID)
	}
	if doc.Stage == types.StageFailed {
		t.mu.Unlock()
		return nil, types.NewError(types.ErrCodeInvalidState, "document %s is failed", documentID)
	}
	if doc.Stage != types.StageCompleted {
		doc.Stage = types.StageCompleted
		doc.UpdatedAt = time.Now()
		doc.History = append(doc.History, types.StageTransition{
			Stage:     types.StageCompleted,
			Timestamp: doc.UpdatedAt,
		})
	}
	snapshot := doc.Clone()
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Publish(types.NewEvent(types.EventDocumentCompleted, "pipeline", map[string]any{
			"document_id": snapshot.DocumentID,
			"filename":    snapshot.Filename,
		}))
	}
	return snapshot, nil
}

// Reset removes the tracking record for one document so it can re-enter
// the pipeline from the first stage.
func (t *Tracker) Reset(documentID string) error {
	l := t.docLock(documentID)
	l.Lock()
	defer l.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.docs[documentID]; !exists {
		return types.NewError(types.ErrCodeNotFound, "document not tracked: %s", documentID)
	}
	delete(t.docs, documentID)
	return nil
}

// ResetAll clears every tracking record. Destructive; the REST surface
// requires an explicit confirmation header before invoking it.
func (t *Tracker) ResetAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.docs)
	t.docs = make(map[string]*types.DocumentState)
	return n
}

// Get returns a copy of the state for one document.
func (t *Tracker) Get(documentID string) (*types.DocumentState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc, exists := t.docs[documentID]
	if !exists {
		return nil, types.NewError(types.ErrCodeNotFound, "document not tracked: %s", documentID)
	}
	return doc.Clone(), nil
}

// Snapshot returns copies of every tracked document state.
func (t *Tracker) Snapshot() []*types.DocumentState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*types.DocumentState, 0, len(t.docs))
	for _, doc := range t.docs {
		out = append(out, doc.Clone())
	}
	return out
}

func (t *Tracker) publishStageChanged(doc *types.DocumentState, details string) {
	if t.bus == nil {
		return
	}
	data := map[string]any{
		"document_id": doc.DocumentID,
		"filename":    doc.Filename,
		"stage":       string(doc.Stage),
	}
	if details != "" {
		data["details"] = details
	}
	t.bus.Publish(types.NewEvent(types.EventDocumentStageChanged, "pipeline", data))
}
