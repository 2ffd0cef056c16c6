package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

func TestTracker_AdvanceCreatesRecord(t *testing.T) {
	tracker := NewTracker(nil)

	doc, err := tracker.Advance("doc-1", "boletin-117.txt", types.StageExtraction, "")
	require.NoError(t, err)
	assert.Equal(t, types.StageExtraction, doc.Stage)
	assert.Len(t, doc.History, 1)
	assert.Equal(t, "boletin-117.txt", doc.Filename)
}

func TestTracker_AdvanceThroughAllStages(t *testing.T) {
	tracker := NewTracker(nil)

	for _, stage := range types.PipelineStages {
		_, err := tracker.Advance("doc-1", "f.txt", stage, "")
		require.NoError(t, err)
	}
	doc, err := tracker.MarkCompleted("doc-1")
	require.NoError(t, err)

	assert.Equal(t, types.StageCompleted, doc.Stage)
	require.Len(t, doc.History, len(types.PipelineStages)+1)
	for i, stage := range types.PipelineStages {
		assert.Equal(t, stage, doc.History[i].Stage)
	}
}

func TestTracker_SameStageIsIdempotent(t *testing.T) {
	tracker := NewTracker(nil)

	_, err := tracker.Advance("doc-1", "f.txt", types.StageCleaning, "")
	require.NoError(t, err)
	doc, err := tracker.Advance("doc-1", "f.txt", types.StageCleaning, "")
	require.NoError(t, err)

	assert.Len(t, doc.History, 1)
}

func TestTracker_RegressionRejected(t *testing.T) {
	tracker := NewTracker(nil)

	_, err := tracker.Advance("doc-1", "f.txt", types.StageChunking, "")
	require.NoError(t, err)

	doc, err := tracker.Advance("doc-1", "f.txt", types.StageExtraction, "")
	require.Error(t, err)
	assert.True(t, types.IsOutOfOrderStage(err))

	// State is unchanged by the rejected transition.
	assert.Equal(t, types.StageChunking, doc.Stage)
	current, err := tracker.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, types.StageChunking, current.Stage)
	assert.Len(t, current.History, 1)
}

func TestTracker_ForwardSkipAccepted(t *testing.T) {
	tracker := NewTracker(nil)

	_, err := tracker.Advance("doc-1", "f.txt", types.StageExtraction, "")
	require.NoError(t, err)

	doc, err := tracker.Advance("doc-1", "f.txt", types.StageEnrichment, "")
	require.NoError(t, err)
	assert.Equal(t, types.StageEnrichment, doc.Stage)
	assert.Contains(t, doc.History[len(doc.History)-1].Details, "out-of-order")
}

func TestTracker_MarkFailedBlocksFurtherAdvance(t *testing.T) {
	tracker := NewTracker(nil)

	_, err := tracker.Advance("doc-1", "f.txt", types.StageCleaning, "")
	require.NoError(t, err)
	failed := tracker.MarkFailed("doc-1", "f.txt", "encoding error", types.StageCleaning)
	assert.Equal(t, types.StageFailed, failed.Stage)
	assert.Equal(t, "encoding error", failed.Error)

	_, err = tracker.Advance("doc-1", "f.txt", types.StageChunking, "")
	require.Error(t, err)
	assert.True(t, types.IsInvalidState(err))

	_, err = tracker.MarkCompleted("doc-1")
	require.Error(t, err)
	assert.True(t, types.IsInvalidState(err))
}

func TestTracker_ResetAllowsReprocessing(t *testing.T) {
	tracker := NewTracker(nil)

	_, err := tracker.Advance("doc-1", "f.txt", types.StageCleaning, "")
	require.NoError(t, err)
	tracker.MarkFailed("doc-1", "f.txt", "bad input", types.StageCleaning)

	require.NoError(t, tracker.Reset("doc-1"))
	_, err = tracker.Get("doc-1")
	assert.True(t, types.IsNotFound(err))

	doc, err := tracker.Advance("doc-1", "f.txt", types.StageExtraction, "")
	require.NoError(t, err)
	assert.Equal(t, types.StageExtraction, doc.Stage)
	assert.Empty(t, doc.Error)
}

func TestTracker_ResetUnknownDocument(t *testing.T) {
	tracker := NewTracker(nil)
	err := tracker.Reset("ghost")
	assert.True(t, types.IsNotFound(err))
}

func TestTracker_ResetAll(t *testing.T) {
	tracker := NewTracker(nil)
	_, _ = tracker.Advance("a", "a.txt", types.StageExtraction, "")
	_, _ = tracker.Advance("b", "b.txt", types.StageExtraction, "")

	assert.Equal(t, 2, tracker.ResetAll())
	assert.Empty(t, tracker.Snapshot())
}

func TestTracker_SnapshotIsIsolated(t *testing.T) {
	tracker := NewTracker(nil)
	_, _ = tracker.Advance("a", "a.txt", types.StageExtraction, "")

	snap := tracker.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Stage = types.StageIndexing

	current, err := tracker.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.StageExtraction, current.Stage)
}

// TestTracker_HistoryProperties drives a tracker with random stage
// sequences and checks the history invariants: append-only growth, no
// consecutive duplicates, and monotonically non-decreasing stage rank.
func TestTracker_HistoryProperties(t *testing.T) {
	stages := []types.Stage{
		types.StageExtraction,
		types.StageCleaning,
		types.StageChunking,
		types.StageEnrichment,
		types.StageIndexing,
		types.StageCompleted,
	}

	rapid.Check(t, func(t *rapid.T) {
		tracker := NewTracker(nil)
		steps := rapid.IntRange(1, 40).Draw(t, "steps")

		prevLen := 0
		for i := 0; i < steps; i++ {
			stage := stages[rapid.IntRange(0, len(stages)-1).Draw(t, "stage")]
			_, _ = tracker.Advance("doc", "doc.txt", stage, "")

			doc, err := tracker.Get("doc")
			if err != nil {
				t.Fatalf("document disappeared: %v", err)
			}

			if len(doc.History) < prevLen {
				t.Fatalf("history shrank from %d to %d", prevLen, len(doc.History))
			}
			prevLen = len(doc.History)

			prevRank := -1
			for j, tr := range doc.History {
				if j > 0 && doc.History[j-1].Stage == tr.Stage {
					t.Fatalf("consecutive duplicate stage %s at %d", tr.Stage, j)
				}
				rank, ok := tr.Stage.Rank()
				if !ok {
					t.Fatalf("unranked stage %s in history", tr.Stage)
				}
				if rank < prevRank {
					t.Fatalf("history regressed: rank %d after %d", rank, prevRank)
				}
				prevRank = rank
			}
		}
	})
}
