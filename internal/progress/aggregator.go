// Package progress derives workflow- and pipeline-level progress from
// task and document state snapshots. It owns no state of record: every
// value it reports is recomputed from the underlying sources, so reads
// are always safe against concurrent scheduler mutation.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// WorkflowSource provides read-only workflow snapshots.
type WorkflowSource interface {
	WorkflowSnapshot(workflowID string) (*types.Workflow, error)
}

// DocumentSource provides read-only document state snapshots.
type DocumentSource interface {
	Snapshot() []*types.DocumentState
}

// SessionSource reports the active processing session, if any.
type SessionSource interface {
	Active() *types.Session
}

// WorkflowProgress is the derived progress of one workflow.
type WorkflowProgress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// DurationStats summarizes observed task durations in milliseconds.
type DurationStats struct {
	Count int64 `json:"count"`
	P50   int64 `json:"p50_ms"`
	P95   int64 `json:"p95_ms"`
	Max   int64 `json:"max_ms"`
}

// PipelineStatus is the derived pipeline-wide snapshot.
type PipelineStatus struct {
	TotalDocuments int                       `json:"total_documents"`
	ByStage        map[string]int            `json:"by_stage"`
	TotalIndexed   int                       `json:"total_indexed"`
	TaskDurations  *DurationStats            `json:"task_durations,omitempty"`
	ByAgent        map[string]*DurationStats `json:"by_agent,omitempty"`
	ActiveSession  *types.Session            `json:"active_session,omitempty"`
}

// Aggregator computes derived progress and collects task duration
// histograms from the event stream.
type Aggregator struct {
	workflows WorkflowSource
	documents DocumentSource
	sessions  SessionSource
	bus       *bus.Bus

	mu      sync.Mutex
	all     *hdrhistogram.Histogram
	byAgent map[string]*hdrhistogram.Histogram
}

// histogram bounds: 1ms to 1h, 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, int64(time.Hour/time.Millisecond), 3)
}

// New creates an aggregator over the given sources. b may be nil when
// event-driven collection is not wanted (tests).
func New(workflows WorkflowSource, documents DocumentSource, sessions SessionSource, b *bus.Bus) *Aggregator {
	return &Aggregator{
		workflows: workflows,
		documents: documents,
		sessions:  sessions,
		bus:       b,
		all:       newHistogram(),
		byAgent:   make(map[string]*hdrhistogram.Histogram),
	}
}

// Run consumes task completion events until ctx ends, recording
// durations and re-publishing derived workflow progress.
func (a *Aggregator) Run(ctx context.Context) {
	if a.bus == nil {
		return
	}
	sub := a.bus.Subscribe(types.EventTaskCompleted, types.EventTaskFailed)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			a.consume(evt)
		}
	}
}

func (a *Aggregator) consume(evt types.Event) {
	agentType, _ := evt.Data["task_type"].(string)
	if ms, ok := asInt64(evt.Data["duration_ms"]); ok {
		a.ObserveTaskDuration(agentType, time.Duration(ms)*time.Millisecond)
	}

	workflowID, _ := evt.Data["workflow_id"].(string)
	if workflowID == "" || a.workflows == nil {
		return
	}
	wp, err := a.WorkflowProgress(workflowID)
	if err != nil {
		return
	}
	a.bus.Publish(types.NewEvent(types.EventWorkflowProgress, "progress", map[string]any{
		"workflow_id": workflowID,
		"current":     wp.Current,
		"total":       wp.Total,
		"percentage":  wp.Percentage,
	}))
}

// ObserveTaskDuration records one task duration sample.
func (a *Aggregator) ObserveTaskDuration(agentType string, d time.Duration) {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.all.RecordValue(ms)
	h, ok := a.byAgent[agentType]
	if !ok {
		h = newHistogram()
		a.byAgent[agentType] = h
	}
	_ = h.RecordValue(ms)
}

// WorkflowProgress derives {current, total, percentage} for a workflow.
// Current counts tasks in a terminal state and is clamped so it can
// never exceed total, even mid-mutation.
func (a *Aggregator) WorkflowProgress(workflowID string) (*WorkflowProgress, error) {
	wf, err := a.workflows.WorkflowSnapshot(workflowID)
	if err != nil {
		return nil, err
	}

	total := len(wf.Tasks)
	current := 0
	for _, t := range wf.Tasks {
		if t.Status.Terminal() {
			current++
		}
	}
	if current > total {
		current = total
	}

	wp := &WorkflowProgress{Current: current, Total: total}
	if total > 0 {
		wp.Percentage = float64(current) / float64(total) * 100
	}
	return wp, nil
}

// PipelineStatus derives the pipeline-wide snapshot: counts per stage,
// indexed documents, task duration statistics and the active session.
func (a *Aggregator) PipelineStatus() *PipelineStatus {
	status := &PipelineStatus{ByStage: make(map[string]int)}

	if a.documents != nil {
		docs := a.documents.Snapshot()
		status.TotalDocuments = len(docs)
		for _, d := range docs {
			status.ByStage[string(d.Stage)]++
		}
		status.TotalIndexed = status.ByStage[string(types.StageCompleted)]
	}
	if a.sessions != nil {
		status.ActiveSession = a.sessions.Active()
	}

	a.mu.Lock()
	if a.all.TotalCount() > 0 {
		status.TaskDurations = statsOf(a.all)
		status.ByAgent = make(map[string]*DurationStats, len(a.byAgent))
		for agentType, h := range a.byAgent {
			status.ByAgent[agentType] = statsOf(h)
		}
	}
	a.mu.Unlock()

	return status
}

func statsOf(h *hdrhistogram.Histogram) *DurationStats {
	return &DurationStats{
		Count: h.TotalCount(),
		P50:   h.ValueAtQuantile(50),
		P95:   h.ValueAtQuantile(95),
		Max:   h.Max(),
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
