// Package orchestrator implements the workflow scheduler/executor: it
// validates submitted workflows, schedules tasks over a bounded worker
// pool honoring ordering, priority and approval gates, and publishes
// lifecycle events on the bus.
//
// The Orchestrator is an explicit context object constructed once at
// process start and injected into every component that needs it; there
// is no ambient global instance.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/germanevangelisti/watcher-sub003/internal/agent"
	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/internal/config"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Config bounds workflow execution.
type Config struct {
	// Workers caps concurrently running tasks per workflow.
	Workers int64 `yaml:"workers"`

	// DefaultTaskTimeout bounds task dispatches that do not carry their
	// own timeout.
	DefaultTaskTimeout time.Duration `yaml:"default_task_timeout"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:            4,
		DefaultTaskTimeout: 5 * time.Minute,
	}
}

// Orchestrator owns every submitted workflow and its execution state.
type Orchestrator struct {
	config *Config
	agents *agent.Registry
	bus    *bus.Bus

	mu        sync.RWMutex
	workflows map[string]*workflowState
}

// workflowState wraps a workflow with its scheduling bookkeeping.
// All fields are guarded by mu.
type workflowState struct {
	mu sync.Mutex

	wf *types.Workflow

	// deps maps task ID to the IDs it waits for (explicit depends_on or
	// the implicit sequential ordering, resolved at submission).
	deps map[string][]string

	// order maps task ID to its submission index, used as the
	// tie-breaker after priority.
	order map[string]int

	// approved marks tasks whose approval gate has been passed.
	approved map[string]bool

	// rejected is set when an approval is rejected; under fail_fast the
	// workflow then terminates as Failed.
	rejected bool

	executing bool
	cancel    context.CancelFunc

	// wake nudges the scheduling loop after any task state change.
	wake chan struct{}
}

// New creates an orchestrator dispatching to agents and publishing on b.
func New(cfg *Config, agents *agent.Registry, b *bus.Bus) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.DefaultTaskTimeout <= 0 {
		cfg.DefaultTaskTimeout = DefaultConfig().DefaultTaskTimeout
	}
	return &Orchestrator{
		config:    cfg,
		agents:    agents,
		bus:       b,
		workflows: make(map[string]*workflowState),
	}
}

// Submit validates and stores a workflow, returning its ID. The
// workflow is not executed until Execute is called.
func (o *Orchestrator) Submit(ctx context.Context, wf *types.Workflow) (string, error) {
	if wf == nil || len(wf.Tasks) == 0 {
		return "", types.NewError(types.ErrCodeInvalidWorkflow, "workflow must contain at least one task")
	}

	wf = wf.Clone()
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	if wf.OnError == "" {
		wf.OnError = types.FailFast
	}
	if !wf.OnError.Valid() {
		return "", types.NewError(types.ErrCodeInvalidWorkflow, "unknown failure policy: %s", wf.OnError)
	}
	if err := config.ValidateRunConfig(wf.Config); err != nil {
		return "", types.WrapError(types.ErrCodeInvalidWorkflow, err, "invalid workflow config")
	}

	seen := make(map[string]struct{}, len(wf.Tasks))
	for _, t := range wf.Tasks {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if _, dup := seen[t.ID]; dup {
			return "", types.NewError(types.ErrCodeInvalidWorkflow, "duplicate task id: %s", t.ID)
		}
		seen[t.ID] = struct{}{}

		if !o.agents.Has(t.Type) {
			return "", types.NewError(types.ErrCodeInvalidWorkflow, "task %s references unknown agent: %s", t.ID, t.Type)
		}
		t.WorkflowID = wf.ID
		t.Status = types.TaskStatusPending
		t.CreatedAt = time.Now()
	}

	deps, err := resolveDependencies(wf.Tasks)
	if err != nil {
		return "", err
	}

	order := make(map[string]int, len(wf.Tasks))
	for i, t := range wf.Tasks {
		order[t.ID] = i
	}

	wf.Status = types.WorkflowStatusCreated
	wf.CreatedAt = time.Now()

	ws := &workflowState{
		wf:       wf,
		deps:     deps,
		order:    order,
		approved: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}

	o.mu.Lock()
	o.workflows[wf.ID] = ws
	o.mu.Unlock()

	return wf.ID, nil
}

// resolveDependencies computes the effective dependency set per task:
// explicit depends_on when present, otherwise the implicit sequential
// order (a parallel task waits only for the nearest preceding
// non-parallel task; a non-parallel task joins any parallel run
// directly before it).
func resolveDependencies(tasks []*types.Task) (map[string][]string, error) {
	byID := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = i
	}

	deps := make(map[string][]string, len(tasks))
	lastSequential := ""
	for i, t := range tasks {
		switch {
		case len(t.DependsOn) > 0:
			for _, dep := range t.DependsOn {
				if _, ok := byID[dep]; !ok {
					return nil, types.NewError(types.ErrCodeInvalidWorkflow,
						"task %s depends on unknown task: %s", t.ID, dep)
				}
				if dep == t.ID {
					return nil, types.NewError(types.ErrCodeInvalidWorkflow,
						"task %s depends on itself", t.ID)
				}
			}
			deps[t.ID] = append([]string(nil), t.DependsOn...)
		case t.Parallel:
			if lastSequential != "" {
				deps[t.ID] = []string{lastSequential}
			}
		default:
			var joined []string
			for j := i - 1; j >= 0 && tasks[j].Parallel; j-- {
				joined = append(joined, tasks[j].ID)
			}
			if len(joined) == 0 && i > 0 {
				joined = []string{tasks[i-1].ID}
			}
			deps[t.ID] = joined
		}
		if !t.Parallel {
			lastSequential = t.ID
		}
	}

	if cycle := findCycle(tasks, deps); cycle != "" {
		return nil, types.NewError(types.ErrCodeInvalidWorkflow, "dependency cycle involving task %s", cycle)
	}
	return deps, nil
}

// findCycle runs a coloring DFS over the dependency graph and returns
// a task on a cycle, or empty.
func findCycle(tasks []*types.Task, deps map[string][]string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, t := range tasks {
		if color[t.ID] == white && visit(t.ID) {
			return t.ID
		}
	}
	return ""
}

// state returns the workflow state for an ID.
func (o *Orchestrator) state(workflowID string) (*workflowState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ws, ok := o.workflows[workflowID]
	if !ok {
		return nil, types.NewError(types.ErrCodeNotFound, "workflow not found: %s", workflowID)
	}
	return ws, nil
}

// WorkflowSnapshot returns a deep copy of the workflow's current state.
func (o *Orchestrator) WorkflowSnapshot(workflowID string) (*types.Workflow, error) {
	ws, err := o.state(workflowID)
	if err != nil {
		return nil, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.wf.Clone(), nil
}

// ListWorkflows returns copies of every known workflow.
func (o *Orchestrator) ListWorkflows() []*types.Workflow {
	o.mu.RLock()
	states := make([]*workflowState, 0, len(o.workflows))
	for _, ws := range o.workflows {
		states = append(states, ws)
	}
	o.mu.RUnlock()

	out := make([]*types.Workflow, 0, len(states))
	for _, ws := range states {
		ws.mu.Lock()
		out = append(out, ws.wf.Clone())
		ws.mu.Unlock()
	}
	return out
}

// notify nudges the scheduling loop. The send never blocks, so it is
// safe with or without ws.mu held.
func (ws *workflowState) notify() {
	select {
	case ws.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) publish(eventType string, data map[string]any) {
	if o.bus != nil {
		o.bus.Publish(types.NewEvent(eventType, "orchestrator", data))
	}
}
