package types

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusCreated   WorkflowStatus = "created"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	}
	return false
}

// FailurePolicy controls how a workflow reacts to a failed task.
type FailurePolicy string

const (
	// FailFast aborts all remaining pending tasks when a task fails or a
	// required approval is rejected.
	FailFast FailurePolicy = "fail_fast"
	// BestEffort keeps executing remaining tasks and surfaces an
	// aggregate failure count at the end.
	BestEffort FailurePolicy = "best_effort"
)

// Valid reports whether the policy is one of the recognized values.
func (p FailurePolicy) Valid() bool {
	return p == FailFast || p == BestEffort
}

// Workflow is a named, ordered set of tasks executed as one logical unit.
type Workflow struct {
	ID     string         `yaml:"id" json:"id"`
	Name   string         `yaml:"name" json:"name"`
	Tasks  []*Task        `yaml:"tasks" json:"tasks"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	// OnError selects the failure policy. Defaults to fail_fast.
	OnError FailurePolicy `yaml:"on_error,omitempty" json:"on_error"`

	Status WorkflowStatus `yaml:"-" json:"status"`

	// Progress is the percentage of tasks in a terminal state, 0-100.
	Progress float64 `yaml:"-" json:"progress_percentage"`

	// FailedTasks counts terminally failed tasks; meaningful under
	// best_effort where the workflow can complete despite failures.
	FailedTasks int `yaml:"-" json:"failed_tasks,omitempty"`

	CreatedAt  time.Time  `yaml:"-" json:"created_at"`
	StartedAt  *time.Time `yaml:"-" json:"started_at,omitempty"`
	FinishedAt *time.Time `yaml:"-" json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the workflow and its tasks.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	cp.Tasks = make([]*Task, len(w.Tasks))
	for i, t := range w.Tasks {
		cp.Tasks[i] = t.Clone()
	}
	if w.Config != nil {
		cp.Config = make(map[string]any, len(w.Config))
		for k, v := range w.Config {
			cp.Config[k] = v
		}
	}
	if w.StartedAt != nil {
		started := *w.StartedAt
		cp.StartedAt = &started
	}
	if w.FinishedAt != nil {
		finished := *w.FinishedAt
		cp.FinishedAt = &finished
	}
	return &cp
}

// Task returns the task with the given ID, or nil.
func (w *Workflow) Task(taskID string) *Task {
	for _, t := range w.Tasks {
		if t.ID == taskID {
			return t
		}
	}
	return nil
}
