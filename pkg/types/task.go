package types

import "time"

// TaskStatus represents the lifecycle state of a task.
// Transitions are monotonic: a task never returns to Pending after
// leaving it, except for the single AwaitingApproval -> Pending hop
// performed by the approval gate.
type TaskStatus string

const (
	TaskStatusPending          TaskStatus = "pending"
	TaskStatusRunning          TaskStatus = "running"
	TaskStatusAwaitingApproval TaskStatus = "awaiting_approval"
	TaskStatusSucceeded        TaskStatus = "succeeded"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCancelled        TaskStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Task is the atomic unit of work inside a workflow. It is dispatched to
// the agent registered for its Type.
type Task struct {
	ID         string         `yaml:"id" json:"id"`
	WorkflowID string         `yaml:"-" json:"workflow_id"`
	Name       string         `yaml:"name,omitempty" json:"name,omitempty"`
	Type       string         `yaml:"type" json:"task_type"`
	Params     map[string]any `yaml:"params,omitempty" json:"parameters,omitempty"`
	Priority   int            `yaml:"priority,omitempty" json:"priority"`

	// Parallel marks the task as independent of its immediate predecessor:
	// it only waits for the nearest preceding non-parallel task.
	Parallel bool `yaml:"parallel,omitempty" json:"parallel,omitempty"`

	// DependsOn lists explicit task IDs this task waits for. When set it
	// replaces the implicit sequential ordering for this task.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// RequiresApproval suspends the task in AwaitingApproval until an
	// external approve/reject decision arrives.
	RequiresApproval bool `yaml:"requires_approval,omitempty" json:"requires_approval,omitempty"`

	// TimeoutSeconds bounds the task's dispatch. Zero means the
	// orchestrator default applies.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	Status     TaskStatus `yaml:"-" json:"status"`
	Result     any        `yaml:"-" json:"result,omitempty"`
	Error      string     `yaml:"-" json:"error,omitempty"`
	CreatedAt  time.Time  `yaml:"-" json:"created_at"`
	StartedAt  *time.Time `yaml:"-" json:"started_at,omitempty"`
	FinishedAt *time.Time `yaml:"-" json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the task. Params values are copied
// shallowly; callers must not mutate nested structures.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Params != nil {
		cp.Params = make(map[string]any, len(t.Params))
		for k, v := range t.Params {
			cp.Params[k] = v
		}
	}
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		cp.FinishedAt = &finished
	}
	return &cp
}
