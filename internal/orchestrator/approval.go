package orchestrator

import (
	"time"

	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// AwaitingApproval returns copies of the workflow's tasks currently
// parked at their approval gate.
func (o *Orchestrator) AwaitingApproval(workflowID string) ([]*types.Task, error) {
	ws, err := o.state(workflowID)
	if err != nil {
		return nil, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	var waiting []*types.Task
	for _, t := range ws.wf.Tasks {
		if t.Status == types.TaskStatusAwaitingApproval {
			waiting = append(waiting, t.Clone())
		}
	}
	return waiting, nil
}

// Approve releases a task from its approval gate back to Pending so
// the scheduler picks it up on the next pass. An optional payload is
// merged into the task parameters under the "approval" key.
func (o *Orchestrator) Approve(workflowID, taskID string, payload map[string]any) (*types.Task, error) {
	ws, err := o.state(workflowID)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	t := ws.wf.Task(taskID)
	if t == nil {
		ws.mu.Unlock()
		return nil, types.NewError(types.ErrCodeNotFound, "task not found: %s", taskID)
	}
	if t.Status != types.TaskStatusAwaitingApproval {
		ws.mu.Unlock()
		return nil, types.NewError(types.ErrCodeInvalidState,
			"task %s is %s, not awaiting approval", taskID, t.Status)
	}
	ws.approved[taskID] = true
	if payload != nil {
		if t.Params == nil {
			t.Params = make(map[string]any, 1)
		}
		t.Params["approval"] = payload
	}
	t.Status = types.TaskStatusPending
	snapshot := t.Clone()
	ws.mu.Unlock()

	o.publish(types.EventTaskApproved, map[string]any{
		"workflow_id": workflowID,
		"task_id":     taskID,
	})
	logger.Info("task %s approved in workflow %s", taskID, workflowID)
	ws.notify()
	return snapshot, nil
}

// Reject cancels a task at its approval gate. Under fail_fast the
// rejection also cancels every remaining unstarted task and the
// workflow terminates as Failed.
func (o *Orchestrator) Reject(workflowID, taskID, reason string) (*types.Task, error) {
	ws, err := o.state(workflowID)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	t := ws.wf.Task(taskID)
	if t == nil {
		ws.mu.Unlock()
		return nil, types.NewError(types.ErrCodeNotFound, "task not found: %s", taskID)
	}
	if t.Status != types.TaskStatusAwaitingApproval {
		ws.mu.Unlock()
		return nil, types.NewError(types.ErrCodeInvalidState,
			"task %s is %s, not awaiting approval", taskID, t.Status)
	}
	now := time.Now()
	t.Status = types.TaskStatusCancelled
	t.FinishedAt = &now
	if reason == "" {
		reason = "approval rejected"
	}
	t.Error = reason
	ws.rejected = true

	var cascaded []string
	if ws.wf.OnError == types.FailFast {
		cascaded = cancelRemaining(ws.wf, false)
	}
	ws.wf.Progress = progressOf(ws.wf)
	snapshot := t.Clone()
	ws.mu.Unlock()

	o.publish(types.EventTaskRejected, map[string]any{
		"workflow_id": workflowID,
		"task_id":     taskID,
		"reason":      reason,
	})
	for _, id := range cascaded {
		o.publish(types.EventTaskCancelled, map[string]any{
			"workflow_id": workflowID,
			"task_id":     id,
			"reason":      "approval rejected upstream",
		})
	}
	logger.Warn("task %s rejected in workflow %s: %s", taskID, workflowID, reason)
	ws.notify()
	return snapshot, nil
}
