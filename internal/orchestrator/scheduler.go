package orchestrator

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/germanevangelisti/watcher-sub003/internal/agent"
	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Execute starts asynchronous execution of a submitted workflow. It
// returns immediately; progress is observable through snapshots and
// bus events.
func (o *Orchestrator) Execute(ctx context.Context, workflowID string) error {
	ws, err := o.state(workflowID)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	switch {
	case ws.executing || ws.wf.Status == types.WorkflowStatusRunning:
		ws.mu.Unlock()
		return types.NewError(types.ErrCodeAlreadyRunning, "workflow already running: %s", workflowID)
	case ws.wf.Status.Terminal():
		ws.mu.Unlock()
		return types.NewError(types.ErrCodeInvalidState,
			"workflow %s already finished with status %s", workflowID, ws.wf.Status)
	}
	ws.executing = true
	ws.wf.Status = types.WorkflowStatusRunning
	now := time.Now()
	ws.wf.StartedAt = &now
	name := ws.wf.Name
	taskCount := len(ws.wf.Tasks)
	policy := ws.wf.OnError

	// Execution is detached from the caller's context: an HTTP request
	// ending must not tear down a running workflow.
	runCtx, cancel := context.WithCancel(context.Background())
	ws.cancel = cancel
	ws.mu.Unlock()

	o.publish(types.EventWorkflowStarted, map[string]any{
		"workflow_id": workflowID,
		"name":        name,
	})
	logger.Info("workflow %s started (%d tasks, on_error=%s)", workflowID, taskCount, policy)

	go o.run(runCtx, ws)
	return nil
}

// Cancel terminates a workflow. Every non-terminal task transitions to
// Cancelled immediately; in-flight agent calls are abandoned and their
// late results discarded.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) error {
	ws, err := o.state(workflowID)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	if ws.wf.Status.Terminal() {
		ws.mu.Unlock()
		return types.NewError(types.ErrCodeInvalidState,
			"workflow %s already finished with status %s", workflowID, ws.wf.Status)
	}
	cancelled := cancelRemaining(ws.wf, true)
	ws.wf.Status = types.WorkflowStatusCancelled
	now := time.Now()
	ws.wf.FinishedAt = &now
	ws.wf.Progress = progressOf(ws.wf)
	cancel := ws.cancel
	ws.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, taskID := range cancelled {
		o.publish(types.EventTaskCancelled, map[string]any{
			"workflow_id": workflowID,
			"task_id":     taskID,
		})
	}
	o.publish(types.EventWorkflowCancelled, map[string]any{
		"workflow_id": workflowID,
	})
	logger.Info("workflow %s cancelled (%d tasks interrupted)", workflowID, len(cancelled))
	ws.notify()
	return nil
}

// run is the scheduling loop. Each pass computes the runnable frontier
// (pending tasks whose dependencies are all terminal), flips approval
// gated tasks to AwaitingApproval, and dispatches the rest ordered by
// priority. The loop itself never performs agent work; dispatches run
// on worker goroutines bounded by a semaphore.
func (o *Orchestrator) run(ctx context.Context, ws *workflowState) {
	workers := semaphore.NewWeighted(o.config.Workers)

	for {
		if ctx.Err() != nil {
			o.finalize(ws)
			return
		}

		runnable, gated, active := o.schedulePass(ws)
		for _, taskID := range gated {
			o.publish(types.EventTaskAwaitingApproval, map[string]any{
				"workflow_id": ws.wf.ID,
				"task_id":     taskID,
			})
		}

		if len(runnable) == 0 {
			if active == 0 {
				o.finalize(ws)
				return
			}
			select {
			case <-ctx.Done():
			case <-ws.wake:
			}
			continue
		}

		for _, t := range runnable {
			if err := workers.Acquire(ctx, 1); err != nil {
				break
			}
			if !o.startTask(ws, t.ID) {
				workers.Release(1)
				continue
			}
			go func(t *types.Task) {
				defer workers.Release(1)
				o.dispatch(ctx, ws, t)
			}(t)
		}
	}
}

// schedulePass inspects the workflow under its lock and returns the
// tasks ready to dispatch (cloned, priority-ordered), the tasks just
// parked at their approval gate, and the count of tasks still able to
// make progress (running or awaiting approval).
func (o *Orchestrator) schedulePass(ws *workflowState) (runnable []*types.Task, gated []string, active int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	for _, t := range ws.wf.Tasks {
		switch t.Status {
		case types.TaskStatusRunning, types.TaskStatusAwaitingApproval:
			active++
		case types.TaskStatusPending:
			if !depsSatisfied(ws, t) {
				active++
				continue
			}
			if t.RequiresApproval && !ws.approved[t.ID] {
				t.Status = types.TaskStatusAwaitingApproval
				gated = append(gated, t.ID)
				active++
				continue
			}
			runnable = append(runnable, t.Clone())
		}
	}

	sort.SliceStable(runnable, func(i, j int) bool {
		if runnable[i].Priority != runnable[j].Priority {
			return runnable[i].Priority > runnable[j].Priority
		}
		return ws.order[runnable[i].ID] < ws.order[runnable[j].ID]
	})
	return runnable, gated, active
}

// depsSatisfied reports whether every effective dependency of t has
// reached a terminal status. Caller holds ws.mu.
func depsSatisfied(ws *workflowState, t *types.Task) bool {
	for _, dep := range ws.deps[t.ID] {
		depTask := ws.wf.Task(dep)
		if depTask == nil || !depTask.Status.Terminal() {
			return false
		}
	}
	return true
}

// startTask flips a task to Running if it is still Pending. A false
// return means the task was cancelled or gated between the scheduling
// pass and now.
func (o *Orchestrator) startTask(ws *workflowState, taskID string) bool {
	ws.mu.Lock()
	t := ws.wf.Task(taskID)
	if t == nil || t.Status != types.TaskStatusPending {
		ws.mu.Unlock()
		return false
	}
	t.Status = types.TaskStatusRunning
	now := time.Now()
	t.StartedAt = &now
	ws.mu.Unlock()

	o.publish(types.EventTaskStarted, map[string]any{
		"workflow_id": ws.wf.ID,
		"task_id":     taskID,
		"task_type":   t.Type,
	})
	return true
}

// dispatch runs a single task on a worker goroutine and records the
// outcome. The task argument is a clone; the authoritative copy is
// only touched under ws.mu in completeTask.
func (o *Orchestrator) dispatch(ctx context.Context, ws *workflowState, t *types.Task) {
	timeout := o.config.DefaultTaskTimeout
	if t.TimeoutSeconds > 0 {
		timeout = time.Duration(t.TimeoutSeconds) * time.Second
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ag, err := o.agents.GetOrError(t.Type)
	if err != nil {
		o.completeTask(ws, t, nil, err, 0)
		return
	}

	start := time.Now()
	res, err := ag.Execute(taskCtx, &agent.Invocation{
		Task:   t,
		Params: t.Params,
		Config: ws.wf.Config,
	})
	o.completeTask(ws, t, res, err, time.Since(start))
}

// completeTask records a task outcome. Completions arriving after the
// task left Running (cancellation won the race) are discarded without
// touching state.
func (o *Orchestrator) completeTask(ws *workflowState, task *types.Task, res *agent.Result, execErr error, elapsed time.Duration) {
	ws.mu.Lock()
	t := ws.wf.Task(task.ID)
	if t == nil || t.Status != types.TaskStatusRunning {
		ws.mu.Unlock()
		logger.Debug("discarding late result for task %s (status no longer running)", task.ID)
		ws.notify()
		return
	}

	now := time.Now()
	t.FinishedAt = &now

	var cascaded []string
	if execErr != nil {
		if errors.Is(execErr, context.DeadlineExceeded) {
			execErr = types.WrapError(types.ErrCodeTimeout, execErr, "task %s timed out", t.ID)
		}
		t.Status = types.TaskStatusFailed
		t.Error = execErr.Error()
		if ws.wf.OnError == types.FailFast {
			cascaded = cancelRemaining(ws.wf, false)
		}
	} else {
		t.Status = types.TaskStatusSucceeded
		if res != nil {
			t.Result = res.Output
		}
	}
	ws.wf.Progress = progressOf(ws.wf)
	workflowID := ws.wf.ID
	taskType := t.Type
	ws.mu.Unlock()

	data := map[string]any{
		"workflow_id": workflowID,
		"task_id":     task.ID,
		"task_type":   taskType,
		"duration_ms": elapsed.Milliseconds(),
	}
	if execErr != nil {
		data["error"] = execErr.Error()
		o.publish(types.EventTaskFailed, data)
		logger.Warn("task %s (%s) failed after %s: %v", task.ID, taskType, elapsed, execErr)
	} else {
		o.publish(types.EventTaskCompleted, data)
		logger.Debug("task %s (%s) completed in %s", task.ID, taskType, elapsed)
	}
	for _, taskID := range cascaded {
		o.publish(types.EventTaskCancelled, map[string]any{
			"workflow_id": workflowID,
			"task_id":     taskID,
			"reason":      "fail_fast",
		})
	}
	ws.notify()
}

// cancelRemaining marks non-terminal tasks Cancelled and returns their
// IDs. Running tasks are included only when includeRunning is set (a
// workflow-level cancel); the fail_fast cascade lets in-flight tasks
// finish and only cuts off tasks that have not started.
func cancelRemaining(wf *types.Workflow, includeRunning bool) []string {
	var cancelled []string
	now := time.Now()
	for _, t := range wf.Tasks {
		switch t.Status {
		case types.TaskStatusPending, types.TaskStatusAwaitingApproval:
		case types.TaskStatusRunning:
			if !includeRunning {
				continue
			}
		default:
			continue
		}
		t.Status = types.TaskStatusCancelled
		t.FinishedAt = &now
		cancelled = append(cancelled, t.ID)
	}
	return cancelled
}

// progressOf derives completion percentage from terminal task counts.
// It is never stored independently of the task states it summarizes.
func progressOf(wf *types.Workflow) float64 {
	if len(wf.Tasks) == 0 {
		return 0
	}
	terminal := 0
	for _, t := range wf.Tasks {
		if t.Status.Terminal() {
			terminal++
		}
	}
	return float64(terminal) / float64(len(wf.Tasks)) * 100
}

// finalize computes the workflow's terminal status once no task can
// make further progress.
func (o *Orchestrator) finalize(ws *workflowState) {
	ws.mu.Lock()
	if ws.wf.Status.Terminal() {
		// Cancel already settled the workflow.
		ws.executing = false
		ws.mu.Unlock()
		return
	}

	failed := 0
	for _, t := range ws.wf.Tasks {
		if t.Status == types.TaskStatusFailed {
			failed++
		}
	}
	ws.wf.FailedTasks = failed

	switch {
	case ws.wf.OnError == types.FailFast && (failed > 0 || ws.rejected):
		ws.wf.Status = types.WorkflowStatusFailed
	default:
		ws.wf.Status = types.WorkflowStatusCompleted
	}
	now := time.Now()
	ws.wf.FinishedAt = &now
	ws.wf.Progress = progressOf(ws.wf)
	ws.executing = false

	workflowID := ws.wf.ID
	status := ws.wf.Status
	ws.mu.Unlock()

	eventType := types.EventWorkflowCompleted
	if status == types.WorkflowStatusFailed {
		eventType = types.EventWorkflowFailed
	}
	o.publish(eventType, map[string]any{
		"workflow_id":  workflowID,
		"status":       string(status),
		"failed_tasks": failed,
	})
	logger.Info("workflow %s finished with status %s (%d failed tasks)", workflowID, status, failed)
}
