package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// readyCheck handles GET /ready
func (s *Server) readyCheck(c *fiber.Ctx) error {
	ready := s.orch != nil && s.runner != nil
	status := "ready"
	if !ready {
		status = "not_ready"
	}

	return c.JSON(ReadyResponse{
		Ready:     ready,
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// submitWorkflow handles POST /api/v1/workflows
func (s *Server) submitWorkflow(c *fiber.Ctx) error {
	var req WorkflowSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}

	var workflow *types.Workflow
	switch {
	case req.YAML != "":
		workflow = &types.Workflow{}
		if err := yaml.Unmarshal([]byte(req.YAML), workflow); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_workflow",
				Message: "Failed to parse workflow YAML: " + err.Error(),
			})
		}
	case req.Workflow != nil:
		workflow = req.Workflow
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Either 'workflow' or 'yaml' must be provided",
		})
	}

	workflowID, err := s.orch.Submit(c.Context(), workflow)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(WorkflowSubmitResponse{
		WorkflowID: workflowID,
		Status:     "submitted",
	})
}

// listWorkflows handles GET /api/v1/workflows
func (s *Server) listWorkflows(c *fiber.Ctx) error {
	workflows := s.orch.ListWorkflows()
	return c.JSON(WorkflowListResponse{
		Workflows: workflows,
		Count:     len(workflows),
	})
}

// getWorkflow handles GET /api/v1/workflows/:id
func (s *Server) getWorkflow(c *fiber.Ctx) error {
	wf, err := s.orch.WorkflowSnapshot(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(wf)
}

// executeWorkflow handles POST /api/v1/workflows/:id/execute
func (s *Server) executeWorkflow(c *fiber.Ctx) error {
	workflowID := c.Params("id")
	if err := s.orch.Execute(c.Context(), workflowID); err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(SuccessResponse{
		Success: true,
		Message: "Workflow execution started",
	})
}

// cancelWorkflow handles DELETE /api/v1/workflows/:id
func (s *Server) cancelWorkflow(c *fiber.Ctx) error {
	if err := s.orch.Cancel(c.Context(), c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Workflow cancelled",
	})
}

// getWorkflowProgress handles GET /api/v1/workflows/:id/progress
func (s *Server) getWorkflowProgress(c *fiber.Ctx) error {
	p, err := s.progress.WorkflowProgress(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(p)
}

// listAwaitingApproval handles GET /api/v1/workflows/:id/tasks/awaiting-approval
func (s *Server) listAwaitingApproval(c *fiber.Ctx) error {
	tasks, err := s.orch.AwaitingApproval(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(AwaitingApprovalResponse{
		Tasks: tasks,
		Count: len(tasks),
	})
}

// approveTask handles POST /api/v1/workflows/:id/tasks/:taskId/approve
func (s *Server) approveTask(c *fiber.Ctx) error {
	var req ApproveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "Failed to parse request body: " + err.Error(),
			})
		}
	}

	task, err := s.orch.Approve(c.Params("id"), c.Params("taskId"), req.Payload)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(task)
}

// rejectTask handles POST /api/v1/workflows/:id/tasks/:taskId/reject
func (s *Server) rejectTask(c *fiber.Ctx) error {
	var req RejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "Failed to parse request body: " + err.Error(),
			})
		}
	}

	task, err := s.orch.Reject(c.Params("id"), c.Params("taskId"), req.Reason)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(task)
}
