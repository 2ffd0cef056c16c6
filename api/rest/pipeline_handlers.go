package rest

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// pipelineStatus handles GET /api/v1/pipeline/status
func (s *Server) pipelineStatus(c *fiber.Ctx) error {
	return c.JSON(s.progress.PipelineStatus())
}

// listDocuments handles GET /api/v1/pipeline/documents
func (s *Server) listDocuments(c *fiber.Ctx) error {
	docs := s.tracker.Snapshot()
	return c.JSON(fiber.Map{
		"documents": docs,
		"count":     len(docs),
	})
}

// getDocument handles GET /api/v1/pipeline/documents/:id
func (s *Server) getDocument(c *fiber.Ctx) error {
	doc, err := s.tracker.Get(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(doc)
}

// processDocument handles POST /api/v1/pipeline/process/:id
func (s *Server) processDocument(c *fiber.Ctx) error {
	var req ProcessRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "Failed to parse request body: " + err.Error(),
			})
		}
	}

	if err := s.runner.ProcessDocument(c.Context(), c.Params("id"), req.Config); err != nil {
		return errorJSON(c, err)
	}
	doc, err := s.tracker.Get(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(doc)
}

// processAll handles POST /api/v1/pipeline/process-all
//
// The session is started asynchronously; the response carries the
// session handle clients poll or watch over the event stream.
func (s *Server) processAll(c *fiber.Ctx) error {
	var req ProcessRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "Failed to parse request body: " + err.Error(),
			})
		}
	}

	session, err := s.runner.ProcessAll(c.Context(), req.Config)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(ProcessAllResponse{
		Session: session,
		Status:  "started",
	})
}

// cancelSession handles POST /api/v1/pipeline/session/cancel
func (s *Server) cancelSession(c *fiber.Ctx) error {
	active := s.sessions.Active()
	if active == nil {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "invalid_state",
			Message: "No active processing session",
		})
	}
	s.runner.CancelSession()
	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Session cancellation requested",
	})
}

// resetPipeline handles POST /api/v1/pipeline/reset
//
// Destructive: requires the X-Confirm-Reset header to guard against
// accidental calls.
func (s *Server) resetPipeline(c *fiber.Ctx) error {
	if c.Get("X-Confirm-Reset") != "yes" {
		return c.Status(fiber.StatusPreconditionRequired).JSON(ErrorResponse{
			Error:   "confirmation_required",
			Message: "Set header 'X-Confirm-Reset: yes' to reset all pipeline state",
		})
	}

	count := s.tracker.ResetAll()
	if s.store != nil {
		if err := s.store.Reset(c.Context()); err != nil {
			return errorJSON(c, err)
		}
	}
	return c.JSON(ResetResponse{
		Success:        true,
		DocumentsReset: count,
	})
}

// resetDocument handles POST /api/v1/pipeline/reset/:id
func (s *Server) resetDocument(c *fiber.Ctx) error {
	documentID := c.Params("id")
	if err := s.runner.Reset(c.Context(), documentID); err != nil {
		return errorJSON(c, err)
	}
	if s.store != nil {
		if err := s.store.DeleteDocument(c.Context(), documentID); err != nil {
			return errorJSON(c, err)
		}
	}
	return c.JSON(ResetResponse{
		Success:        true,
		DocumentsReset: 1,
	})
}

// searchIndex handles GET /api/v1/pipeline/search?q=...&limit=...
func (s *Server) searchIndex(c *fiber.Ctx) error {
	if s.store == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "index_disabled",
			Message: "Search index is not configured",
		})
	}

	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Query parameter 'q' is required",
		})
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "Query parameter 'limit' must be a positive integer",
			})
		}
		limit = n
	}

	results, err := s.store.Search(c.Context(), query, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(SearchResponse{
		Query:   query,
		Results: results,
		Count:   len(results),
	})
}
