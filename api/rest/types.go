package rest

import (
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// SuccessResponse acknowledges an operation with no payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse is the body of GET /ready.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// WorkflowSubmitRequest accepts a workflow either as structured JSON or
// as an embedded YAML document.
type WorkflowSubmitRequest struct {
	Workflow *types.Workflow `json:"workflow,omitempty"`
	YAML     string          `json:"yaml,omitempty"`
}

// WorkflowSubmitResponse is the body of POST /api/v1/workflows.
type WorkflowSubmitResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

// WorkflowListResponse is the body of GET /api/v1/workflows.
type WorkflowListResponse struct {
	Workflows []*types.Workflow `json:"workflows"`
	Count     int               `json:"count"`
}

// ApproveRequest carries an optional payload merged into the approved
// task's parameters.
type ApproveRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}

// RejectRequest carries the operator's rejection reason.
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AwaitingApprovalResponse lists tasks parked at their approval gate.
type AwaitingApprovalResponse struct {
	Tasks []*types.Task `json:"tasks"`
	Count int           `json:"count"`
}

// ProcessRequest optionally overrides the run configuration for a
// pipeline processing request.
type ProcessRequest struct {
	Config map[string]any `json:"config,omitempty"`
}

// ProcessAllResponse is the body of POST /api/v1/pipeline/process-all.
// The session runs asynchronously; its ID is the handle to poll.
type ProcessAllResponse struct {
	Session *types.Session `json:"session"`
	Status  string         `json:"status"`
}

// ResetResponse reports what a pipeline reset touched.
type ResetResponse struct {
	Success        bool `json:"success"`
	DocumentsReset int  `json:"documents_reset"`
}

// SearchResponse is the body of GET /api/v1/pipeline/search.
type SearchResponse struct {
	Query   string `json:"query"`
	Results any    `json:"results"`
	Count   int    `json:"count"`
}
