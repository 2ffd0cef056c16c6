// Package client implements a typed Go client for the bulletin watcher
// REST API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/germanevangelisti/watcher-sub003/api/rest"
	"github.com/germanevangelisti/watcher-sub003/internal/progress"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Config holds the configuration for the API client.
type Config struct {
	// BaseURL is the base URL of the engine (e.g., "http://localhost:8080").
	BaseURL string

	// RequestTimeout is the timeout for HTTP requests.
	RequestTimeout time.Duration

	// PollInterval is the interval used by WaitForWorkflow.
	PollInterval time.Duration

	// ReconnectBackoff is the initial delay before redialing a dropped
	// event stream. It doubles per failed attempt up to
	// MaxReconnectBackoff and resets after a successful redial.
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:             "http://localhost:8080",
		RequestTimeout:      30 * time.Second,
		PollInterval:        250 * time.Millisecond,
		ReconnectBackoff:    250 * time.Millisecond,
		MaxReconnectBackoff: 5 * time.Second,
	}
}

// Client is the HTTP client for the engine API.
type Client struct {
	config *Config
	agent  *fiber.Client
}

// NewClient creates a new API client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.ReconnectBackoff <= 0 {
		config.ReconnectBackoff = DefaultConfig().ReconnectBackoff
	}
	if config.MaxReconnectBackoff < config.ReconnectBackoff {
		config.MaxReconnectBackoff = DefaultConfig().MaxReconnectBackoff
	}
	return &Client{
		config: config,
		agent:  fiber.AcquireClient(),
	}
}

// APIError is a non-2xx response decoded from the standard error body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsRetryableError reports whether an HTTP status indicates a transient
// failure worth retrying.
func IsRetryableError(statusCode int) bool {
	switch statusCode {
	case fiber.StatusServiceUnavailable,
		fiber.StatusGatewayTimeout,
		fiber.StatusBadGateway,
		fiber.StatusTooManyRequests,
		fiber.StatusRequestTimeout:
		return true
	}
	return false
}

// Health checks the engine health endpoint.
func (c *Client) Health() (*rest.HealthResponse, error) {
	var out rest.HealthResponse
	if err := c.get("/api/v1/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready checks the engine readiness endpoint.
func (c *Client) Ready() (*rest.ReadyResponse, error) {
	var out rest.ReadyResponse
	if err := c.get("/api/v1/ready", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitWorkflow submits a structured workflow and returns its assigned ID.
func (c *Client) SubmitWorkflow(wf *types.Workflow) (string, error) {
	var out rest.WorkflowSubmitResponse
	err := c.post("/api/v1/workflows", rest.WorkflowSubmitRequest{Workflow: wf}, &out, nil)
	if err != nil {
		return "", err
	}
	return out.WorkflowID, nil
}

// SubmitWorkflowYAML submits a workflow given as a YAML document.
func (c *Client) SubmitWorkflowYAML(yamlSource string) (string, error) {
	var out rest.WorkflowSubmitResponse
	err := c.post("/api/v1/workflows", rest.WorkflowSubmitRequest{YAML: yamlSource}, &out, nil)
	if err != nil {
		return "", err
	}
	return out.WorkflowID, nil
}

// Workflow returns the current snapshot of a workflow.
func (c *Client) Workflow(workflowID string) (*types.Workflow, error) {
	var out types.Workflow
	if err := c.get("/api/v1/workflows/"+url.PathEscape(workflowID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWorkflows returns snapshots of every known workflow.
func (c *Client) ListWorkflows() ([]*types.Workflow, error) {
	var out rest.WorkflowListResponse
	if err := c.get("/api/v1/workflows", &out); err != nil {
		return nil, err
	}
	return out.Workflows, nil
}

// Execute starts asynchronous execution of a workflow.
func (c *Client) Execute(workflowID string) error {
	return c.post("/api/v1/workflows/"+url.PathEscape(workflowID)+"/execute", nil, nil, nil)
}

// Cancel cancels a running workflow.
func (c *Client) Cancel(workflowID string) error {
	return c.do(fiber.MethodDelete, "/api/v1/workflows/"+url.PathEscape(workflowID), nil, nil, nil)
}

// Progress returns the derived progress of a workflow.
func (c *Client) Progress(workflowID string) (*progress.WorkflowProgress, error) {
	var out progress.WorkflowProgress
	if err := c.get("/api/v1/workflows/"+url.PathEscape(workflowID)+"/progress", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approvals lists the tasks of a workflow parked at their approval gate.
func (c *Client) Approvals(workflowID string) ([]*types.Task, error) {
	var out rest.AwaitingApprovalResponse
	if err := c.get("/api/v1/workflows/"+url.PathEscape(workflowID)+"/tasks/awaiting-approval", &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// Approve releases a task from its approval gate. The optional payload
// is merged into the task's parameters.
func (c *Client) Approve(workflowID, taskID string, payload map[string]any) (*types.Task, error) {
	path := fmt.Sprintf("/api/v1/workflows/%s/tasks/%s/approve",
		url.PathEscape(workflowID), url.PathEscape(taskID))
	var out types.Task
	if err := c.post(path, rest.ApproveRequest{Payload: payload}, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reject declines a task waiting for approval.
func (c *Client) Reject(workflowID, taskID, reason string) (*types.Task, error) {
	path := fmt.Sprintf("/api/v1/workflows/%s/tasks/%s/reject",
		url.PathEscape(workflowID), url.PathEscape(taskID))
	var out types.Task
	if err := c.post(path, rest.RejectRequest{Reason: reason}, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForWorkflow polls until the workflow reaches a terminal status or
// ctx ends.
func (c *Client) WaitForWorkflow(ctx context.Context, workflowID string) (*types.Workflow, error) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		wf, err := c.Workflow(workflowID)
		if err != nil {
			return nil, err
		}
		if wf.Status.Terminal() {
			return wf, nil
		}
		select {
		case <-ctx.Done():
			return wf, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PipelineStatus returns the pipeline-wide derived status.
func (c *Client) PipelineStatus() (*progress.PipelineStatus, error) {
	var out progress.PipelineStatus
	if err := c.get("/api/v1/pipeline/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Documents lists the tracked document states.
func (c *Client) Documents() ([]*types.DocumentState, error) {
	var out struct {
		Documents []*types.DocumentState `json:"documents"`
	}
	if err := c.get("/api/v1/pipeline/documents", &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Document returns the state of one tracked document.
func (c *Client) Document(documentID string) (*types.DocumentState, error) {
	var out types.DocumentState
	if err := c.get("/api/v1/pipeline/documents/"+url.PathEscape(documentID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessDocument runs one document through the pipeline and returns its
// final state.
func (c *Client) ProcessDocument(documentID string, config map[string]any) (*types.DocumentState, error) {
	var out types.DocumentState
	var body any
	if config != nil {
		body = rest.ProcessRequest{Config: config}
	}
	err := c.post("/api/v1/pipeline/process/"+url.PathEscape(documentID), body, &out, nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessAll starts a processing session over every pending document.
func (c *Client) ProcessAll(config map[string]any) (*types.Session, error) {
	var out rest.ProcessAllResponse
	var body any
	if config != nil {
		body = rest.ProcessRequest{Config: config}
	}
	if err := c.post("/api/v1/pipeline/process-all", body, &out, nil); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// CancelSession stops the active processing session.
func (c *Client) CancelSession() error {
	return c.post("/api/v1/pipeline/session/cancel", nil, nil, nil)
}

// ResetPipeline clears all pipeline and index state. The confirmation
// header is only sent when confirm is true; without it the engine
// refuses the call.
func (c *Client) ResetPipeline(confirm bool) (*rest.ResetResponse, error) {
	headers := map[string]string{}
	if confirm {
		headers["X-Confirm-Reset"] = "yes"
	}
	var out rest.ResetResponse
	if err := c.post("/api/v1/pipeline/reset", nil, &out, headers); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetDocument clears tracking and index state for one document.
func (c *Client) ResetDocument(documentID string) (*rest.ResetResponse, error) {
	var out rest.ResetResponse
	err := c.post("/api/v1/pipeline/reset/"+url.PathEscape(documentID), nil, &out, nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a full-text query over the indexed chunks.
func (c *Client) Search(query string, limit int) (*rest.SearchResponse, error) {
	path := "/api/v1/pipeline/search?q=" + url.QueryEscape(query)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	var out rest.SearchResponse
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

func (c *Client) get(path string, out any) error {
	return c.do(fiber.MethodGet, path, nil, out, nil)
}

func (c *Client) post(path string, body, out any, headers map[string]string) error {
	return c.do(fiber.MethodPost, path, body, out, headers)
}

func (c *Client) do(method, path string, body, out any, headers map[string]string) error {
	var req *fiber.Agent
	switch method {
	case fiber.MethodGet:
		req = c.agent.Get(c.config.BaseURL + path)
	case fiber.MethodPost:
		req = c.agent.Post(c.config.BaseURL + path)
	case fiber.MethodDelete:
		req = c.agent.Delete(c.config.BaseURL + path)
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	req.Timeout(c.config.RequestTimeout)

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		req.Body(raw)
		req.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Set(k, v)
	}

	statusCode, respBody, errs := req.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s %s: %w", method, path, errs[0])
	}

	if statusCode < 200 || statusCode > 299 {
		apiErr := &APIError{Status: statusCode, Message: string(respBody)}
		var errResp rest.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
