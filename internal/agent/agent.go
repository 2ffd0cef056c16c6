// Package agent provides the closed set of task handlers the scheduler
// dispatches to: the document pipeline stages, the LLM-backed analyzer
// agents and the script transform. Agents are registered once at
// process start; workflow validation rejects any task whose type has no
// registered agent.
package agent

import (
	"context"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Built-in agent types.
const (
	TypeExtract = "extract"
	TypeClean   = "clean"
	TypeChunk   = "chunk"
	TypeEnrich  = "enrich"
	TypeIndex   = "index"
	TypeAnalyze = "analyze"
	TypeAnomaly = "anomaly_analysis"
	TypeScript  = "script"
)

// Agent executes one task type.
type Agent interface {
	// Type returns the agent type identifier.
	Type() string

	// Execute runs the agent against the invocation and returns the
	// result. Agent errors are returned as coded errors; the scheduler
	// records them on the task rather than raising them to the caller.
	Execute(ctx context.Context, inv *Invocation) (*Result, error)
}

// Invocation carries everything an agent needs for one dispatch.
type Invocation struct {
	// Task is the workflow task being executed. Nil for direct pipeline
	// dispatches.
	Task *types.Task

	// Doc is the document artifact flowing through the pipeline stages.
	// Stage agents mutate and return it via Result.Doc.
	Doc *Document

	// Params are the task parameters (or the direct-dispatch parameters).
	Params map[string]any

	// Config is the workflow- or session-level run configuration,
	// sectioned per stage ("cleaning", "chunking", ...).
	Config map[string]any
}

// Result is the outcome of one agent dispatch.
type Result struct {
	// Output is the agent-specific result recorded on the task.
	Output any

	// Doc is the (possibly replaced) document artifact.
	Doc *Document
}

// Document is the artifact processed by the pipeline stages.
type Document struct {
	ID       string         `json:"id"`
	Filename string         `json:"filename"`
	Text     string         `json:"text,omitempty"`
	Chunks   []Chunk        `json:"chunks,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Chunk is one indexable fragment of a document.
type Chunk struct {
	ID   string         `json:"id"`
	Seq  int            `json:"seq"`
	Text string         `json:"text"`
	Meta map[string]any `json:"meta,omitempty"`
}

// SetMeta records a metadata value, allocating the map on first use.
func (d *Document) SetMeta(key string, value any) {
	if d.Meta == nil {
		d.Meta = make(map[string]any)
	}
	d.Meta[key] = value
}

// docFromInvocation resolves the document artifact for a stage agent.
// Direct pipeline dispatches carry it on the invocation; workflow tasks
// carry document_id/filename/text in their parameters.
func docFromInvocation(inv *Invocation) (*Document, error) {
	if inv.Doc != nil {
		return inv.Doc, nil
	}
	doc := &Document{}
	if id, ok := inv.Params["document_id"].(string); ok {
		doc.ID = id
	}
	if fn, ok := inv.Params["filename"].(string); ok {
		doc.Filename = fn
	}
	if text, ok := inv.Params["text"].(string); ok {
		doc.Text = text
	}
	if doc.ID == "" && doc.Text == "" {
		return nil, types.NewError(types.ErrCodeConfig,
			"invocation carries neither a document nor document parameters")
	}
	return doc, nil
}

// section returns the named sub-map of a run configuration, or an empty
// map when absent.
func section(config map[string]any, name string) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	if m, ok := config[name].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func boolOpt(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func intOpt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func strOpt(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}
