package agent

import (
	"context"
	"time"

	"github.com/dop251/goja"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// ScriptAgent evaluates a user-supplied JavaScript transform against
// the document text. The script receives `text` and `doc` globals and
// must evaluate to the replacement text (or define a transform(text)
// function). Scripts run in a fresh interpreter per dispatch with a
// hard interrupt on context cancellation.
type ScriptAgent struct{}

// NewScriptAgent creates the script agent.
func NewScriptAgent() *ScriptAgent { return &ScriptAgent{} }

// Type implements Agent.
func (a *ScriptAgent) Type() string { return TypeScript }

// Execute implements Agent.
func (a *ScriptAgent) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	source := strOpt(inv.Params, "source", "")
	if source == "" {
		return nil, types.NewError(types.ErrCodeConfig, "script task requires a 'source' parameter")
	}
	doc, err := docFromInvocation(inv)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := vm.Set("text", doc.Text); err != nil {
		return nil, types.WrapError(types.ErrCodeTaskFailure, err, "script setup")
	}
	if err := vm.Set("doc", map[string]any{
		"id":       doc.ID,
		"filename": doc.Filename,
		"meta":     doc.Meta,
	}); err != nil {
		return nil, types.WrapError(types.ErrCodeTaskFailure, err, "script setup")
	}

	// Interrupt the interpreter when the dispatch context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	value, err := vm.RunString(source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.WrapError(types.ErrCodeTimeout, ctx.Err(), "script interrupted")
		}
		return nil, types.WrapError(types.ErrCodeTaskFailure, err, "script evaluation")
	}

	// A transform(text) function takes precedence over the script's own
	// completion value.
	if fn, ok := goja.AssertFunction(vm.Get("transform")); ok {
		value, err = fn(goja.Undefined(), vm.ToValue(doc.Text))
		if err != nil {
			if ctx.Err() != nil {
				return nil, types.WrapError(types.ErrCodeTimeout, ctx.Err(), "script interrupted")
			}
			return nil, types.WrapError(types.ErrCodeTaskFailure, err, "script transform")
		}
	}

	out := value.Export()
	if s, ok := out.(string); ok && s != "" {
		doc.Text = s
	}

	return &Result{
		Output: map[string]any{"evaluated_at": time.Now().Format(time.RFC3339)},
		Doc:    doc,
	}, nil
}
