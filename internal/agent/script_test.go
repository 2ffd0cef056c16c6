package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

func runScript(t *testing.T, source, text string) (*Result, error) {
	t.Helper()
	agent := NewScriptAgent()
	return agent.Execute(context.Background(), &Invocation{
		Doc:    &Document{ID: "d", Filename: "d.txt", Text: text},
		Params: map[string]any{"source": source},
	})
}

func TestScriptAgent_CompletionValueReplacesText(t *testing.T) {
	res, err := runScript(t, `text.toUpperCase()`, "hola mundo")
	require.NoError(t, err)
	assert.Equal(t, "HOLA MUNDO", res.Doc.Text)
}

func TestScriptAgent_TransformFunction(t *testing.T) {
	res, err := runScript(t, `function transform(text) { return text.split(" ").reverse().join(" "); }`, "uno dos tres")
	require.NoError(t, err)
	assert.Equal(t, "tres dos uno", res.Doc.Text)
}

func TestScriptAgent_DocGlobal(t *testing.T) {
	res, err := runScript(t, `doc.id + ":" + text`, "body")
	require.NoError(t, err)
	assert.Equal(t, "d:body", res.Doc.Text)
}

func TestScriptAgent_NonStringResultKeepsText(t *testing.T) {
	res, err := runScript(t, `42`, "unchanged")
	require.NoError(t, err)
	assert.Equal(t, "unchanged", res.Doc.Text)
}

func TestScriptAgent_MissingSource(t *testing.T) {
	agent := NewScriptAgent()
	_, err := agent.Execute(context.Background(), &Invocation{
		Doc: &Document{ID: "d", Text: "x"},
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeConfig))
}

func TestScriptAgent_SyntaxError(t *testing.T) {
	_, err := runScript(t, `function {`, "x")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeTaskFailure))
}

func TestScriptAgent_ThrowIsTaskFailure(t *testing.T) {
	_, err := runScript(t, `throw new Error("boom")`, "x")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeTaskFailure))
	assert.Contains(t, err.Error(), "boom")
}

func TestScriptAgent_InterruptedOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	agent := NewScriptAgent()
	start := time.Now()
	_, err := agent.Execute(ctx, &Invocation{
		Doc:    &Document{ID: "d", Text: "x"},
		Params: map[string]any{"source": `while (true) {}`},
	})
	require.Error(t, err)
	assert.True(t, types.IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}
