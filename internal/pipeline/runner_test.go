package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanevangelisti/watcher-sub003/internal/agent"
	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// stubAgent records invocations and optionally fails.
type stubAgent struct {
	typ string

	mu    sync.Mutex
	calls int
	fail  error
	delay time.Duration
}

func (s *stubAgent) Type() string { return s.typ }

func (s *stubAgent) Execute(ctx context.Context, inv *agent.Invocation) (*agent.Result, error) {
	s.mu.Lock()
	s.calls++
	fail, delay := s.fail, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fail != nil {
		return nil, fail
	}
	return &agent.Result{Doc: inv.Doc}, nil
}

func (s *stubAgent) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// memSource serves documents from memory.
type memSource struct {
	docs map[string]*agent.Document
}

func (m *memSource) ListPending(ctx context.Context) ([]*agent.Document, error) {
	out := make([]*agent.Document, 0, len(m.docs))
	for _, d := range m.docs {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memSource) Load(ctx context.Context, documentID string) (*agent.Document, error) {
	d, ok := m.docs[documentID]
	if !ok {
		return nil, types.NewError(types.ErrCodeNotFound, "document not found: %s", documentID)
	}
	cp := *d
	return &cp, nil
}

func stageStubs(t *testing.T) (*agent.Registry, map[string]*stubAgent) {
	t.Helper()
	registry := agent.NewRegistry()
	stubs := make(map[string]*stubAgent)
	for _, typ := range []string{
		agent.TypeExtract, agent.TypeClean, agent.TypeChunk, agent.TypeEnrich, agent.TypeIndex,
	} {
		stub := &stubAgent{typ: typ}
		stubs[typ] = stub
		require.NoError(t, registry.Register(stub))
	}
	return registry, stubs
}

func newTestRunner(t *testing.T, source DocumentSource, stubs func(map[string]*stubAgent)) (*Runner, *Tracker, *SessionManager) {
	t.Helper()
	registry, agents := stageStubs(t)
	if stubs != nil {
		stubs(agents)
	}
	tracker := NewTracker(nil)
	sessions := NewSessionManager(nil)
	runner := NewRunner(registry, tracker, sessions, source, nil, RunnerConfig{
		MaxConcurrent: 2,
		BatchDelay:    0,
		StageTimeout:  time.Second,
	})
	return runner, tracker, sessions
}

func TestRunner_ProcessDocumentAllStages(t *testing.T) {
	source := &memSource{docs: map[string]*agent.Document{
		"doc-1": {ID: "doc-1", Filename: "doc-1.txt", Text: "hello"},
	}}
	var stubs map[string]*stubAgent
	runner, tracker, _ := newTestRunner(t, source, func(m map[string]*stubAgent) { stubs = m })

	require.NoError(t, runner.ProcessDocument(context.Background(), "doc-1", nil))

	doc, err := tracker.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, types.StageCompleted, doc.Stage)

	for typ, stub := range stubs {
		assert.Equal(t, 1, stub.callCount(), "agent %s", typ)
	}
}

func TestRunner_ProcessDocumentUnknown(t *testing.T) {
	runner, _, _ := newTestRunner(t, &memSource{docs: map[string]*agent.Document{}}, nil)

	err := runner.ProcessDocument(context.Background(), "ghost", nil)
	assert.True(t, types.IsNotFound(err))
}

func TestRunner_StageFailureMarksDocumentFailed(t *testing.T) {
	source := &memSource{docs: map[string]*agent.Document{
		"doc-1": {ID: "doc-1", Filename: "doc-1.txt", Text: "hello"},
	}}
	runner, tracker, _ := newTestRunner(t, source, func(m map[string]*stubAgent) {
		m[agent.TypeChunk].fail = types.NewError(types.ErrCodeTaskFailure, "boom")
	})

	err := runner.ProcessDocument(context.Background(), "doc-1", nil)
	require.Error(t, err)

	doc, err := tracker.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, types.StageFailed, doc.Stage)
	assert.Contains(t, doc.Error, "boom")

	// Failure retains the stage at which the document failed.
	last := doc.History[len(doc.History)-1]
	assert.Contains(t, last.Details, string(types.StageChunking))
}

func TestRunner_StageTimeout(t *testing.T) {
	source := &memSource{docs: map[string]*agent.Document{
		"doc-1": {ID: "doc-1", Filename: "doc-1.txt", Text: "hello"},
	}}
	registry, stubs := stageStubs(t)
	stubs[agent.TypeExtract].delay = 5 * time.Second
	tracker := NewTracker(nil)
	runner := NewRunner(registry, tracker, NewSessionManager(nil), source, nil, RunnerConfig{
		MaxConcurrent: 1,
		StageTimeout:  50 * time.Millisecond,
	})

	err := runner.ProcessDocument(context.Background(), "doc-1", nil)
	require.Error(t, err)
	assert.True(t, types.IsTimeout(err))
}

func TestRunner_ProcessAllRunsSession(t *testing.T) {
	source := &memSource{docs: map[string]*agent.Document{
		"a": {ID: "a", Filename: "a.txt", Text: "x"},
		"b": {ID: "b", Filename: "b.txt", Text: "y"},
		"c": {ID: "c", Filename: "c.txt", Text: "z"},
	}}
	b := bus.New(16)
	defer b.Close()
	registry, _ := stageStubs(t)
	tracker := NewTracker(b)
	sessions := NewSessionManager(b)
	runner := NewRunner(registry, tracker, sessions, source, b, RunnerConfig{
		MaxConcurrent: 2,
		StageTimeout:  time.Second,
	})

	sub := b.Subscribe(types.EventSessionCompleted)
	defer sub.Close()

	session, err := runner.ProcessAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, session.Total)

	select {
	case <-sub.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not complete")
	}

	final := sessions.Last()
	require.NotNil(t, final)
	assert.Equal(t, types.SessionStatusCompleted, final.Status)
	assert.Equal(t, 3, final.Current)
	assert.Empty(t, final.Errors)

	for _, id := range []string{"a", "b", "c"} {
		doc, err := tracker.Get(id)
		require.NoError(t, err)
		assert.Equal(t, types.StageCompleted, doc.Stage)
	}
}

func TestRunner_SessionRecordsFailures(t *testing.T) {
	source := &memSource{docs: map[string]*agent.Document{
		"good": {ID: "good", Filename: "good.txt", Text: "x"},
		"bad":  {ID: "bad", Filename: "bad.txt", Text: "y"},
	}}
	b := bus.New(16)
	defer b.Close()

	// Enrichment fails only for the "bad" document.
	registry := agent.NewRegistry()
	for _, typ := range []string{agent.TypeExtract, agent.TypeClean, agent.TypeChunk, agent.TypeIndex} {
		require.NoError(t, registry.Register(&stubAgent{typ: typ}))
	}
	require.NoError(t, registry.Register(&conditionalAgent{
		typ:        agent.TypeEnrich,
		shouldFail: func(id string) bool { return id == "bad" },
	}))

	tracker := NewTracker(b)
	sessions := NewSessionManager(b)
	runner := NewRunner(registry, tracker, sessions, source, b, RunnerConfig{
		MaxConcurrent: 1,
		StageTimeout:  time.Second,
	})

	sub := b.Subscribe(types.EventSessionCompleted)
	defer sub.Close()

	_, err := runner.ProcessAll(context.Background(), nil)
	require.NoError(t, err)

	select {
	case <-sub.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not complete")
	}

	final := sessions.Last()
	require.NotNil(t, final)
	assert.Equal(t, types.SessionStatusCompleted, final.Status)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "bad", final.Errors[0].DocumentID)

	badDoc, err := tracker.Get("bad")
	require.NoError(t, err)
	assert.Equal(t, types.StageFailed, badDoc.Stage)
}

// conditionalAgent fails per document ID.
type conditionalAgent struct {
	typ        string
	shouldFail func(documentID string) bool
}

func (c *conditionalAgent) Type() string { return c.typ }

func (c *conditionalAgent) Execute(ctx context.Context, inv *agent.Invocation) (*agent.Result, error) {
	if c.shouldFail(inv.Doc.ID) {
		return nil, types.NewError(types.ErrCodeTaskFailure, "induced failure for %s", inv.Doc.ID)
	}
	return &agent.Result{Doc: inv.Doc}, nil
}
