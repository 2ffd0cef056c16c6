package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

func TestSessionManager_BeginIsExclusive(t *testing.T) {
	m := NewSessionManager(nil)

	first, err := m.Begin(5, nil)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusRunning, first.Status)

	_, err = m.Begin(3, nil)
	require.Error(t, err)
	assert.True(t, types.IsSessionInUse(err))

	// The rejected attempt must not disturb the active session.
	active := m.Active()
	require.NotNil(t, active)
	assert.Equal(t, first.SessionID, active.SessionID)
	assert.Equal(t, 5, active.Total)
}

func TestSessionManager_BeginAfterFinish(t *testing.T) {
	m := NewSessionManager(nil)

	first, err := m.Begin(2, nil)
	require.NoError(t, err)
	m.Finish(first.SessionID, types.SessionStatusCompleted)
	assert.Nil(t, m.Active())

	second, err := m.Begin(4, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestSessionManager_ProgressIsMonotonic(t *testing.T) {
	m := NewSessionManager(nil)
	s, err := m.Begin(10, nil)
	require.NoError(t, err)

	m.Progress(s.SessionID, 3)
	m.Progress(s.SessionID, 2) // stale update, ignored
	assert.Equal(t, 3, m.Active().Current)

	m.Progress(s.SessionID, 50) // clamped to total
	assert.Equal(t, 10, m.Active().Current)
}

func TestSessionManager_ProgressIgnoresUnknownSession(t *testing.T) {
	m := NewSessionManager(nil)
	s, err := m.Begin(10, nil)
	require.NoError(t, err)

	m.Progress("other-session", 7)
	assert.Equal(t, 0, m.Active().Current)
	m.Progress(s.SessionID, 1)
	assert.Equal(t, 1, m.Active().Current)
}

func TestSessionManager_RecordError(t *testing.T) {
	m := NewSessionManager(nil)
	s, err := m.Begin(2, nil)
	require.NoError(t, err)

	m.RecordError(s.SessionID, "doc-1", "doc-1.txt", "analyzer timeout")
	m.Finish(s.SessionID, types.SessionStatusCompleted)

	last := m.Last()
	require.NotNil(t, last)
	require.Len(t, last.Errors, 1)
	assert.Equal(t, "doc-1", last.Errors[0].DocumentID)
	assert.Equal(t, "analyzer timeout", last.Errors[0].Error)
}

func TestSessionManager_LastSurvivesFinish(t *testing.T) {
	m := NewSessionManager(nil)
	assert.Nil(t, m.Last())

	s, err := m.Begin(1, nil)
	require.NoError(t, err)
	m.Progress(s.SessionID, 1)
	m.Finish(s.SessionID, types.SessionStatusCancelled)

	last := m.Last()
	require.NotNil(t, last)
	assert.Equal(t, types.SessionStatusCancelled, last.Status)
	assert.NotNil(t, last.FinishedAt)
	assert.Nil(t, m.Active())
}
