package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// SessionManager enforces the system-wide exclusivity of "process all
// pending documents" runs. The lock is keyed on a fixed session
// resource, not on individual documents.
type SessionManager struct {
	mu     sync.Mutex
	active *types.Session
	bus    *bus.Bus
}

// NewSessionManager creates a session manager publishing on b.
// b may be nil in tests.
func NewSessionManager(b *bus.Bus) *SessionManager {
	return &SessionManager{bus: b}
}

// Begin starts a new exclusive session. It fails with SESSION_IN_USE
// while another session is active, leaving that session untouched.
func (m *SessionManager) Begin(total int, config map[string]any) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.Status == types.SessionStatusRunning {
		return nil, types.NewError(types.ErrCodeSessionInUse,
			"processing session %s is already active", m.active.SessionID)
	}

	m.active = &types.Session{
		SessionID: uuid.New().String(),
		Total:     total,
		Status:    types.SessionStatusRunning,
		Config:    config,
		StartedAt: time.Now(),
	}
	snapshot := m.active.Clone()

	if m.bus != nil {
		m.bus.Publish(types.NewEvent(types.EventSessionStarted, "pipeline", map[string]any{
			"session_id": snapshot.SessionID,
			"total":      snapshot.Total,
		}))
	}
	return snapshot, nil
}

// Progress advances the session's completed-document counter. The
// counter never decreases; stale updates below the current value are
// ignored.
func (m *SessionManager) Progress(sessionID string, current int) {
	m.mu.Lock()
	if m.active == nil || m.active.SessionID != sessionID {
		m.mu.Unlock()
		return
	}
	if current > m.active.Current {
		m.active.Current = current
	}
	if m.active.Current > m.active.Total {
		m.active.Current = m.active.Total
	}
	snapshot := m.active.Clone()
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(types.NewEvent(types.EventSessionProgress, "pipeline", map[string]any{
			"session_id": snapshot.SessionID,
			"current":    snapshot.Current,
			"total":      snapshot.Total,
		}))
	}
}

// RecordError attaches a per-document error to the session.
func (m *SessionManager) RecordError(sessionID, documentID, filename, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.SessionID != sessionID {
		return
	}
	m.active.Errors = append(m.active.Errors, types.SessionError{
		DocumentID: documentID,
		Filename:   filename,
		Error:      errMsg,
	})
}

// Finish closes the session with the given terminal status, releasing
// the exclusive lock.
func (m *SessionManager) Finish(sessionID string, status types.SessionStatus) {
	m.mu.Lock()
	if m.active == nil || m.active.SessionID != sessionID {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	m.active.Status = status
	m.active.FinishedAt = &now
	snapshot := m.active.Clone()
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(types.NewEvent(types.EventSessionCompleted, "pipeline", map[string]any{
			"session_id": snapshot.SessionID,
			"status":     string(status),
			"current":    snapshot.Current,
			"total":      snapshot.Total,
			"errors":     len(snapshot.Errors),
		}))
	}
}

// Active returns a copy of the currently running session, or nil.
func (m *SessionManager) Active() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.Status != types.SessionStatusRunning {
		return nil
	}
	return m.active.Clone()
}

// Last returns a copy of the most recent session regardless of status,
// or nil when no session has ever run.
func (m *SessionManager) Last() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	return m.active.Clone()
}
