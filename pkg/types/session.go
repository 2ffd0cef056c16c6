package types

import "time"

// SessionStatus represents the lifecycle state of a processing session.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// SessionError records one document that failed inside a session.
type SessionError struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Error      string `json:"error"`
}

// Session represents one exclusive "process all pending documents" run.
// At most one session is active system-wide at any time.
type Session struct {
	SessionID  string         `json:"session_id"`
	Total      int            `json:"total"`
	Current    int            `json:"current"`
	Status     SessionStatus  `json:"status"`
	Config     map[string]any `json:"config,omitempty"`
	Errors     []SessionError `json:"errors,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Errors = append([]SessionError(nil), s.Errors...)
	if s.Config != nil {
		cp.Config = make(map[string]any, len(s.Config))
		for k, v := range s.Config {
			cp.Config[k] = v
		}
	}
	if s.FinishedAt != nil {
		finished := *s.FinishedAt
		cp.FinishedAt = &finished
	}
	return &cp
}
