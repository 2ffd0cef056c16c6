package types

import "time"

// Event types published on the internal bus.
const (
	EventWorkflowStarted   = "workflow.started"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
	EventWorkflowCancelled = "workflow.cancelled"
	EventWorkflowProgress  = "workflow.progress"

	EventTaskStarted          = "task.started"
	EventTaskCompleted        = "task.completed"
	EventTaskFailed           = "task.failed"
	EventTaskCancelled        = "task.cancelled"
	EventTaskAwaitingApproval = "task.awaiting_approval"
	EventTaskApproved         = "task.approved"
	EventTaskRejected         = "task.rejected"

	EventDocumentStageChanged = "document.stage_changed"
	EventDocumentCompleted    = "document.completed"
	EventDocumentFailed       = "document.failed"

	EventSessionStarted   = "session.started"
	EventSessionProgress  = "session.progress"
	EventSessionCompleted = "session.completed"
)

// Event is an immutable value object distributed by the bus. Subscribers
// receive their own copy; the Data map must never be mutated after
// publication.
type Event struct {
	Type      string         `json:"type"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an event with the envelope type and timestamp set.
func NewEvent(eventType, source string, data map[string]any) Event {
	return Event{
		Type:      "event",
		EventType: eventType,
		Data:      data,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// CloneData returns a shallow copy of the event's data map.
func (e Event) CloneData() map[string]any {
	if e.Data == nil {
		return nil
	}
	cp := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		cp[k] = v
	}
	return cp
}
