package rest

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"golang.org/x/net/websocket"

	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
)

// EventStreamer fans engine events out to WebSocket clients. Each
// connection holds its own bus subscription, so a slow client only
// ever loses its own events.
type EventStreamer struct {
	bus *bus.Bus

	connections map[*websocket.Conn]bool
	mu          sync.RWMutex
}

// NewEventStreamer creates an event streamer over the bus.
func NewEventStreamer(b *bus.Bus) *EventStreamer {
	return &EventStreamer{
		bus:         b,
		connections: make(map[*websocket.Conn]bool),
	}
}

// clientFrame is a control message sent by the client. Frames with an
// unknown action are ignored.
type clientFrame struct {
	Action     string   `json:"action"`
	EventTypes []string `json:"event_types,omitempty"`
}

// ackFrame acknowledges a subscription change.
type ackFrame struct {
	Type       string   `json:"type"`
	EventTypes []string `json:"event_types,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// setupWebSocketRoutes sets up the event stream endpoint.
func (s *Server) setupWebSocketRoutes() {
	streamer := NewEventStreamer(s.bus)

	s.app.Get("/ws", adaptor.HTTPHandler(
		websocket.Handler(func(ws *websocket.Conn) {
			streamer.handleConnection(ws)
		}),
	))
}

// handleConnection serves one WebSocket client until it disconnects.
// The client starts subscribed to every event type and can narrow the
// set with a subscribe frame.
func (es *EventStreamer) handleConnection(ws *websocket.Conn) {
	defer ws.Close()

	es.register(ws)
	defer es.unregister(ws)

	sub := es.bus.Subscribe()
	// sub is swapped on resubscribe; close whichever is current on exit.
	defer func() { sub.Close() }()

	// resubscribe swaps the active subscription when the client sends
	// a subscribe frame.
	resubscribe := make(chan []string, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var raw string
			if err := websocket.Message.Receive(ws, &raw); err != nil {
				return
			}
			var frame clientFrame
			if err := json.Unmarshal([]byte(raw), &frame); err != nil {
				continue
			}
			if frame.Action != "subscribe" {
				continue
			}
			select {
			case resubscribe <- frame.EventTypes:
			default:
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case eventTypes := <-resubscribe:
			sub.Close()
			sub = es.bus.Subscribe(eventTypes...)
			ack := ackFrame{
				Type:       "subscribed",
				EventTypes: eventTypes,
				Timestamp:  time.Now().Format(time.RFC3339),
			}
			data, _ := json.Marshal(ack)
			if err := websocket.Message.Send(ws, string(data)); err != nil {
				return
			}
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				logger.Warn("failed to marshal event %s: %v", evt.EventType, err)
				continue
			}
			if err := websocket.Message.Send(ws, string(data)); err != nil {
				return
			}
		}
	}
}

// register tracks a connection.
func (es *EventStreamer) register(ws *websocket.Conn) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.connections[ws] = true
}

// unregister drops a connection.
func (es *EventStreamer) unregister(ws *websocket.Conn) {
	es.mu.Lock()
	defer es.mu.Unlock()
	delete(es.connections, ws)
}

// ConnectionCount returns the number of connected clients.
func (es *EventStreamer) ConnectionCount() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.connections)
}
