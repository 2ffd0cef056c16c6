package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// EventStream is a live subscription to the engine's /ws endpoint. A
// dropped connection is redialed with capped exponential backoff and
// the subscription is re-sent; only ctx or Close ends the stream.
type EventStream struct {
	client     *Client
	eventTypes []string
	ctx        context.Context
	cancel     context.CancelFunc
	events     chan types.Event

	mu   sync.Mutex
	conn *websocket.Conn
}

// subscribeFrame narrows the server-side subscription.
type subscribeFrame struct {
	Action     string   `json:"action"`
	EventTypes []string `json:"event_types,omitempty"`
}

// StreamEvents opens the WebSocket event stream. With no eventTypes the
// stream carries every engine event; otherwise the server is asked to
// narrow the subscription. The initial dial must succeed; after that
// the stream survives connection drops by reconnecting.
func (c *Client) StreamEvents(ctx context.Context, eventTypes ...string) (*EventStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &EventStream{
		client:     c,
		eventTypes: eventTypes,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan types.Event, 16),
	}

	conn, err := s.dial()
	if err != nil {
		cancel()
		return nil, err
	}
	s.setConn(conn)

	go s.run(conn)
	return s, nil
}

// Events returns the channel of incoming events. It is closed when the
// stream ends.
func (s *EventStream) Events() <-chan types.Event {
	return s.events
}

// Close terminates the stream.
func (s *EventStream) Close() error {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// dial opens a fresh connection and replays the subscribe frame.
func (s *EventStream) dial() (*websocket.Conn, error) {
	wsURL := toWebSocketURL(s.client.config.BaseURL) + "/ws"

	conn, err := websocket.Dial(wsURL, "", s.client.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", wsURL, err)
	}

	if len(s.eventTypes) > 0 {
		frame, _ := json.Marshal(subscribeFrame{Action: "subscribe", EventTypes: s.eventTypes})
		if err := websocket.Message.Send(conn, string(frame)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("send subscribe frame: %w", err)
		}
	}
	return conn, nil
}

func (s *EventStream) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// run pumps events from the current connection and redials when it
// drops. Each failed redial doubles the delay up to the configured cap;
// a successful one resets it.
func (s *EventStream) run(conn *websocket.Conn) {
	defer close(s.events)

	go func() {
		<-s.ctx.Done()
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	}()

	backoff := s.client.config.ReconnectBackoff
	for {
		s.readConn(conn)
		conn.Close()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}

			next, err := s.dial()
			if err != nil {
				backoff *= 2
				if backoff > s.client.config.MaxReconnectBackoff {
					backoff = s.client.config.MaxReconnectBackoff
				}
				continue
			}
			if s.ctx.Err() != nil {
				next.Close()
				return
			}
			conn = next
			s.setConn(next)
			backoff = s.client.config.ReconnectBackoff
			break
		}
	}
}

// readConn delivers events from one connection until it fails.
func (s *EventStream) readConn(conn *websocket.Conn) {
	for {
		var raw string
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			return
		}
		var evt types.Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			continue
		}
		// Subscription acks and other control frames carry no event type.
		if evt.EventType == "" {
			continue
		}
		select {
		case s.events <- evt:
		case <-s.ctx.Done():
			return
		}
	}
}

func toWebSocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return "ws://" + baseURL
}
