// Package bus provides the in-process publish/subscribe channel that
// distributes engine events to transport adapters and internal consumers.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// DefaultBufferSize is the per-subscriber event buffer used when the
// caller does not specify one.
const DefaultBufferSize = 64

// Bus fans events out to subscribers. Publish never blocks: a slow
// subscriber whose buffer is full loses events rather than applying
// backpressure to the publisher. Delivery is at-most-once per
// subscriber and preserves publish order within each subscriber.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	bufSize int
	closed  bool

	published atomic.Int64
	dropped   atomic.Int64
}

// New creates a bus with the given per-subscriber buffer size.
// A non-positive size falls back to DefaultBufferSize.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subs:    make(map[uint64]*Subscription),
		bufSize: bufferSize,
	}
}

// Subscription is a cancellable handle on the event stream.
type Subscription struct {
	id        uint64
	bus       *Bus
	eventSet  map[string]struct{} // empty means all events
	ch        chan types.Event
	closeOnce sync.Once
}

// Subscribe registers a subscriber for the given event types. An empty
// list subscribes to every event.
func (b *Bus) Subscribe(eventTypes ...string) *Subscription {
	set := make(map[string]struct{}, len(eventTypes))
	for _, et := range eventTypes {
		if et != "" {
			set[et] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:       b.nextID,
		bus:      b,
		eventSet: set,
		ch:       make(chan types.Event, b.bufSize),
	}
	if !b.closed {
		b.subs[sub.id] = sub
	} else {
		close(sub.ch)
	}
	return sub
}

// Publish delivers the event to every matching subscriber. It is
// fire-and-forget: full subscriber buffers drop the event.
func (b *Bus) Publish(evt types.Event) {
	if evt.Type == "" {
		evt.Type = "event"
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subs {
		if !sub.matches(evt.EventType) {
			continue
		}
		// Each subscriber gets its own copy of the payload.
		cp := evt
		cp.Data = evt.CloneData()
		select {
		case sub.ch <- cp:
		default:
			b.dropped.Add(1)
			logger.Debug("bus: dropping %s for slow subscriber %d", evt.EventType, sub.id)
		}
	}
}

// Close shuts down the bus and all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats returns the number of events published and dropped since start.
func (b *Bus) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}

func (s *Subscription) matches(eventType string) bool {
	if len(s.eventSet) == 0 {
		return true
	}
	_, ok := s.eventSet[eventType]
	return ok
}

// Events returns the subscriber's receive channel. The channel is
// closed when the subscription or the bus is closed.
func (s *Subscription) Events() <-chan types.Event {
	return s.ch
}

// Close cancels the subscription and closes its channel.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		if _, ok := s.bus.subs[s.id]; ok {
			delete(s.bus.subs, s.id)
			close(s.ch)
		}
		s.bus.mu.Unlock()
	})
}
