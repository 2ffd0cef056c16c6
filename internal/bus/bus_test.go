package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

func receiveOne(t *testing.T, sub *Subscription) types.Event {
	t.Helper()
	select {
	case evt := <-sub.Events():
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return types.Event{}
	}
}

func TestNew(t *testing.T) {
	b := New(0)
	assert.NotNil(t, b)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBus_PublishToAllSubscribers(t *testing.T) {
	b := New(8)
	defer b.Close()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(types.NewEvent(types.EventTaskStarted, "test", map[string]any{"task_id": "t1"}))

	evt1 := receiveOne(t, sub1)
	evt2 := receiveOne(t, sub2)
	assert.Equal(t, types.EventTaskStarted, evt1.EventType)
	assert.Equal(t, types.EventTaskStarted, evt2.EventType)
}

func TestBus_SubscriberDataIsolation(t *testing.T) {
	b := New(8)
	defer b.Close()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Publish(types.NewEvent(types.EventTaskStarted, "test", map[string]any{"n": 1}))

	evt1 := receiveOne(t, sub1)
	evt2 := receiveOne(t, sub2)

	// Mutating one subscriber's payload must not leak into the other's.
	evt1.Data["n"] = 99
	assert.Equal(t, 1, evt2.Data["n"])
}

func TestBus_EventTypeFilter(t *testing.T) {
	b := New(8)
	defer b.Close()

	sub := b.Subscribe(types.EventTaskFailed)

	b.Publish(types.NewEvent(types.EventTaskStarted, "test", nil))
	b.Publish(types.NewEvent(types.EventTaskFailed, "test", nil))

	evt := receiveOne(t, sub)
	assert.Equal(t, types.EventTaskFailed, evt.EventType)
	assert.Empty(t, sub.Events())
}

func TestBus_SlowSubscriberDropsNotBlocks(t *testing.T) {
	b := New(2)
	defer b.Close()

	sub := b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Never read sub; publish more than the buffer holds.
		for i := 0; i < 10; i++ {
			b.Publish(types.NewEvent(types.EventTaskStarted, "test", map[string]any{"i": i}))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	published, dropped := b.Stats()
	assert.Equal(t, int64(10), published)
	assert.Equal(t, int64(8), dropped)

	// The first two events made it through in order.
	assert.Equal(t, 0, receiveOne(t, sub).Data["i"])
	assert.Equal(t, 1, receiveOne(t, sub).Data["i"])
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(8)
	defer b.Close()

	sub := b.Subscribe()
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())

	// Publishing after unsubscribe must not panic.
	b.Publish(types.NewEvent(types.EventTaskStarted, "test", nil))

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBus_SubscriptionCloseIsIdempotent(t *testing.T) {
	b := New(8)
	defer b.Close()

	sub := b.Subscribe()
	sub.Close()
	require.NotPanics(t, func() { sub.Close() })
}

func TestBus_CloseClosesAllSubscribers(t *testing.T) {
	b := New(8)

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	b.Close()

	_, open1 := <-sub1.Events()
	_, open2 := <-sub2.Events()
	assert.False(t, open1)
	assert.False(t, open2)

	// Publish after close is a no-op.
	require.NotPanics(t, func() {
		b.Publish(types.NewEvent(types.EventTaskStarted, "test", nil))
	})
}
