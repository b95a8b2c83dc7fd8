package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInFIFOOrder(t *testing.T) {
	b := New(0)
	var mu sync.Mutex
	var received []int
	done := make(chan struct{})

	b.Subscribe("topic", func(ev Event) {
		mu.Lock()
		received = append(received, ev.Payload.(int))
		if len(received) == 5 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Publish("topic", i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, received)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(0)
	var count int
	var mu sync.Mutex
	sub := b.Subscribe("topic", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	b.Publish("topic", 1)
	time.Sleep(20 * time.Millisecond)

	sub.Unsubscribe()
	b.Publish("topic", 2)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestClearTopicRemovesSubscribers(t *testing.T) {
	b := New(0)
	b.Subscribe("topic", func(Event) {})
	b.ClearTopic("topic")
	stats := b.Stats()
	require.Equal(t, 0, stats.Subscribers["topic"])
}
