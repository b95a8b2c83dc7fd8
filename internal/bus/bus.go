// Package bus is the Knowledge Bus: an in-process publish/
// subscribe hub for agent events (parse done, index dirty, query issued).
// Delivery is per-topic FIFO to every subscriber current at publish time;
// there is no persistence across process restarts. Each subscriber has
// its own buffered queue and delivery goroutine, so a slow handler only
// blocks the publisher once that subscriber's queue is full.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one message published to a topic.
type Event struct {
	ID        string
	Topic     string
	Payload   any
	Timestamp time.Time
}

// Handler receives events published to a topic it subscribed to.
type Handler func(Event)

// Subscription is returned by Subscribe so callers can unsubscribe later.
type Subscription struct {
	id    uint64
	topic string
	bus   *Bus
}

// Unsubscribe removes this handler from its topic.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.topic, s.id)
}

type subscriber struct {
	id      uint64
	handler Handler
	queue   chan Event
	done    chan struct{}
}

// Bus is a single-process, multi-topic pub/sub hub. Zero value is not
// usable; construct with New.
type Bus struct {
	mu      sync.RWMutex
	topics  map[string][]*subscriber
	nextID  uint64
	backlog int
}

// New creates a Bus whose per-subscriber delivery queue holds backlog
// pending events before Publish starts blocking on that subscriber
// (backlog<=0 uses a default of 256).
func New(backlog int) *Bus {
	if backlog <= 0 {
		backlog = 256
	}
	return &Bus{topics: make(map[string][]*subscriber), backlog: backlog}
}

// Subscribe registers handler to run (on its own delivery goroutine, not
// the publisher's goroutine) for every event published to topic from this
// point on, in publication order.
func (b *Bus) Subscribe(topic string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{
		id:      b.nextID,
		handler: handler,
		queue:   make(chan Event, b.backlog),
		done:    make(chan struct{}),
	}
	b.topics[topic] = append(b.topics[topic], sub)

	go func() {
		for {
			select {
			case ev, ok := <-sub.queue:
				if !ok {
					return
				}
				sub.handler(ev)
			case <-sub.done:
				return
			}
		}
	}()

	return &Subscription{id: sub.id, topic: topic, bus: b}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	for i, s := range subs {
		if s.id == id {
			close(s.done)
			b.topics[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every subscriber currently registered on topic,
// in FIFO order per topic. Publish does not wait for handlers to finish;
// it only enqueues onto each subscriber's delivery channel, so a handler
// running long (e.g. awaiting a Scheduler admission slot) blocks the
// publisher only while that subscriber's queue is full.
func (b *Bus) Publish(topic string, payload any) Event {
	ev := Event{ID: uuid.NewString(), Topic: topic, Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	subs := append([]*subscriber(nil), b.topics[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.queue <- ev:
		case <-s.done:
		}
	}
	return ev
}

// ClearTopic removes every subscriber from topic.
func (b *Bus) ClearTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.topics[topic] {
		close(s.done)
	}
	delete(b.topics, topic)
}

// Stats reports subscriber counts per topic, for get_bus_stats().
type Stats struct {
	Topics      int
	Subscribers map[string]int
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[string]int, len(b.topics))
	for topic, subs := range b.topics {
		counts[topic] = len(subs)
	}
	return Stats{Topics: len(b.topics), Subscribers: counts}
}

// Well-known topics published by the engine's agents.
const (
	TopicParseDone   = "parse.done"
	TopicIndexDirty  = "index.dirty"
	TopicQueryIssued = "query.issued"
)
