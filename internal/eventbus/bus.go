// Package eventbus implements the Session Manager's event fan-out: a
// publish/subscribe bus where a slow subscriber is dropped after its bounded
// queue overflows rather than ever blocking the producer.
package eventbus

import (
	"sync"
	"time"
)

// Type identifies the kind of event published on the bus.
type Type string

const (
	StateChanged      Type = "state_changed"
	ToolCallStarted   Type = "tool_call_started"
	ToolCallFinished  Type = "tool_call_finished"
	DelegationStarted Type = "delegation_started"
	DelegationEnded   Type = "delegation_ended"
	AssistantText     Type = "assistant_text"
	UserInput         Type = "user_input"
	Overflow          Type = "overflow"
)

// Event is a single fact published to the bus.
type Event struct {
	Type      Type
	SessionID string
	Timestamp time.Time
	Payload   any
}

// DefaultQueueSize is the default bound on a subscriber's pending-event
// queue before it is dropped.
const DefaultQueueSize = 256

// Subscription is an opaque handle returned by Subscribe; pass it to
// Unsubscribe to stop receiving events.
type Subscription struct {
	id uint64
}

// subscriber owns a bounded channel drained by its own goroutine, so a slow
// consumer never makes Publish block; when the channel is full the event is
// dropped and the subscriber is torn down with one final Overflow event.
type subscriber struct {
	id       uint64
	queue    chan Event
	done     chan struct{}
	dropped  bool
	handler  func(Event)
}

// Bus is the in-process event bus: Publish never blocks, and delivery to
// each live subscriber preserves publish order (FIFO per subscriber).
type Bus struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	queueSize   int
}

// New creates an event bus whose subscriber queues hold up to queueSize
// events before an overflow drop. A queueSize <= 0 uses DefaultQueueSize.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		queueSize:   queueSize,
	}
}

// Subscribe registers handler to receive every event published after this
// call. handler is invoked from a dedicated goroutine per subscriber, so
// slow handlers only ever back up their own queue.
func (b *Bus) Subscribe(handler func(Event)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{
		id:      id,
		queue:   make(chan Event, b.queueSize),
		done:    make(chan struct{}),
		handler: handler,
	}
	b.subscribers[id] = sub
	go sub.run()
	return Subscription{id: id}
}

func (s *subscriber) run() {
	for {
		select {
		case ev, ok := <-s.queue:
			if !ok {
				return
			}
			s.handler(ev)
		case <-s.done:
			return
		}
	}
}

// Unsubscribe stops delivery to the subscription and releases its queue.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub.id)
}

func (b *Bus) removeLocked(id uint64) {
	s, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(s.done)
}

// Publish fans an event out to every live subscriber without ever blocking:
// a subscriber whose queue is full is dropped immediately after receiving a
// final Overflow event on a best-effort basis.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.queue <- ev:
		default:
			b.dropSubscriber(s, ev.SessionID)
		}
	}
}

// dropSubscriber removes an overflowing subscriber and, best-effort, lets it
// observe one final overflow notice so it knows to resubscribe.
func (b *Bus) dropSubscriber(s *subscriber, sessionID string) {
	b.mu.Lock()
	_, stillPresent := b.subscribers[s.id]
	if stillPresent {
		b.removeLocked(s.id)
	}
	b.mu.Unlock()

	if !stillPresent {
		return
	}
	notice := Event{Type: Overflow, SessionID: sessionID, Timestamp: time.Now()}
	go s.handler(notice)
}

// Close tears down the bus, releasing all subscriber goroutines.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.subscribers {
		b.removeLocked(id)
	}
}
