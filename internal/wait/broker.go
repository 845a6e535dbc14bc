package wait

import (
	"log/slog"
	"sync"

	"github.com/opcoord/opcoord/internal/core"
)

// subscription is a single subscriber channel with its filter.
type subscription struct {
	ch     chan *core.CoordinatorEvent
	filter func(*core.CoordinatorEvent) bool
	once   sync.Once
}

// close shuts the channel at most once. Both unsubscribe and Broker.Close may
// race to close it at shutdown.
func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broker implements core.EventPublisher and core.EventSubscriber with
// in-memory fan-out, backing the SSE stream.
type Broker struct {
	mu        sync.RWMutex
	subs      map[*subscription]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker creates a new in-memory Broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[*subscription]struct{}),
		done: make(chan struct{}),
	}
}

// Publish delivers an event to all matching subscribers. Slow subscribers
// drop events rather than block the publishing path.
func (b *Broker) Publish(event *core.CoordinatorEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.filter == nil || sub.filter(event) {
			select {
			case sub.ch <- event:
			default:
				slog.Warn("dropping event, subscriber channel full",
					"event", event.EventType, "session_id", event.SessionID)
			}
		}
	}
	return nil
}

// SubscribeKey subscribes to events for one correlation key.
func (b *Broker) SubscribeKey(correlationKey string) (<-chan *core.CoordinatorEvent, func(), error) {
	return b.subscribe(func(e *core.CoordinatorEvent) bool {
		return e.CorrelationKey == correlationKey
	})
}

// SubscribeAll subscribes to every event.
func (b *Broker) SubscribeAll() (<-chan *core.CoordinatorEvent, func(), error) {
	return b.subscribe(nil)
}

func (b *Broker) subscribe(filter func(*core.CoordinatorEvent) bool) (<-chan *core.CoordinatorEvent, func(), error) {
	ch := make(chan *core.CoordinatorEvent, 64)
	sub := &subscription{ch: ch, filter: filter}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, sub)
		sub.close()
		b.mu.Unlock()
	}
	return ch, unsubscribe, nil
}

// Close shuts down the broker and removes all subscriptions. Idempotent, and
// safe against subscribers that unsubscribe afterwards.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.mu.Lock()
		for sub := range b.subs {
			sub.close()
		}
		b.subs = make(map[*subscription]struct{})
		b.mu.Unlock()
	})
	return nil
}
