package pubsub

import (
	"context"
	"sync"
)

// EventType describes what happened to an ingestion.
type EventType string

const (
	Progress  EventType = "progress"
	Completed EventType = "completed"
	Failed    EventType = "failed"
)

// Terminal reports whether no further events follow for the same ingestion.
func (t EventType) Terminal() bool {
	return t == Completed || t == Failed
}

// Event wraps a typed payload with an event type.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// subscriberBufferSize is the channel buffer size for each subscriber.
const subscriberBufferSize = 64

// Broker fans events out to in-process subscribers. Delivery is best-effort:
// a subscriber that falls behind loses events rather than blocking publishers.
type Broker[T any] struct {
	mu   sync.RWMutex
	subs map[chan Event[T]]func(T) bool
}

// NewBroker creates a new Broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan Event[T]]func(T) bool),
	}
}

// Subscribe receives every event until ctx is cancelled, at which point the
// channel is closed and the subscription removed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	return b.SubscribeFunc(ctx, nil)
}

// SubscribeFunc is Subscribe restricted to payloads accepted by match.
// A nil match accepts everything.
func (b *Broker[T]) SubscribeFunc(ctx context.Context, match func(T) bool) <-chan Event[T] {
	ch := make(chan Event[T], subscriberBufferSize)

	b.mu.Lock()
	b.subs[ch] = match
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish broadcasts an event to all matching subscribers without blocking.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	evt := Event[T]{Type: eventType, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, match := range b.subs {
		if match != nil && !match(payload) {
			continue
		}
		select {
		case ch <- evt:
		default:
			// slow subscriber
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
