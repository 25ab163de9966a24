package eventbus

import (
	"context"
	"sync"

	"github.com/monoco-dev/fabric/pkg/fault"
)

// Handler receives a published Event. A Handler that returns an error
// is treated the same as one that panics with that error: the bus
// records it via fault and continues delivering to the remaining
// subscribers.
type Handler func(ctx context.Context, event Event) error

// subscription pairs a handler with an identity token so Unsubscribe
// can find it again; Go has no stable function-value equality, unlike
// Python's bound-method comparison the original relies on.
type subscription struct {
	id      int
	handler Handler
}

// Bus is a typed, in-process publish/subscribe dispatcher. Subscribers
// register per event type; Publish delivers to all live subscribers
// for that type in registration order. Delivery is synchronous and
// single-writer: Publish does not return until every subscriber has
// been invoked, matching the "awaiting async handlers" semantics of
// the event bus this is adapted from. There is no persistence and no
// cross-process fan-out.
type Bus struct {
	mu          sync.Mutex
	subscribers map[EventType][]subscription
	nextID      int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[EventType][]subscription)}
}

// Subscription is an opaque handle returned by Subscribe, passed back
// to Unsubscribe.
type Subscription struct {
	eventType EventType
	id        int
}

// Subscribe registers handler for eventType, appended after any
// existing subscribers for that type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})

	return Subscription{eventType: eventType, id: id}
}

// Unsubscribe removes a previously returned Subscription. Unsubscribing
// an already-removed or unknown Subscription is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscribers[sub.eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of live subscribers for eventType,
// chiefly useful in tests.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscribers[eventType])
}

// Publish delivers event to every subscriber registered for event.Type,
// in registration order. A subscriber's error (including a recovered
// panic) is isolated into errs and does not prevent delivery to the
// remaining subscribers. The returned *fault.Bus is always non-nil;
// callers that don't care about partial failures may ignore it.
func (b *Bus) Publish(ctx context.Context, event Event) *fault.Bus {
	b.mu.Lock()
	subs := make([]subscription, len(b.subscribers[event.Type]))
	copy(subs, b.subscribers[event.Type])
	b.mu.Unlock()

	errs := fault.New(false)

	for _, sub := range subs {
		b.invoke(ctx, sub, event, errs)
	}

	return errs
}

func (b *Bus) invoke(ctx context.Context, sub subscription, event Event, errs *fault.Bus) {
	defer func() {
		if r := recover(); r != nil {
			errs.AddRecoverable(ctx, panicToError(r))
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		errs.AddRecoverable(ctx, err)
	}
}
