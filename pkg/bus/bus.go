package bus

import (
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// ErrInvalidEvent is returned by Publish for a malformed event. Malformed
// events never enter history and never reach subscribers.
var ErrInvalidEvent = errors.New("invalid event")

const historyCapacity = 1000

// Subscriber receives one published event. Subscribers run synchronously on
// the publisher's goroutine; a panicking subscriber is recovered and logged
// without interrupting delivery to the others.
type Subscriber func(Event)

type subscription struct {
	key uintptr
	fn  Subscriber
}

// Bus is an in-process publish/subscribe hub. It keeps per-type subscriber
// lists, a wildcard subscriber list invoked after the typed ones, and a
// bounded FIFO history of published events.
//
// A Bus is safe for concurrent use; construct one with New and hand it to
// every component that needs it.
type Bus struct {
	log *slog.Logger

	mu          sync.Mutex
	subscribers map[Type][]subscription
	wildcards   []subscription

	history      []Record // ring buffer
	historyHead  int      // next write position
	historyCount int

	watchers      map[uint64]chan Event
	nextWatcherID uint64
	closed        bool
	done          chan struct{}
	closeOnce     sync.Once
}

// New constructs an empty bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}

	return &Bus{
		log:         log.With("component", "bus"),
		subscribers: make(map[Type][]subscription),
		history:     make([]Record, historyCapacity),
		watchers:    make(map[uint64]chan Event),
		done:        make(chan struct{}),
	}
}

// Subscribe registers fn for events of the given type. Subscribers are
// invoked in registration order. Subscribing the same function to the same
// type twice is a no-op.
func (b *Bus) Subscribe(eventType Type, fn Subscriber) {
	if fn == nil {
		return
	}

	sub := subscription{key: callbackKey(fn), fn: fn}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.subscribers[eventType] {
		if existing.key == sub.key {
			return
		}
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers fn as a wildcard subscriber, invoked for every
// event after the typed subscribers. Duplicate registration is a no-op.
func (b *Bus) SubscribeAll(fn Subscriber) {
	if fn == nil {
		return
	}

	sub := subscription{key: callbackKey(fn), fn: fn}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.wildcards {
		if existing.key == sub.key {
			return
		}
	}
	b.wildcards = append(b.wildcards, sub)
}

// Unsubscribe removes fn from the given type lists. With no types it removes
// fn from every typed list and from the wildcard list.
func (b *Bus) Unsubscribe(fn Subscriber, types ...Type) {
	if fn == nil {
		return
	}

	key := callbackKey(fn)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(types) == 0 {
		for eventType, subs := range b.subscribers {
			b.subscribers[eventType] = removeKey(subs, key)
		}
		b.wildcards = removeKey(b.wildcards, key)
		return
	}

	for _, eventType := range types {
		b.subscribers[eventType] = removeKey(b.subscribers[eventType], key)
	}
}

// Publish validates the event, records it in history, and delivers it to
// every subscriber registered for its type (in registration order) followed
// by every wildcard subscriber (in registration order). Delivery always
// completes for the remaining subscribers regardless of individual failures.
func (b *Bus) Publish(event Event) error {
	if event.Type == "" {
		return ErrInvalidEvent
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.Lock()
	b.appendHistory(event)

	typed := make([]subscription, len(b.subscribers[event.Type]))
	copy(typed, b.subscribers[event.Type])
	wild := make([]subscription, len(b.wildcards))
	copy(wild, b.wildcards)

	// Watcher channels are closed under this same lock, so the non-blocking
	// sends stay inside it.
	for _, ch := range b.watchers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow watchers.
		}
	}
	b.mu.Unlock()

	b.log.Debug("Publishing event", "event_type", event.Type, "source", event.Source)

	for _, sub := range typed {
		b.deliver(sub, event, false)
	}
	for _, sub := range wild {
		b.deliver(sub, event, true)
	}

	return nil
}

// deliver invokes one subscriber, isolating any panic so a faulty listener
// cannot interrupt delivery to the rest.
func (b *Bus) deliver(sub subscription, event Event, wildcard bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Subscriber failed",
				"event_type", event.Type,
				"event_id", event.ID,
				"source", event.Source,
				"wildcard", wildcard,
				"panic", r,
			)
		}
	}()

	sub.fn(event)
}

// History returns up to limit of the most recent records, most recent last.
// A non-positive limit returns the full retained history. The history itself
// is not mutated.
func (b *Bus) History(limit int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.historyCount
	if limit > 0 && limit < count {
		count = limit
	}

	out := make([]Record, 0, count)
	start := b.historyHead - count
	if start < 0 {
		start += historyCapacity
	}
	for i := 0; i < count; i++ {
		out = append(out, b.history[(start+i)%historyCapacity])
	}

	return out
}

// Close shuts the bus down, closing all watcher channels. Further Watch
// calls return a closed channel; Publish keeps working for callback
// subscribers so shutdown events still reach them. Close is idempotent.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.closed = true
		for id, ch := range b.watchers {
			close(ch)
			delete(b.watchers, id)
		}
		b.mu.Unlock()
	})
}

// appendHistory records the event, evicting the oldest entry beyond capacity.
// Caller must hold b.mu.
func (b *Bus) appendHistory(event Event) {
	b.history[b.historyHead] = Record{At: event.At, Event: event}
	b.historyHead = (b.historyHead + 1) % historyCapacity
	if b.historyCount < historyCapacity {
		b.historyCount++
	}
}

// callbackKey derives an identity for a subscriber function so duplicate
// subscriptions of the same function can be detected.
func callbackKey(fn Subscriber) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

func removeKey(subs []subscription, key uintptr) []subscription {
	out := subs[:0]
	for _, sub := range subs {
		if sub.key != key {
			out = append(out, sub)
		}
	}

	return out
}
