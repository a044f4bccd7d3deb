package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// defaultBufferSize is used when a subscriber does not name its own.
const defaultBufferSize = 64

// Bus fans events out to named subscribers over bounded channels.
type Bus struct {
	logger *slog.Logger

	// dropped counts every event lost to backpressure across all
	// subscribers, including ones that have since unsubscribed.
	dropped atomic.Int64

	// mutex protects subs and closed. Delivery happens under the read
	// lock so Publish can never race a channel close.
	mutex  sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

type subscriber struct {
	name    string
	ch      chan Event
	dropped atomic.Int64
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[string]*subscriber),
	}
}

// Subscribe registers a named observer with its own buffer and returns the
// receive side. Names must be unique; size <= 0 selects the default.
func (b *Bus) Subscribe(name string, size int) (<-chan Event, error) {
	if name == "" {
		return nil, fmt.Errorf("subscriber with empty name")
	}
	if size <= 0 {
		size = defaultBufferSize
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	if _, dup := b.subs[name]; dup {
		return nil, fmt.Errorf("duplicate subscriber %q", name)
	}

	sub := &subscriber{name: name, ch: make(chan Event, size)}
	b.subs[name] = sub
	b.logger.Debug("Progress subscriber registered.", "subscriber", name, "buffer", size)
	return sub.ch, nil
}

// Unsubscribe removes the named observer and closes its channel. Unknown
// names are ignored.
func (b *Bus) Unsubscribe(name string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	sub, ok := b.subs[name]
	if !ok {
		return
	}
	delete(b.subs, name)
	close(sub.ch)
}

// Publish broadcasts the event to every subscriber without ever blocking.
// A subscriber whose buffer is full loses its oldest queued event. Events
// without a timestamp are stamped on entry. Publishing on a closed bus is
// a no-op.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub *subscriber, e Event) {
	select {
	case sub.ch <- e:
		return
	default:
	}

	// Buffer full: evict the oldest queued event to make room. Another
	// publisher may win either race, so both moves stay non-blocking.
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		b.dropped.Add(1)
	default:
	}
	select {
	case sub.ch <- e:
	default:
		sub.dropped.Add(1)
		b.dropped.Add(1)
	}
	b.logger.Debug("Progress event dropped on backpressure.",
		"subscriber", sub.name, "kind", e.Kind, "dropped_total", sub.dropped.Load())
}

// TotalDropped reports how many events the bus has lost to backpressure
// since it was created, across all subscribers past and present.
func (b *Bus) TotalDropped() int64 {
	return b.dropped.Load()
}

// Dropped reports how many events the named subscriber has lost to
// backpressure.
func (b *Bus) Dropped(name string) int64 {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	sub, ok := b.subs[name]
	if !ok {
		return 0
	}
	return sub.dropped.Load()
}

// Close closes every subscriber channel and rejects further publishes and
// subscriptions. Close is idempotent.
func (b *Bus) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for name, sub := range b.subs {
		delete(b.subs, name)
		close(sub.ch)
	}
}
