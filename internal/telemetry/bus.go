// Package telemetry provides a channel-based event bus. Emitting never
// blocks the caller: when no subscriber keeps up, events are dropped and
// counted rather than stalling agent or evolution code paths.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one fire-and-forget telemetry event.
type Event struct {
	Name      string         `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink is the minimal emit surface consumed by components.
type Sink interface {
	// Emit publishes one event. It must never block and never panic into
	// the caller.
	Emit(name string, payload map[string]any)
}

// Bus is a bounded fan-out event bus implementing Sink.
type Bus struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool

	bufSize int
	dropped atomic.Uint64
}

// NewBus creates a bus whose subscriber channels buffer bufSize events.
// A bufSize <= 0 defaults to 256.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{bufSize: bufSize}
}

// Compile-time interface check.
var _ Sink = (*Bus)(nil)

// Emit publishes one event to all subscribers. Events to slow subscribers
// are dropped, not queued unboundedly.
func (b *Bus) Emit(name string, payload map[string]any) {
	ev := Event{Name: name, Timestamp: time.Now(), Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a new consumer. The returned channel is closed when
// the bus closes.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Dropped returns the number of events dropped due to slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts the bus down and closes all subscriber channels. Emit calls
// after Close are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// Nop is a Sink that discards all events, for tests and optional wiring.
type Nop struct{}

// Emit discards the event.
func (Nop) Emit(string, map[string]any) {}
