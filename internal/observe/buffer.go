package observe

import "sync"

const (
	// MaxEvents is the capacity bound per stream.
	MaxEvents = 1000
	// KeepEvents is how many of the newest events survive an overflow.
	KeepEvents = 500
)

// Buffer accumulates observations between reflection cycles. Both streams
// share one mutex: producers append through the bus callbacks, the single
// reflector consumer drains. The overflow trim runs atomically with the
// append, so no caller ever observes a stream longer than MaxEvents.
type Buffer struct {
	mu       sync.Mutex
	messages []MessageEvent
	states   []StateEvent
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// AddMessage appends a message observation, discarding the oldest half of
// the stream when the capacity bound is exceeded. The producer never blocks.
func (b *Buffer) AddMessage(ev MessageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, ev)
	if len(b.messages) > MaxEvents {
		trimmed := make([]MessageEvent, KeepEvents)
		copy(trimmed, b.messages[len(b.messages)-KeepEvents:])
		b.messages = trimmed
	}
}

// AddState appends a state observation with the same overflow policy.
func (b *Buffer) AddState(ev StateEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states = append(b.states, ev)
	if len(b.states) > MaxEvents {
		trimmed := make([]StateEvent, KeepEvents)
		copy(trimmed, b.states[len(b.states)-KeepEvents:])
		b.states = trimmed
	}
}

// DrainAll atomically snapshots both streams and clears them. A publish that
// races with a drain lands entirely before or entirely after the snapshot.
func (b *Buffer) DrainAll() ([]MessageEvent, []StateEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	messages := b.messages
	states := b.states
	b.messages = nil
	b.states = nil
	return messages, states
}

// Len returns the current length of both streams.
func (b *Buffer) Len() (messages, states int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages), len(b.states)
}
