package observe

import (
	"log/slog"
	"sync"
	"time"
)

// MessageObserver receives message-traffic events.
type MessageObserver func(MessageEvent)

// StateObserver receives state-transition events.
type StateObserver func(StateEvent)

// Subscription identifies a registered observer so it can be removed again.
type Subscription struct {
	id     uint64
	stream string
}

// Bus relays main-agent activity to registered observers. Callbacks run
// inline in the publisher's goroutine and must not block significantly; any
// heavy work belongs in the reflector's periodic drain, not in the callback.
type Bus struct {
	logger *slog.Logger

	mu             sync.Mutex
	nextID         uint64
	msgObservers   map[uint64]MessageObserver
	stateObservers map[uint64]StateObserver
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:         logger,
		msgObservers:   make(map[uint64]MessageObserver),
		stateObservers: make(map[uint64]StateObserver),
	}
}

// SubscribeMessages registers an observer for the message stream.
func (b *Bus) SubscribeMessages(fn MessageObserver) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.msgObservers[b.nextID] = fn
	return Subscription{id: b.nextID, stream: "messages"}
}

// SubscribeStates registers an observer for the state stream.
func (b *Bus) SubscribeStates(fn StateObserver) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.stateObservers[b.nextID] = fn
	return Subscription{id: b.nextID, stream: "states"}
}

// Unsubscribe removes a previously registered observer. Unknown
// subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch sub.stream {
	case "messages":
		delete(b.msgObservers, sub.id)
	case "states":
		delete(b.stateObservers, sub.id)
	}
}

// PublishMessage relays one message observation to all message observers.
// The preview is truncated to MaxPreviewLen.
func (b *Bus) PublishMessage(direction Direction, channel, preview string) {
	ev := MessageEvent{
		Timestamp: time.Now(),
		Direction: direction,
		Channel:   channel,
		Preview:   truncatePreview(preview),
	}

	for _, fn := range b.snapshotMessageObservers() {
		fn(ev)
	}
}

// PublishState relays one state transition to all state observers. Error
// transitions are additionally surfaced in the log so operators see them
// without waiting for the next reflection.
func (b *Bus) PublishState(kind string, payload map[string]any) {
	ev := StateEvent{
		Timestamp: time.Now(),
		Kind:      kind,
		Payload:   payload,
	}

	if kind == StateKindError {
		b.logger.Warn("main agent error observed", "payload", payload)
	}

	for _, fn := range b.snapshotStateObservers() {
		fn(ev)
	}
}

// Observer snapshots are taken under the mutex but callbacks run outside it,
// so a callback may unsubscribe without deadlocking.
func (b *Bus) snapshotMessageObservers() []MessageObserver {
	b.mu.Lock()
	defer b.mu.Unlock()

	observers := make([]MessageObserver, 0, len(b.msgObservers))
	for _, fn := range b.msgObservers {
		observers = append(observers, fn)
	}
	return observers
}

func (b *Bus) snapshotStateObservers() []StateObserver {
	b.mu.Lock()
	defer b.mu.Unlock()

	observers := make([]StateObserver, 0, len(b.stateObservers))
	for _, fn := range b.stateObservers {
		observers = append(observers, fn)
	}
	return observers
}
