// Package observe carries the observer's view of main-agent activity: event
// types for the two watched streams, the bounded buffer the reflector drains,
// and the bus that relays events from the main agent's loop to subscribers.
package observe

import "time"

// Direction indicates which way a message travelled through the main agent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MaxPreviewLen bounds the message preview carried in a MessageEvent.
const MaxPreviewLen = 300

// MessageEvent records one message passing through the main agent.
type MessageEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	Channel   string    `json:"channel"`
	Preview   string    `json:"preview"`
}

// StateEvent records one main-agent state transition.
type StateEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// StateKindError is the state transition the main agent emits on failures.
// It is surfaced in the observer log at publish time.
const StateKindError = "error"

// truncatePreview caps a preview at MaxPreviewLen without splitting a rune.
func truncatePreview(s string) string {
	if len(s) <= MaxPreviewLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxPreviewLen {
		return s
	}
	return string(runes[:MaxPreviewLen])
}
