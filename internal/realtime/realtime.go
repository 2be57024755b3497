// Package realtime defines the publish/subscribe channel contract used by the
// battle coordinator: named channels with presence tracking and named
// broadcast events. Implementations live in internal/infra (in-process and
// Redis hubs) and internal/transport/wsclient (remote relay).
package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// EventKind distinguishes presence updates from broadcasts.
type EventKind string

const (
	PresenceSync  EventKind = "presence-sync"
	PresenceJoin  EventKind = "presence-join"
	PresenceLeave EventKind = "presence-leave"
	Broadcast     EventKind = "broadcast"
)

// Event is delivered to channel subscribers in publish order.
type Event struct {
	Kind EventKind
	// Name is the broadcast event name (e.g. "answer"); empty for presence.
	Name string
	// Key is the presence key that joined or left.
	Key string
	// Payload is the broadcast payload, or the presence payload for join/leave.
	Payload json.RawMessage
	// Presence is the full membership, set on PresenceSync.
	Presence PresenceState
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(e.Payload, v)
}

// Client opens channels. A channel is inert until Subscribe is called.
type Client interface {
	Channel(name, presenceKey string) Channel
}

// Channel is one subscription to a named channel.
//
// Events is closed after Unsubscribe. Unsubscribe is idempotent and releases
// presence, so peers observe a presence-leave.
type Channel interface {
	Name() string
	Subscribe(ctx context.Context) error
	Events() <-chan Event
	Track(ctx context.Context, payload any) error
	Send(ctx context.Context, event string, payload any) error
	PresenceState() PresenceState
	Unsubscribe(ctx context.Context) error
}

var (
	// ErrNotSubscribed is returned by Track/Send before Subscribe succeeded.
	ErrNotSubscribed = errors.New("realtime: channel not subscribed")
	// ErrClosed is returned when using a channel after Unsubscribe.
	ErrClosed = errors.New("realtime: channel closed")
	// ErrEmptyPayload is returned when decoding an event without payload.
	ErrEmptyPayload = errors.New("realtime: empty payload")
)
