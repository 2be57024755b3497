package realtime

import "encoding/json"

// Frame types exchanged between the websocket relay and its clients.
const (
	FrameJoin      = "join"
	FrameTrack     = "track"
	FrameBroadcast = "broadcast"
	FrameLeave     = "leave"

	FrameSubscribed    = "subscribed"
	FramePresenceSync  = "presence_sync"
	FramePresenceJoin  = "presence_join"
	FramePresenceLeave = "presence_leave"
	FrameError         = "error"
)

// Frame is the JSON envelope on the relay websocket.
type Frame struct {
	Type     string          `json:"type"`
	Channel  string          `json:"channel,omitempty"`
	Key      string          `json:"key,omitempty"`
	Event    string          `json:"event,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Presence PresenceState   `json:"presence,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// EventFrame renders a channel event as a server frame.
func EventFrame(channel string, ev Event) Frame {
	f := Frame{Channel: channel, Key: ev.Key, Event: ev.Name, Payload: ev.Payload}
	switch ev.Kind {
	case PresenceSync:
		f.Type = FramePresenceSync
		f.Presence = ev.Presence
		if f.Presence == nil {
			f.Presence = PresenceState{}
		}
	case PresenceJoin:
		f.Type = FramePresenceJoin
	case PresenceLeave:
		f.Type = FramePresenceLeave
	default:
		f.Type = FrameBroadcast
	}
	return f
}

// FrameEvent converts a server frame back into a channel event. ok is false
// for frames that do not carry channel events.
func FrameEvent(f Frame) (Event, bool) {
	switch f.Type {
	case FramePresenceSync:
		return Event{Kind: PresenceSync, Presence: f.Presence}, true
	case FramePresenceJoin:
		return Event{Kind: PresenceJoin, Key: f.Key, Payload: f.Payload}, true
	case FramePresenceLeave:
		return Event{Kind: PresenceLeave, Key: f.Key, Payload: f.Payload}, true
	case FrameBroadcast:
		return Event{Kind: Broadcast, Name: f.Event, Payload: f.Payload}, true
	default:
		return Event{}, false
	}
}

// Marshal is a helper for payload encoding that accepts pre-encoded JSON.
func Marshal(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	return json.Marshal(payload)
}
