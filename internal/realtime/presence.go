package realtime

import "encoding/json"

// PresenceEntry groups the tracked payloads of one presence key.
type PresenceEntry struct {
	Key   string            `json:"key"`
	Metas []json.RawMessage `json:"metas"`
}

// PresenceState is the channel membership in join order.
type PresenceState []PresenceEntry

// Keys lists presence keys in join order.
func (s PresenceState) Keys() []string {
	keys := make([]string, 0, len(s))
	for _, e := range s {
		keys = append(keys, e.Key)
	}
	return keys
}

// Has reports whether key is present.
func (s PresenceState) Has(key string) bool {
	for _, e := range s {
		if e.Key == key {
			return true
		}
	}
	return false
}

// Others returns entries whose key differs from self, preserving order.
func (s PresenceState) Others(self string) PresenceState {
	out := make(PresenceState, 0, len(s))
	for _, e := range s {
		if e.Key != self {
			out = append(out, e)
		}
	}
	return out
}

// PresenceBuilder accumulates (key, meta) pairs into a PresenceState,
// keeping keys in first-seen order.
type PresenceBuilder struct {
	index map[string]int
	state PresenceState
}

func (b *PresenceBuilder) Add(key string, meta json.RawMessage) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	i, ok := b.index[key]
	if !ok {
		i = len(b.state)
		b.index[key] = i
		b.state = append(b.state, PresenceEntry{Key: key})
	}
	b.state[i].Metas = append(b.state[i].Metas, meta)
}

func (b *PresenceBuilder) State() PresenceState {
	if b.state == nil {
		return PresenceState{}
	}
	return b.state
}
