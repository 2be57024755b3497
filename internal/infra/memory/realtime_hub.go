package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"theory-battle/internal/realtime"
)

const defaultEventBuffer = 64

// Hub is an in-process implementation of realtime.Client. Every channel name
// maps to a topic whose subscribers receive broadcasts (including their own)
// and presence updates in publish order.
type Hub struct {
	log    logrus.FieldLogger
	buffer int

	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subscribers map[*hubChannel]struct{}
	// tracked keeps presence in track order.
	tracked []*hubChannel
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:    log,
		buffer: defaultEventBuffer,
		topics: make(map[string]*topic),
	}
}

// Channel returns an unsubscribed handle on the named channel.
func (h *Hub) Channel(name, presenceKey string) realtime.Channel {
	return &hubChannel{
		hub:    h,
		name:   name,
		key:    presenceKey,
		events: make(chan realtime.Event, h.buffer),
	}
}

// Subscribers reports how many live subscriptions a channel has.
func (h *Hub) Subscribers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[name]; ok {
		return len(t.subscribers)
	}
	return 0
}

type hubChannel struct {
	hub    *Hub
	name   string
	key    string
	events chan realtime.Event

	// guarded by hub.mu
	subscribed bool
	closed     bool
	meta       json.RawMessage
	tracked    bool
}

func (c *hubChannel) Name() string { return c.name }

func (c *hubChannel) Events() <-chan realtime.Event { return c.events }

func (c *hubChannel) Subscribe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return realtime.ErrClosed
	}
	if c.subscribed {
		return nil
	}
	t, ok := h.topics[c.name]
	if !ok {
		t = &topic{subscribers: make(map[*hubChannel]struct{})}
		h.topics[c.name] = t
	}
	t.subscribers[c] = struct{}{}
	c.subscribed = true
	c.deliverLocked(realtime.Event{Kind: realtime.PresenceSync, Presence: t.presenceLocked()})
	return nil
}

func (c *hubChannel) Track(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta, err := realtime.Marshal(payload)
	if err != nil {
		return err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	t, err := c.topicLocked()
	if err != nil {
		return err
	}
	c.meta = meta
	if !c.tracked {
		c.tracked = true
		t.tracked = append(t.tracked, c)
	}
	t.broadcastLocked(realtime.Event{Kind: realtime.PresenceJoin, Key: c.key, Payload: meta})
	t.broadcastLocked(realtime.Event{Kind: realtime.PresenceSync, Presence: t.presenceLocked()})
	return nil
}

func (c *hubChannel) Send(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := realtime.Marshal(payload)
	if err != nil {
		return err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	t, err := c.topicLocked()
	if err != nil {
		return err
	}
	t.broadcastLocked(realtime.Event{Kind: realtime.Broadcast, Name: event, Payload: data})
	return nil
}

func (c *hubChannel) PresenceState() realtime.PresenceState {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[c.name]; ok && c.subscribed {
		return t.presenceLocked()
	}
	return realtime.PresenceState{}
}

func (c *hubChannel) Unsubscribe(_ context.Context) error {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if t, ok := h.topics[c.name]; ok && c.subscribed {
		delete(t.subscribers, c)
		if c.tracked {
			t.untrackLocked(c)
			t.broadcastLocked(realtime.Event{Kind: realtime.PresenceLeave, Key: c.key, Payload: c.meta})
			t.broadcastLocked(realtime.Event{Kind: realtime.PresenceSync, Presence: t.presenceLocked()})
		}
		if len(t.subscribers) == 0 {
			delete(h.topics, c.name)
		}
	}
	close(c.events)
	return nil
}

func (c *hubChannel) topicLocked() (*topic, error) {
	if c.closed {
		return nil, realtime.ErrClosed
	}
	if !c.subscribed {
		return nil, realtime.ErrNotSubscribed
	}
	return c.hub.topics[c.name], nil
}

// deliverLocked drops the oldest queued event when a subscriber falls behind.
func (c *hubChannel) deliverLocked(ev realtime.Event) {
	select {
	case c.events <- ev:
		return
	default:
	}
	c.hub.log.WithFields(logrus.Fields{"channel": c.name, "key": c.key}).
		Warn("subscriber buffer full, dropping oldest event")
	select {
	case <-c.events:
	default:
	}
	select {
	case c.events <- ev:
	default:
	}
}

func (t *topic) broadcastLocked(ev realtime.Event) {
	for sub := range t.subscribers {
		sub.deliverLocked(ev)
	}
}

func (t *topic) untrackLocked(c *hubChannel) {
	for i, tracked := range t.tracked {
		if tracked == c {
			t.tracked = append(t.tracked[:i], t.tracked[i+1:]...)
			return
		}
	}
}

func (t *topic) presenceLocked() realtime.PresenceState {
	var b realtime.PresenceBuilder
	for _, c := range t.tracked {
		b.Add(c.key, c.meta)
	}
	return b.State()
}
