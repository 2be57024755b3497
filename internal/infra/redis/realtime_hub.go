package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"theory-battle/internal/realtime"
)

const (
	defaultPresenceTTL = 30 * time.Second
	eventBuffer        = 64
)

// Hub implements realtime.Client on Redis so that several relay instances
// share channels. Broadcasts travel over PUBLISH/SUBSCRIBE on
// rt:{name}:events; presence lives in the hash rt:{name}:presence keyed by
// subscription id.
//
// Entries are refreshed by their owner and ignored once older than the
// presence TTL, so a crashed instance does not leave ghosts behind forever.
type Hub struct {
	client *redis.Client
	log    logrus.FieldLogger
	ttl    time.Duration
	clock  func() time.Time
}

func NewHub(client *redis.Client, presenceTTL time.Duration, log logrus.FieldLogger) *Hub {
	if presenceTTL <= 0 {
		presenceTTL = defaultPresenceTTL
	}
	return &Hub{client: client, log: log, ttl: presenceTTL, clock: time.Now}
}

func (h *Hub) Channel(name, presenceKey string) realtime.Channel {
	return &channel{
		hub:    h,
		name:   name,
		key:    presenceKey,
		id:     uuid.NewString(),
		events: make(chan realtime.Event, eventBuffer),
		stop:   make(chan struct{}),
	}
}

func (h *Hub) eventsKey(name string) string   { return "rt:" + name + ":events" }
func (h *Hub) presenceKey(name string) string { return "rt:" + name + ":presence" }

type envelope struct {
	Kind     realtime.EventKind     `json:"kind"`
	Name     string                 `json:"name,omitempty"`
	Key      string                 `json:"key,omitempty"`
	Payload  json.RawMessage        `json:"payload,omitempty"`
	Presence realtime.PresenceState `json:"presence,omitempty"`
}

type presenceRecord struct {
	Key      string          `json:"key"`
	Meta     json.RawMessage `json:"meta"`
	JoinedAt int64           `json:"joinedAt"`
	SeenAt   int64           `json:"seenAt"`
}

type channel struct {
	hub    *Hub
	name   string
	key    string
	id     string
	events chan realtime.Event
	stop   chan struct{}

	mu         sync.Mutex
	ps         *redis.PubSub
	subscribed bool
	closed     bool
	tracked    *presenceRecord
	wg         sync.WaitGroup
}

func (c *channel) Name() string { return c.name }

func (c *channel) Events() <-chan realtime.Event { return c.events }

func (c *channel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return realtime.ErrClosed
	}
	if c.subscribed {
		return nil
	}

	ps := c.hub.client.Subscribe(ctx, c.hub.eventsKey(c.name))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", c.name, err)
	}
	state, err := c.hub.presence(ctx, c.name)
	if err != nil {
		_ = ps.Close()
		return err
	}
	c.ps = ps
	c.subscribed = true
	c.deliver(realtime.Event{Kind: realtime.PresenceSync, Presence: state})

	c.wg.Add(2)
	go c.forward(ps.Channel())
	go c.refresh()
	return nil
}

func (c *channel) Track(ctx context.Context, payload any) error {
	meta, err := realtime.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	now := c.hub.clock().UnixNano()
	rec := presenceRecord{Key: c.key, Meta: meta, JoinedAt: now, SeenAt: now}
	if c.tracked != nil {
		rec.JoinedAt = c.tracked.JoinedAt
	}
	if err := c.hub.writePresence(ctx, c.name, c.id, rec); err != nil {
		return err
	}
	c.tracked = &rec
	if err := c.hub.publish(ctx, c.name, envelope{Kind: realtime.PresenceJoin, Key: c.key, Payload: meta}); err != nil {
		return err
	}
	return c.hub.publishSync(ctx, c.name)
}

func (c *channel) Send(ctx context.Context, event string, payload any) error {
	data, err := realtime.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	err = c.usableLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.hub.publish(ctx, c.name, envelope{Kind: realtime.Broadcast, Name: event, Payload: data})
}

func (c *channel) PresenceState() realtime.PresenceState {
	c.mu.Lock()
	ok := c.subscribed && !c.closed
	c.mu.Unlock()
	if !ok {
		return realtime.PresenceState{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := c.hub.presence(ctx, c.name)
	if err != nil {
		c.hub.log.WithError(err).WithField("channel", c.name).Warn("read presence")
		return realtime.PresenceState{}
	}
	return state
}

func (c *channel) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subscribed, tracked, ps := c.subscribed, c.tracked, c.ps
	c.mu.Unlock()

	if !subscribed {
		close(c.events)
		return nil
	}

	close(c.stop)
	var firstErr error
	if tracked != nil {
		if err := c.hub.client.HDel(ctx, c.hub.presenceKey(c.name), c.id).Err(); err != nil {
			firstErr = err
		}
		leave := envelope{Kind: realtime.PresenceLeave, Key: c.key, Payload: tracked.Meta}
		if err := c.hub.publish(ctx, c.name, leave); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := c.hub.publishSync(ctx, c.name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := ps.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.wg.Wait()
	close(c.events)
	return firstErr
}

func (c *channel) usableLocked() error {
	if c.closed {
		return realtime.ErrClosed
	}
	if !c.subscribed {
		return realtime.ErrNotSubscribed
	}
	return nil
}

// forward decodes pub/sub messages until the subscription is closed.
func (c *channel) forward(msgs <-chan *redis.Message) {
	defer c.wg.Done()
	for msg := range msgs {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.hub.log.WithError(err).WithField("channel", c.name).Warn("malformed envelope")
			continue
		}
		c.deliver(realtime.Event{
			Kind:     env.Kind,
			Name:     env.Name,
			Key:      env.Key,
			Payload:  env.Payload,
			Presence: env.Presence,
		})
	}
}

// refresh keeps this subscription's presence alive and evicts stale peers.
func (c *channel) refresh() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.hub.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.hub.ttl/3)
		c.mu.Lock()
		tracked := c.tracked
		if tracked != nil && !c.closed {
			rec := *tracked
			rec.SeenAt = c.hub.clock().UnixNano()
			if err := c.hub.writePresence(ctx, c.name, c.id, rec); err != nil {
				c.hub.log.WithError(err).WithField("channel", c.name).Warn("refresh presence")
			}
			c.tracked = &rec
		}
		c.mu.Unlock()
		if err := c.hub.evictStale(ctx, c.name); err != nil {
			c.hub.log.WithError(err).WithField("channel", c.name).Warn("evict stale presence")
		}
		cancel()
	}
}

// deliver drops the oldest queued event when the reader lags.
func (c *channel) deliver(ev realtime.Event) {
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

func (h *Hub) publish(ctx context.Context, name string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := h.client.Publish(ctx, h.eventsKey(name), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

func (h *Hub) publishSync(ctx context.Context, name string) error {
	state, err := h.presence(ctx, name)
	if err != nil {
		return err
	}
	return h.publish(ctx, name, envelope{Kind: realtime.PresenceSync, Presence: state})
}

func (h *Hub) writePresence(ctx context.Context, name, id string, rec presenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := h.presenceKey(name)
	pipe := h.client.TxPipeline()
	pipe.HSet(ctx, key, id, data)
	pipe.Expire(ctx, key, 2*h.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write presence %s: %w", name, err)
	}
	return nil
}

// presence reads live members ordered by join time.
func (h *Hub) presence(ctx context.Context, name string) (realtime.PresenceState, error) {
	live, _, err := h.readPresence(ctx, name)
	if err != nil {
		return nil, err
	}
	var b realtime.PresenceBuilder
	for _, rec := range live {
		b.Add(rec.Key, rec.Meta)
	}
	return b.State(), nil
}

type storedPresence struct {
	id string
	presenceRecord
}

func (h *Hub) readPresence(ctx context.Context, name string) (live, stale []storedPresence, err error) {
	raw, err := h.client.HGetAll(ctx, h.presenceKey(name)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("read presence %s: %w", name, err)
	}
	cutoff := h.clock().Add(-h.ttl).UnixNano()
	for id, data := range raw {
		var rec presenceRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			stale = append(stale, storedPresence{id: id})
			continue
		}
		entry := storedPresence{id: id, presenceRecord: rec}
		if rec.SeenAt < cutoff {
			stale = append(stale, entry)
			continue
		}
		live = append(live, entry)
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].JoinedAt != live[j].JoinedAt {
			return live[i].JoinedAt < live[j].JoinedAt
		}
		return live[i].id < live[j].id
	})
	return live, stale, nil
}

func (h *Hub) evictStale(ctx context.Context, name string) error {
	_, stale, err := h.readPresence(ctx, name)
	if err != nil || len(stale) == 0 {
		return err
	}
	for _, rec := range stale {
		removed, err := h.client.HDel(ctx, h.presenceKey(name), rec.id).Result()
		if err != nil {
			return err
		}
		// Another instance may have evicted it first.
		if removed == 0 || rec.Key == "" {
			continue
		}
		h.log.WithFields(logrus.Fields{"channel": name, "key": rec.Key}).Info("evicted stale presence")
		if err := h.publish(ctx, name, envelope{Kind: realtime.PresenceLeave, Key: rec.Key, Payload: rec.Meta}); err != nil {
			return err
		}
	}
	return h.publishSync(ctx, name)
}
