// Package wsclient implements realtime.Client on top of a relay websocket.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"theory-battle/internal/realtime"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// ErrConnectionClosed is returned once the relay connection is gone.
var ErrConnectionClosed = errors.New("relay connection closed")

// Client multiplexes channels over one relay connection.
type Client struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	writeMu sync.Mutex

	mu       sync.Mutex
	channels map[string]*channel
	closed   bool
	done     chan struct{}
}

// Dial connects to the relay at rawURL as userID.
func Dial(ctx context.Context, rawURL, userID string, log logrus.FieldLogger) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	c := &Client{
		conn:     conn,
		log:      log.WithField("relay", u.Host),
		channels: make(map[string]*channel),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close drops the connection; the relay releases every channel it held.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Channel(name, presenceKey string) realtime.Channel {
	return &channel{
		client: c,
		name:   name,
		key:    presenceKey,
		events: make(chan realtime.Event, eventBuffer),
		ack:    make(chan error, 1),
	}
}

func (c *Client) write(f realtime.Frame) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		for name, ch := range c.channels {
			delete(c.channels, name)
			ch.closeLocked(ErrConnectionClosed)
		}
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		var f realtime.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("relay read ended")
			}
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f realtime.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.channels[f.Channel]

	switch f.Type {
	case realtime.FrameSubscribed:
		if ch != nil {
			ch.acknowledge(nil)
		}
		return
	case realtime.FrameError:
		if ch != nil && !ch.joined {
			ch.acknowledge(errors.New(f.Message))
			return
		}
		c.log.WithFields(logrus.Fields{"channel": f.Channel, "message": f.Message}).Warn("relay error")
		return
	}

	ev, ok := realtime.FrameEvent(f)
	if !ok || ch == nil {
		return
	}
	if ev.Kind == realtime.PresenceSync {
		ch.presence = ev.Presence
	}
	ch.deliverLocked(ev)
}

type channel struct {
	client *Client
	name   string
	key    string
	events chan realtime.Event
	ack    chan error

	// guarded by client.mu
	joined   bool
	closed   bool
	presence realtime.PresenceState
}

func (ch *channel) Name() string { return ch.name }

func (ch *channel) Events() <-chan realtime.Event { return ch.events }

func (ch *channel) Subscribe(ctx context.Context) error {
	c := ch.client
	c.mu.Lock()
	switch {
	case ch.closed:
		c.mu.Unlock()
		return realtime.ErrClosed
	case ch.joined:
		c.mu.Unlock()
		return nil
	case c.closed:
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if _, busy := c.channels[ch.name]; busy {
		c.mu.Unlock()
		return fmt.Errorf("channel %s already joined on this connection", ch.name)
	}
	c.channels[ch.name] = ch
	c.mu.Unlock()

	err := c.write(realtime.Frame{Type: realtime.FrameJoin, Channel: ch.name, Key: ch.key})
	if err == nil {
		select {
		case err = <-ch.ack:
		case <-ctx.Done():
			err = ctx.Err()
		case <-c.done:
			err = ErrConnectionClosed
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.channels[ch.name] == ch {
			delete(c.channels, ch.name)
		}
		return err
	}
	ch.joined = true
	return nil
}

func (ch *channel) Track(_ context.Context, payload any) error {
	data, err := realtime.Marshal(payload)
	if err != nil {
		return err
	}
	if err := ch.usable(); err != nil {
		return err
	}
	return ch.client.write(realtime.Frame{Type: realtime.FrameTrack, Channel: ch.name, Payload: data})
}

func (ch *channel) Send(_ context.Context, event string, payload any) error {
	data, err := realtime.Marshal(payload)
	if err != nil {
		return err
	}
	if err := ch.usable(); err != nil {
		return err
	}
	return ch.client.write(realtime.Frame{Type: realtime.FrameBroadcast, Channel: ch.name, Event: event, Payload: data})
}

func (ch *channel) PresenceState() realtime.PresenceState {
	ch.client.mu.Lock()
	defer ch.client.mu.Unlock()
	if ch.presence == nil {
		return realtime.PresenceState{}
	}
	return append(realtime.PresenceState(nil), ch.presence...)
}

func (ch *channel) Unsubscribe(_ context.Context) error {
	c := ch.client
	c.mu.Lock()
	if ch.closed {
		c.mu.Unlock()
		return nil
	}
	joined := ch.joined
	if c.channels[ch.name] == ch {
		delete(c.channels, ch.name)
	}
	ch.closeLocked(nil)
	c.mu.Unlock()

	if !joined {
		return nil
	}
	err := c.write(realtime.Frame{Type: realtime.FrameLeave, Channel: ch.name})
	if errors.Is(err, ErrConnectionClosed) {
		return nil
	}
	return err
}

func (ch *channel) usable() error {
	ch.client.mu.Lock()
	defer ch.client.mu.Unlock()
	if ch.closed {
		return realtime.ErrClosed
	}
	if !ch.joined {
		return realtime.ErrNotSubscribed
	}
	return nil
}

func (ch *channel) acknowledge(err error) {
	select {
	case ch.ack <- err:
	default:
	}
}

// closeLocked closes the event stream once; callers hold client.mu.
func (ch *channel) closeLocked(reason error) {
	if ch.closed {
		return
	}
	ch.closed = true
	if reason != nil && !ch.joined {
		ch.acknowledge(reason)
	}
	close(ch.events)
}

// deliverLocked drops the oldest queued event when the reader lags.
func (ch *channel) deliverLocked(ev realtime.Event) {
	if ch.closed {
		return
	}
	select {
	case ch.events <- ev:
		return
	default:
	}
	select {
	case <-ch.events:
	default:
	}
	select {
	case ch.events <- ev:
	default:
	}
}
