package http

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"theory-battle/internal/metrics"
	"theory-battle/internal/realtime"
)

// RelayHandler exposes a realtime.Client over websockets. One connection may
// join several channels; closing it leaves all of them, which is what peers
// observe as a presence-leave.
type RelayHandler struct {
	hub      realtime.Client
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

func NewRelayHandler(hub realtime.Client, log logrus.FieldLogger, m *metrics.Metrics) *RelayHandler {
	return &RelayHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log,
		metrics: m,
	}
}

type subscription struct {
	ch   realtime.Channel
	done chan struct{}
}

// ServeWS upgrades HTTP requests to websockets and relays channel frames.
func (h *RelayHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithField("user_id", userID)
	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan realtime.Frame, 64)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	emit := func(f realtime.Frame) {
		select {
		case send <- f:
		case <-writerDone:
		}
	}
	fail := func(channel, msg string) {
		emit(realtime.Frame{Type: realtime.FrameError, Channel: channel, Message: msg})
	}

	var forwarders sync.WaitGroup
	subs := make(map[string]*subscription)
	leave := func(name string) {
		sub, ok := subs[name]
		if !ok {
			return
		}
		delete(subs, name)
		if err := sub.ch.Unsubscribe(ctx); err != nil {
			log.WithError(err).WithField("channel", name).Warn("unsubscribe")
		}
		<-sub.done
		h.metrics.Subscribed(-1)
	}

	for {
		var in realtime.Frame
		if err := conn.ReadJSON(&in); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				log.WithError(err).Debug("ws read ended")
			}
			break
		}
		h.metrics.Frame(in.Type)

		if in.Channel == "" {
			fail("", "missing channel")
			continue
		}
		switch in.Type {
		case realtime.FrameJoin:
			if _, ok := subs[in.Channel]; ok {
				fail(in.Channel, "already joined")
				continue
			}
			key := in.Key
			if key == "" {
				key = userID
			}
			ch := h.hub.Channel(in.Channel, key)
			if err := ch.Subscribe(ctx); err != nil {
				fail(in.Channel, err.Error())
				continue
			}
			sub := &subscription{ch: ch, done: make(chan struct{})}
			subs[in.Channel] = sub
			h.metrics.Subscribed(1)
			emit(realtime.Frame{Type: realtime.FrameSubscribed, Channel: in.Channel, Key: key})

			forwarders.Add(1)
			go func(name string) {
				defer forwarders.Done()
				defer close(sub.done)
				for ev := range ch.Events() {
					select {
					case send <- realtime.EventFrame(name, ev):
					case <-closeSignals:
					case <-writerDone:
					}
				}
			}(in.Channel)

		case realtime.FrameTrack:
			sub, ok := subs[in.Channel]
			if !ok {
				fail(in.Channel, realtime.ErrNotSubscribed.Error())
				continue
			}
			if err := sub.ch.Track(ctx, in.Payload); err != nil {
				fail(in.Channel, err.Error())
			}

		case realtime.FrameBroadcast:
			sub, ok := subs[in.Channel]
			if !ok {
				fail(in.Channel, realtime.ErrNotSubscribed.Error())
				continue
			}
			if in.Event == "" {
				fail(in.Channel, "missing event")
				continue
			}
			if err := sub.ch.Send(ctx, in.Event, in.Payload); err != nil {
				fail(in.Channel, err.Error())
			}

		case realtime.FrameLeave:
			leave(in.Channel)

		default:
			fail(in.Channel, "unsupported frame type")
		}
	}

	close(closeSignals)
	for name := range subs {
		leave(name)
	}
	forwarders.Wait()
	close(send)
	<-writerDone
}
