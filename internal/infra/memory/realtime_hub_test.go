package memory

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theory-battle/internal/realtime"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func next(t *testing.T, ch realtime.Channel) realtime.Event {
	t.Helper()
	select {
	case ev, ok := <-ch.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event on %s", ch.Name())
	}
	return realtime.Event{}
}

func TestHubPresenceLifecycle(t *testing.T) {
	hub := NewHub(quietLogger())
	ctx := context.Background()

	a := hub.Channel("lobby", "a")
	require.NoError(t, a.Subscribe(ctx))
	sync := next(t, a)
	assert.Equal(t, realtime.PresenceSync, sync.Kind)
	assert.Empty(t, sync.Presence)

	require.NoError(t, a.Track(ctx, map[string]string{"user_id": "a"}))
	join := next(t, a)
	assert.Equal(t, realtime.PresenceJoin, join.Kind)
	assert.Equal(t, "a", join.Key)
	assert.Equal(t, []string{"a"}, next(t, a).Presence.Keys())

	b := hub.Channel("lobby", "b")
	require.NoError(t, b.Subscribe(ctx))
	assert.Equal(t, []string{"a"}, next(t, b).Presence.Keys())
	require.NoError(t, b.Track(ctx, map[string]string{"user_id": "b"}))

	assert.Equal(t, realtime.PresenceJoin, next(t, a).Kind)
	assert.Equal(t, []string{"a", "b"}, next(t, a).Presence.Keys())
	assert.Equal(t, []string{"a", "b"}, b.PresenceState().Keys())
	assert.Equal(t, 2, hub.Subscribers("lobby"))

	require.NoError(t, b.Unsubscribe(ctx))
	leave := next(t, a)
	assert.Equal(t, realtime.PresenceLeave, leave.Kind)
	assert.Equal(t, "b", leave.Key)
	assert.Equal(t, []string{"a"}, next(t, a).Presence.Keys())

	require.NoError(t, b.Unsubscribe(ctx), "unsubscribe is idempotent")
	assert.ErrorIs(t, b.Send(ctx, "x", 1), realtime.ErrClosed)

	require.NoError(t, a.Unsubscribe(ctx))
	assert.Zero(t, hub.Subscribers("lobby"))
	for range a.Events() {
	}
}

func TestHubBroadcastEchoesToSender(t *testing.T) {
	hub := NewHub(quietLogger())
	ctx := context.Background()

	a := hub.Channel("battle_a_b", "a")
	b := hub.Channel("battle_a_b", "b")
	require.NoError(t, a.Subscribe(ctx))
	require.NoError(t, b.Subscribe(ctx))
	next(t, a)
	next(t, b)

	require.NoError(t, a.Send(ctx, "answer", map[string]any{"userId": "a", "answerIndex": 2}))
	for _, ch := range []realtime.Channel{a, b} {
		ev := next(t, ch)
		assert.Equal(t, realtime.Broadcast, ev.Kind)
		assert.Equal(t, "answer", ev.Name)
		var p struct {
			UserID      string `json:"userId"`
			AnswerIndex int    `json:"answerIndex"`
		}
		require.NoError(t, ev.Decode(&p))
		assert.Equal(t, 2, p.AnswerIndex)
	}
}

func TestHubRequiresSubscribe(t *testing.T) {
	hub := NewHub(quietLogger())
	ch := hub.Channel("x", "k")
	assert.ErrorIs(t, ch.Send(context.Background(), "e", 1), realtime.ErrNotSubscribed)
	assert.ErrorIs(t, ch.Track(context.Background(), 1), realtime.ErrNotSubscribed)
	assert.Empty(t, ch.PresenceState())
}

func TestHubDropsOldestWhenSubscriberLags(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.buffer = 2
	ctx := context.Background()

	slow := hub.Channel("c", "slow")
	require.NoError(t, slow.Subscribe(ctx))
	pub := hub.Channel("c", "pub")
	require.NoError(t, pub.Subscribe(ctx))

	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Send(ctx, "n", i))
	}
	var last int
	require.NoError(t, next(t, slow).Decode(&last))
	require.NoError(t, next(t, slow).Decode(&last))
	assert.Equal(t, 4, last)
}
