package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theory-battle/internal/domain"
	"theory-battle/internal/infra/memory"
	"theory-battle/internal/metrics"
	"theory-battle/internal/realtime"
)

type recorded struct {
	mu      sync.Mutex
	results map[string]domain.BattleResult
	err     error
}

func (r *recorded) RecordBattle(_ context.Context, userID string, res domain.BattleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]domain.BattleResult{}
	}
	r.results[userID] = res
	return r.err
}

func (r *recorded) get(userID string) (domain.BattleResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[userID]
	return res, ok
}

type statusLog struct {
	mu    sync.Mutex
	lines []string
}

func (s *statusLog) add(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

func (s *statusLog) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func constantAnswer(i int) Answerer {
	return AnswerFunc(func(context.Context, BattleState) (int, error) { return i, nil })
}

func TestPlayAgainstPerfectBot(t *testing.T) {
	hub := memory.NewHub(testLogger())
	cfg := fastConfig()
	cfg.FallbackWait = 10 * time.Millisecond
	rec := &recorded{}
	status := &statusLog{}
	m := metrics.New("test")
	c := newTestCoordinator(hub, StaticPool(testQuestions(12)), cfg, BotConfig{Accuracy: 1},
		WithRecorder(rec), WithStatus(status.add), WithMetrics(m))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	me := domain.Player{ID: "learner", Name: "Learner"}
	res, err := c.Play(ctx, me, constantAnswer(1))
	require.NoError(t, err)

	assert.True(t, res.Opponent.IsBot)
	assert.Equal(t, 0, res.PlayerScore)
	assert.Equal(t, 10, res.OpponentScore)
	assert.Equal(t, 10, res.TotalQuestions)
	assert.Equal(t, domain.OutcomeLose, res.Outcome())

	stored, ok := rec.get(me.ID)
	require.True(t, ok)
	assert.Equal(t, res, stored)

	lines := status.all()
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, StatusSearching, lines[0])
	assert.Contains(t, lines[1], res.Opponent.Name)
	assert.Equal(t, ResultText(res), lines[len(lines)-1])
}

func TestPlayTwoHumans(t *testing.T) {
	hub := memory.NewHub(testLogger())
	cfg := fastConfig()
	cfg.FallbackWait = 5 * time.Second
	cfg.QuestionCount = 5
	rec := &recorded{}
	pool := StaticPool(testQuestions(8))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := domain.Player{ID: "alice", Name: "Alice"}
	bob := domain.Player{ID: "bob", Name: "Bob"}

	var observed sync.Map
	ca := newTestCoordinator(hub, pool, cfg, BotConfig{}, WithRecorder(rec), WithObserver(func(s BattleState) {
		observed.Store(s.Phase, true)
	}))
	cb := newTestCoordinator(hub, pool, cfg, BotConfig{}, WithRecorder(rec))

	var wg sync.WaitGroup
	var resA, resB domain.BattleResult
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		resA, errA = ca.Play(ctx, alice, constantAnswer(0))
	}()
	go func() {
		defer wg.Done()
		resB, errB = cb.Play(ctx, bob, constantAnswer(1))
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, "battle_alice_bob", resA.BattleID)
	assert.Equal(t, resA.BattleID, resB.BattleID)
	assert.Equal(t, 5, resA.PlayerScore)
	assert.Equal(t, 0, resA.OpponentScore)
	assert.Equal(t, resA.PlayerScore, resB.OpponentScore)
	assert.Equal(t, resA.OpponentScore, resB.PlayerScore)
	assert.False(t, resA.Forfeit)
	assert.False(t, resB.Forfeit)
	assert.Equal(t, "Bob", resA.Opponent.Name)

	_, ok := rec.get("bob")
	assert.True(t, ok)
	_, sawFinish := observed.Load(PhaseFinished)
	assert.True(t, sawFinish)
	assert.Zero(t, hub.Subscribers(resA.BattleID))
}

func TestPlayRetriesAfterNoShow(t *testing.T) {
	hub := memory.NewHub(testLogger())
	cfg := fastConfig()
	cfg.FallbackWait = 200 * time.Millisecond
	cfg.StartTimeout = 20 * time.Millisecond
	status := &statusLog{}
	c := newTestCoordinator(hub, StaticPool(testQuestions(10)), cfg, BotConfig{Accuracy: 1}, WithStatus(status.add))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A lobby member that proposes a match and never shows up for it.
	ghost := domain.Player{ID: "ghost", Name: "Ghost"}
	lobby := hub.Channel(LobbyChannel, ghost.ID)
	require.NoError(t, lobby.Subscribe(ctx))
	defer lobby.Unsubscribe(ctx)

	me := domain.Player{ID: "me", Name: "Me"}
	go func() {
		for ev := range lobby.Events() {
			if ev.Kind == realtime.PresenceJoin && ev.Key == me.ID {
				_ = lobby.Send(ctx, EventMatchFound, domain.NewMatchProposal(ghost, me))
				return
			}
		}
	}()

	res, err := c.Play(ctx, me, constantAnswer(0))
	require.NoError(t, err)
	assert.True(t, res.Opponent.IsBot)
	assert.Contains(t, status.all(), StatusText(domain.ErrOpponentNoShow))
	assert.Contains(t, status.all(), "Opponent found: Ghost")
}

func TestPlayRecorderFailureDoesNotFailBattle(t *testing.T) {
	hub := memory.NewHub(testLogger())
	cfg := fastConfig()
	cfg.FallbackWait = time.Millisecond
	cfg.QuestionCount = 2
	rec := &recorded{err: errors.New("db down")}
	c := newTestCoordinator(hub, StaticPool(testQuestions(2)), cfg, BotConfig{Accuracy: 0}, WithRecorder(rec))

	res, err := c.Play(context.Background(), domain.Player{ID: "u"}, constantAnswer(0))
	require.NoError(t, err)
	assert.Equal(t, 2, res.PlayerScore)
	assert.Equal(t, 0, res.OpponentScore)
}

func TestPlayCancelled(t *testing.T) {
	hub := memory.NewHub(testLogger())
	c := newTestCoordinator(hub, StaticPool(testQuestions(2)), fastConfig(), BotConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Play(ctx, domain.Player{ID: "u"}, constantAnswer(0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusText(t *testing.T) {
	cases := map[error]string{
		nil:                         "",
		domain.ErrLobbyUnavailable:  "Failed to connect to lobby",
		domain.ErrBattleUnavailable: "Failed to connect to battle",
		domain.ErrUnknownQuestion:   "Could not load battle questions",
		context.Canceled:            "Matchmaking cancelled",
		errors.New("boom"):          "Something went wrong, please try again",
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusText(err), "%v", err)
	}

	forfeit := domain.BattleResult{Opponent: domain.Opponent{Name: "Bob (Forfeited)"}, PlayerScore: 2, OpponentScore: 1, Forfeit: true}
	assert.Equal(t, "You won, Bob (Forfeited) left the battle (2-1)", ResultText(forfeit))
	draw := domain.BattleResult{Opponent: domain.Opponent{Name: "Max"}, PlayerScore: 3, OpponentScore: 3}
	assert.Equal(t, "It's a draw 3-3 against Max", ResultText(draw))
	assert.Equal(t, "Opponent found: Bob", MatchedText(domain.Match{Opponent: domain.Opponent{Name: "Bob"}}))
}
