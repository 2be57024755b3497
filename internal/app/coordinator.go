package app

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"theory-battle/internal/domain"
	"theory-battle/internal/metrics"
	"theory-battle/internal/realtime"
)

// MatchRecorder persists finished battles.
type MatchRecorder interface {
	RecordBattle(ctx context.Context, userID string, result domain.BattleResult) error
}

// MatchHistory lists a user's recorded battles, newest first.
type MatchHistory interface {
	ListBattles(ctx context.Context, userID string, limit int) ([]domain.BattleRecord, error)
}

// Answerer picks the local player's answer for the question in state.
type Answerer interface {
	Answer(ctx context.Context, state BattleState) (int, error)
}

// AnswerFunc adapts a function to Answerer.
type AnswerFunc func(ctx context.Context, state BattleState) (int, error)

func (f AnswerFunc) Answer(ctx context.Context, state BattleState) (int, error) { return f(ctx, state) }

// Coordinator drives one user from matchmaking through a finished battle.
type Coordinator struct {
	client     realtime.Client
	pool       QuestionPool
	bot        *Bot
	cfg        Config
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	recorder   MatchRecorder
	matchmaker *Matchmaker
	observe    func(BattleState)
	status     func(string)
}

type Option func(*Coordinator)

func WithRecorder(r MatchRecorder) Option { return func(c *Coordinator) { c.recorder = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithObserver receives every battle snapshot seen by the answer loop.
func WithObserver(fn func(BattleState)) Option { return func(c *Coordinator) { c.observe = fn } }

// WithStatus receives user-facing status lines.
func WithStatus(fn func(string)) Option { return func(c *Coordinator) { c.status = fn } }

func NewCoordinator(client realtime.Client, pool QuestionPool, bot *Bot, cfg Config, log logrus.FieldLogger, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:  client,
		pool:    pool,
		bot:     bot,
		cfg:     cfg.withDefaults(),
		log:     log,
		observe: func(BattleState) {},
		status:  func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.matchmaker = NewMatchmaker(client, bot, c.cfg, log, c.metrics)
	return c
}

func (c *Coordinator) Matchmaker() *Matchmaker { return c.matchmaker }

// NewBattle prepares a battle for a match found by the matchmaker.
func (c *Coordinator) NewBattle(me domain.Player, match domain.Match) *Battle {
	return newBattle(me, match, c.client, c.pool, c.bot, c.cfg, c.log)
}

// Play searches for an opponent, plays the battle with answerer and records
// the result. A paired opponent that never shows up sends the player back
// into matchmaking.
func (c *Coordinator) Play(ctx context.Context, me domain.Player, answerer Answerer) (domain.BattleResult, error) {
	for {
		c.status(StatusSearching)
		match, err := c.matchmaker.FindMatch(ctx, me)
		if err != nil {
			c.status(StatusText(err))
			return domain.BattleResult{}, err
		}
		c.status(MatchedText(match))

		result, err := c.runBattle(ctx, me, match, answerer)
		c.matchmaker.Release(me.ID, match.BattleID)
		if errors.Is(err, domain.ErrOpponentNoShow) {
			c.status(StatusText(err))
			continue
		}
		if err != nil {
			c.status(StatusText(err))
			return domain.BattleResult{}, err
		}

		c.complete(ctx, me, result)
		c.status(ResultText(result))
		return result, nil
	}
}

func (c *Coordinator) runBattle(ctx context.Context, me domain.Player, match domain.Match, answerer Answerer) (domain.BattleResult, error) {
	battle := c.NewBattle(me, match)
	g, gctx := errgroup.WithContext(ctx)
	driveCtx, stopDriving := context.WithCancel(gctx)
	defer stopDriving()

	var result domain.BattleResult
	g.Go(func() error {
		defer stopDriving()
		var err error
		result, err = battle.Run(gctx)
		return err
	})
	g.Go(func() error {
		c.drive(driveCtx, battle, answerer)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.BattleResult{}, err
	}
	return result, nil
}

// drive feeds snapshots to the observer and asks answerer once per question.
func (c *Coordinator) drive(ctx context.Context, battle *Battle, answerer Answerer) {
	answered := -1
	for state := range battle.Updates() {
		c.observe(state)
		if state.Phase != PhasePlaying || state.Question == nil || state.PlayerAnswer != nil || state.QuestionIndex == answered {
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		index, err := answerer.Answer(ctx, state)
		if err != nil {
			c.log.WithError(err).Debug("answerer stopped")
			continue
		}
		answered = state.QuestionIndex
		if err := battle.SubmitAnswer(ctx, index); err != nil {
			c.log.WithError(err).Debug("answer not accepted")
		}
	}
}

func (c *Coordinator) complete(ctx context.Context, me domain.Player, result domain.BattleResult) {
	c.metrics.ObserveBattle(string(result.Outcome()), result.Forfeit)
	c.log.WithFields(logrus.Fields{
		"battle_id":      result.BattleID,
		"user_id":        me.ID,
		"player_score":   result.PlayerScore,
		"opponent_score": result.OpponentScore,
		"forfeit":        result.Forfeit,
	}).Info("battle finished")
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordBattle(ctx, me.ID, result); err != nil {
		c.log.WithError(err).Warn("record battle")
	}
}
