package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"theory-battle/internal/domain"
	"theory-battle/internal/realtime"
)

// Phase is the coarse state of a battle as shown to the player.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhasePlaying   Phase = "playing"
	PhaseRoundOver Phase = "round-over"
	PhaseFinished  Phase = "finished"
)

const forfeitSuffix = " (Forfeited)"

// BattleState is a snapshot published after every change.
type BattleState struct {
	BattleID       string               `json:"battleId"`
	Phase          Phase                `json:"phase"`
	Opponent       domain.Opponent      `json:"opponent"`
	Host           bool                 `json:"host"`
	QuestionIndex  int                  `json:"questionIndex"`
	TotalQuestions int                  `json:"totalQuestions"`
	Question       *domain.Question     `json:"question,omitempty"`
	PlayerAnswer   *int                 `json:"playerAnswer,omitempty"`
	OpponentAnswer *int                 `json:"opponentAnswer,omitempty"`
	PlayerScore    int                  `json:"playerScore"`
	OpponentScore  int                  `json:"opponentScore"`
	LastRound      *RoundResult         `json:"lastRound,omitempty"`
	BotChat        string               `json:"botChat,omitempty"`
	Result         *domain.BattleResult `json:"result,omitempty"`
}

type answerRequest struct {
	index int
	reply chan error
}

// Battle runs one match to completion. Against a human the two clients sync
// over a channel named after the battle id; against a bot everything is local.
// All round state is owned by the goroutine inside Run.
type Battle struct {
	me     domain.Player
	match  domain.Match
	host   bool
	client realtime.Client
	pool   QuestionPool
	bot    *Bot
	cfg    Config
	log    logrus.FieldLogger
	now    func() time.Time

	started atomic.Bool
	answers chan answerRequest
	updates chan BattleState
	done    chan struct{}

	phase  Phase
	rounds *Rounds
	last   *RoundResult
	chat   string
	result *domain.BattleResult
}

func newBattle(me domain.Player, match domain.Match, client realtime.Client, pool QuestionPool, bot *Bot, cfg Config, log logrus.FieldLogger) *Battle {
	return &Battle{
		me:      me,
		match:   match,
		host:    !match.Opponent.IsBot && domain.IsHost(me.ID, match.Opponent.ID),
		client:  client,
		pool:    pool,
		bot:     bot,
		cfg:     cfg.withDefaults(),
		log:     log.WithFields(logrus.Fields{"battle_id": match.BattleID, "user_id": me.ID}),
		now:     time.Now,
		answers: make(chan answerRequest),
		updates: make(chan BattleState, 16),
		done:    make(chan struct{}),
		phase:   PhaseLoading,
	}
}

// Updates streams state snapshots. When the reader lags, older snapshots are
// dropped. The channel is closed when Run returns.
func (b *Battle) Updates() <-chan BattleState { return b.updates }

// SubmitAnswer records the local answer for the current round.
func (b *Battle) SubmitAnswer(ctx context.Context, index int) error {
	req := answerRequest{index: index, reply: make(chan error, 1)}
	select {
	case b.answers <- req:
	case <-b.done:
		return domain.ErrBattleFinished
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Run plays the battle until completion, forfeit, no-show or ctx
// cancellation. It may be called once.
func (b *Battle) Run(ctx context.Context) (domain.BattleResult, error) {
	if !b.started.CompareAndSwap(false, true) {
		return domain.BattleResult{}, domain.ErrBattleFinished
	}
	defer close(b.updates)
	defer close(b.done)

	if b.match.Opponent.IsBot {
		return b.runBot(ctx)
	}
	return b.runPeer(ctx)
}

func (b *Battle) runBot(ctx context.Context) (domain.BattleResult, error) {
	pool, err := b.awaitPool(ctx)
	if err != nil {
		return domain.BattleResult{}, err
	}
	b.rounds = NewRounds(b.bot.Sample(pool, b.cfg.QuestionCount))
	b.phase = PhasePlaying
	b.chat = b.bot.Chat(ChatGreeting)
	b.publish()

	var think, display alarm
	defer think.Stop()
	defer display.Stop()
	botAnswer := 0

	for {
		select {
		case <-ctx.Done():
			return domain.BattleResult{}, ctx.Err()

		case req := <-b.answers:
			err := b.rounds.SetPlayerAnswer(req.index)
			req.reply <- err
			if err != nil {
				continue
			}
			// The bot only starts thinking once the player has committed.
			q, _ := b.rounds.Current()
			botAnswer = b.bot.Answer(q)
			think.Start(b.bot.ThinkingDelay())
			b.publish()

		case <-think.C():
			think.Fired()
			if err := b.rounds.SetOpponentAnswer(botAnswer); err != nil {
				b.log.WithError(err).Debug("bot answer rejected")
				continue
			}
			if res, ok := b.resolve(&display); ok {
				if res.PlayerCorrect {
					b.chat = b.bot.Chat(ChatCorrect)
				} else {
					b.chat = b.bot.Chat(ChatIncorrect)
				}
			}
			b.publish()

		case <-display.C():
			display.Fired()
			if b.rounds.Advance() {
				return b.finish(false), nil
			}
			b.phase = PhasePlaying
			b.publish()
		}
	}
}

// awaitPool blocks in the loading phase until the pool has questions.
func (b *Battle) awaitPool(ctx context.Context) ([]domain.Question, error) {
	var retry alarm
	defer retry.Stop()
	for {
		pool, err := b.pool.Questions(ctx)
		if err == nil && len(pool) > 0 {
			return pool, nil
		}
		b.log.WithError(err).Warn("question pool unavailable, retrying")
		b.publish()
		retry.Start(b.cfg.PoolRetry)

	wait:
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case req := <-b.answers:
				req.reply <- domain.ErrRoundClosed
			case <-retry.C():
				retry.Fired()
				break wait
			}
		}
	}
}

func (b *Battle) runPeer(ctx context.Context) (domain.BattleResult, error) {
	opp := b.match.Opponent
	log := b.log.WithFields(logrus.Fields{"opponent": opp.ID, "host": b.host})

	ch := b.client.Channel(b.match.BattleID, b.me.ID)
	defer func() {
		if err := ch.Unsubscribe(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("leave battle channel")
		}
	}()
	if err := ch.Subscribe(ctx); err != nil {
		return domain.BattleResult{}, fmt.Errorf("%w: %w", domain.ErrBattleUnavailable, err)
	}
	if err := ch.Track(ctx, b.me.Presence()); err != nil {
		return domain.BattleResult{}, fmt.Errorf("%w: %w", domain.ErrBattleUnavailable, err)
	}
	b.publish()

	var start, retry, display alarm
	defer start.Stop()
	defer retry.Stop()
	defer display.Stop()
	start.Start(b.cfg.StartTimeout)

	peerSeen := false
	var pendingIDs []string
	// An answer can overtake a guest still waiting on its question pool.
	var earlyAnswer *int

	// setup builds the round state once its inputs are ready: the host needs
	// the peer on the channel, the guest needs the host's question ids.
	setup := func() error {
		if b.rounds != nil || (b.host && !peerSeen) || (!b.host && pendingIDs == nil) {
			return nil
		}
		pool, err := b.pool.Questions(ctx)
		if err != nil || len(pool) == 0 {
			log.WithError(err).Warn("question pool unavailable, retrying")
			retry.Start(b.cfg.PoolRetry)
			return nil
		}
		var questions []domain.Question
		if b.host {
			questions = b.bot.Sample(pool, b.cfg.QuestionCount)
			payload := domain.QuestionsPayload{QuestionIDs: questionIDs(questions)}
			if err := ch.Send(ctx, EventQuestions, payload); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrBattleUnavailable, err)
			}
			log.WithField("questions", len(questions)).Debug("distributed questions")
		} else {
			questions, err = resolveQuestions(pool, pendingIDs)
			if err != nil {
				return err
			}
		}
		b.rounds = NewRounds(questions)
		b.phase = PhasePlaying
		if earlyAnswer != nil {
			if err := b.rounds.SetOpponentAnswer(*earlyAnswer); err != nil {
				log.WithError(err).Debug("early opponent answer rejected")
			}
			earlyAnswer = nil
		}
		b.publish()
		return nil
	}

	// peerGone ends the battle when the opponent disappears. Leaving after the
	// final round was scored is a normal finish.
	peerGone := func() domain.BattleResult {
		if b.rounds != nil && b.rounds.Over() && b.rounds.Index() == b.rounds.Total()-1 {
			b.rounds.Advance()
			return b.finish(false)
		}
		log.Info("opponent left, battle forfeited")
		return b.finish(true)
	}

	for {
		select {
		case <-ctx.Done():
			return domain.BattleResult{}, ctx.Err()

		case <-start.C():
			start.Fired()
			log.Warn("opponent never joined battle channel")
			return domain.BattleResult{}, domain.ErrOpponentNoShow

		case <-retry.C():
			retry.Fired()
			if err := setup(); err != nil {
				return domain.BattleResult{}, err
			}

		case <-display.C():
			display.Fired()
			if b.rounds.Advance() {
				return b.finish(false), nil
			}
			b.phase = PhasePlaying
			b.publish()

		case req := <-b.answers:
			if b.rounds == nil {
				req.reply <- domain.ErrRoundClosed
				continue
			}
			err := b.rounds.SetPlayerAnswer(req.index)
			req.reply <- err
			if err != nil {
				continue
			}
			payload := domain.AnswerPayload{UserID: b.me.ID, AnswerIndex: req.index}
			if err := ch.Send(ctx, EventAnswer, payload); err != nil {
				log.WithError(err).Warn("broadcast answer")
			}
			b.resolve(&display)
			b.publish()

		case ev, ok := <-ch.Events():
			if !ok {
				return domain.BattleResult{}, fmt.Errorf("%w: channel closed", domain.ErrBattleUnavailable)
			}
			switch ev.Kind {
			case realtime.PresenceSync:
				if !ev.Presence.Has(opp.ID) {
					if peerSeen {
						return peerGone(), nil
					}
					continue
				}
				if !peerSeen {
					peerSeen = true
					start.Stop()
					log.Debug("opponent joined battle channel")
					if err := setup(); err != nil {
						return domain.BattleResult{}, err
					}
				}

			case realtime.PresenceLeave:
				// The opponent may still hold another subscription under the same key.
				if peerSeen && ev.Key == opp.ID && !ch.PresenceState().Has(opp.ID) {
					return peerGone(), nil
				}

			case realtime.Broadcast:
				switch ev.Name {
				case EventQuestions:
					if b.host || b.rounds != nil || pendingIDs != nil {
						continue
					}
					var p domain.QuestionsPayload
					if err := ev.Decode(&p); err != nil || len(p.QuestionIDs) == 0 {
						log.WithError(err).Warn("malformed questions payload")
						continue
					}
					pendingIDs = p.QuestionIDs
					if err := setup(); err != nil {
						return domain.BattleResult{}, err
					}

				case EventAnswer:
					var p domain.AnswerPayload
					if err := ev.Decode(&p); err != nil {
						log.WithError(err).Warn("malformed answer payload")
						continue
					}
					// Own echo and strangers are ignored.
					if p.UserID != opp.ID {
						continue
					}
					if b.rounds == nil {
						idx := p.AnswerIndex
						earlyAnswer = &idx
						continue
					}
					if err := b.rounds.SetOpponentAnswer(p.AnswerIndex); err != nil {
						log.WithError(err).Debug("opponent answer rejected")
						continue
					}
					b.resolve(&display)
					b.publish()
				}
			}
		}
	}
}

// resolve scores the current round if both sides answered and starts the
// display delay.
func (b *Battle) resolve(display *alarm) (RoundResult, bool) {
	res, ok := b.rounds.Resolve()
	if !ok {
		return res, false
	}
	b.last = &res
	b.phase = PhaseRoundOver
	display.Start(b.cfg.RoundDelay)
	return res, true
}

func (b *Battle) finish(forfeit bool) domain.BattleResult {
	res := domain.BattleResult{
		BattleID:   b.match.BattleID,
		Opponent:   b.match.Opponent,
		Forfeit:    forfeit,
		FinishedAt: b.now(),
	}
	if b.rounds != nil {
		res.PlayerScore, res.OpponentScore = b.rounds.Scores()
		res.TotalQuestions = b.rounds.Total()
		res.RoundsPlayed = b.rounds.Played()
	}
	if forfeit {
		res.Opponent.Name += forfeitSuffix
	}
	if b.match.Opponent.IsBot {
		b.chat = b.bot.Chat(OutcomeChat(res.Outcome()))
	}
	b.phase = PhaseFinished
	b.result = &res
	b.publish()
	return res
}

func (b *Battle) snapshot() BattleState {
	s := BattleState{
		BattleID: b.match.BattleID,
		Phase:    b.phase,
		Opponent: b.match.Opponent,
		Host:     b.host,
		BotChat:  b.chat,
	}
	if b.last != nil {
		last := *b.last
		s.LastRound = &last
	}
	if b.result != nil {
		res := *b.result
		s.Result = &res
	}
	if b.rounds != nil {
		s.QuestionIndex = b.rounds.Index()
		s.TotalQuestions = b.rounds.Total()
		if q, ok := b.rounds.Current(); ok {
			s.Question = &q
		}
		s.PlayerAnswer = b.rounds.PlayerAnswer()
		s.OpponentAnswer = b.rounds.OpponentAnswer()
		s.PlayerScore, s.OpponentScore = b.rounds.Scores()
	}
	return s
}

// publish drops the oldest queued snapshot when the reader lags.
func (b *Battle) publish() {
	s := b.snapshot()
	select {
	case b.updates <- s:
		return
	default:
	}
	select {
	case <-b.updates:
	default:
	}
	select {
	case b.updates <- s:
	default:
	}
}
