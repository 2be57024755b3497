package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"theory-battle/internal/domain"
	"theory-battle/internal/metrics"
	"theory-battle/internal/realtime"
)

// LobbyChannel is the well-known channel where searching users meet.
const LobbyChannel = "battle-lobby"

// Broadcast event names shared with other clients.
const (
	EventMatchFound = "match-found"
	EventQuestions  = "questions"
	EventAnswer     = "answer"
)

// Matchmaker pairs searching users over the lobby channel and falls back to a
// bot opponent when nobody turns up in time.
type Matchmaker struct {
	client  realtime.Client
	bot     *Bot
	cfg     Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	active map[activeBattle]struct{}
}

// activeBattle is a battle one local user is currently playing. Two users of
// the same Matchmaker share a battle id but claim it separately.
type activeBattle struct {
	userID   string
	battleID string
}

func NewMatchmaker(client realtime.Client, bot *Bot, cfg Config, log logrus.FieldLogger, m *metrics.Metrics) *Matchmaker {
	return &Matchmaker{
		client:  client,
		bot:     bot,
		cfg:     cfg.withDefaults(),
		log:     log,
		metrics: m,
		now:     time.Now,
		active:  make(map[activeBattle]struct{}),
	}
}

// FindMatch joins the lobby as me and blocks until a human pairing, the bot
// fallback or ctx cancellation. Exactly one of those ends the search; the
// lobby subscription and the fallback timer are released on every path.
func (m *Matchmaker) FindMatch(ctx context.Context, me domain.Player) (domain.Match, error) {
	log := m.log.WithField("user_id", me.ID)
	started := m.now()

	lobby := m.client.Channel(LobbyChannel, me.ID)
	defer func() {
		if err := lobby.Unsubscribe(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("leave lobby")
		}
	}()

	if err := lobby.Subscribe(ctx); err != nil {
		return domain.Match{}, fmt.Errorf("%w: %w", domain.ErrLobbyUnavailable, err)
	}
	if err := lobby.Track(ctx, me.Presence()); err != nil {
		return domain.Match{}, fmt.Errorf("%w: %w", domain.ErrLobbyUnavailable, err)
	}
	log.Debug("searching for opponent")

	var fallback alarm
	fallback.Start(m.cfg.FallbackWait)
	defer fallback.Stop()

	nominee := ""
	for {
		select {
		case <-ctx.Done():
			return domain.Match{}, ctx.Err()

		case <-fallback.C():
			fallback.Fired()
			match := domain.Match{
				BattleID: domain.BotBattleID(me.ID, m.now()),
				Opponent: m.bot.Opponent(),
			}
			log.WithField("battle_id", match.BattleID).Info("no opponent found, matched with bot")
			return m.claim(me.ID, match, started), nil

		case ev, ok := <-lobby.Events():
			if !ok {
				return domain.Match{}, fmt.Errorf("%w: lobby closed", domain.ErrLobbyUnavailable)
			}
			switch ev.Kind {
			case realtime.PresenceSync:
				if nominee != "" && !ev.Presence.Has(nominee) {
					log.WithField("nominee", nominee).Debug("nominee left lobby")
					nominee = ""
					fallback.Start(m.cfg.FallbackWait)
				}
				others := ev.Presence.Others(me.ID)
				if nominee != "" || len(others) == 0 {
					continue
				}
				peer := presencePlayer(others[0])
				proposal := domain.NewMatchProposal(me, peer)
				if err := lobby.Send(ctx, EventMatchFound, proposal); err != nil {
					log.WithError(err).Warn("broadcast match proposal")
					continue
				}
				nominee = peer.ID
				fallback.Stop()
				log.WithFields(logrus.Fields{"nominee": peer.ID, "battle_id": proposal.BattleID}).Debug("proposed match")

			case realtime.Broadcast:
				if ev.Name != EventMatchFound {
					continue
				}
				var proposal domain.MatchProposal
				if err := ev.Decode(&proposal); err != nil {
					log.WithError(err).Warn("malformed match proposal")
					continue
				}
				if !proposal.Names(me.ID) || m.isActive(me.ID, proposal.BattleID) {
					continue
				}
				fallback.Stop()
				match := domain.Match{
					BattleID: proposal.BattleID,
					Opponent: domain.HumanOpponent(proposal.OpponentOf(me.ID)),
				}
				log.WithFields(logrus.Fields{"battle_id": match.BattleID, "opponent": match.Opponent.ID}).Info("matched with player")
				return m.claim(me.ID, match, started), nil
			}
		}
	}
}

// Release forgets userID's finished battle so a later rematch under the same
// id is accepted.
func (m *Matchmaker) Release(userID, battleID string) {
	m.mu.Lock()
	delete(m.active, activeBattle{userID: userID, battleID: battleID})
	m.mu.Unlock()
}

func (m *Matchmaker) isActive(userID, battleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[activeBattle{userID: userID, battleID: battleID}]
	return ok
}

func (m *Matchmaker) claim(userID string, match domain.Match, started time.Time) domain.Match {
	m.mu.Lock()
	m.active[activeBattle{userID: userID, battleID: match.BattleID}] = struct{}{}
	m.mu.Unlock()
	m.metrics.ObserveMatch(match.Opponent.IsBot, m.now().Sub(started))
	return match
}

// presencePlayer decodes the first tracked payload of a lobby member, falling
// back to the bare presence key.
func presencePlayer(e realtime.PresenceEntry) domain.Player {
	for _, meta := range e.Metas {
		ev := realtime.Event{Payload: meta}
		var p domain.LobbyPresence
		if err := ev.Decode(&p); err == nil && p.UserID != "" {
			return p.Player()
		}
	}
	return domain.Player{ID: e.Key}
}
