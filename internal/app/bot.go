package app

import (
	"math/rand"
	"net/url"
	"sync"
	"time"

	"theory-battle/internal/domain"
)

var botNames = []string{
	"Lexi Lane", "Max Mirror", "Sally Signal", "Rory Roundabout",
	"Penny Parker", "Gus Gearstick", "Holly Hazard", "Zeb Crossing",
}

// ChatKind selects a pool of bot flavour lines.
type ChatKind string

const (
	ChatGreeting  ChatKind = "greeting"
	ChatCorrect   ChatKind = "correct"
	ChatIncorrect ChatKind = "incorrect"
	ChatWin       ChatKind = "win"
	ChatLose      ChatKind = "lose"
	ChatDraw      ChatKind = "draw"
)

var botChat = map[ChatKind][]string{
	ChatGreeting: {
		"Mirror, signal, manoeuvre... let's go!",
		"Hope you've read the Highway Code!",
		"Buckle up, this one's going to be close.",
	},
	ChatCorrect: {
		"Nice one!",
		"Textbook answer.",
		"You clearly know your road signs.",
	},
	ChatIncorrect: {
		"Ooh, not quite.",
		"Check your mirrors next time!",
		"That one catches everyone out.",
	},
	ChatWin: {
		"Well driven, you earned that pass.",
		"You left me in the slow lane!",
	},
	ChatLose: {
		"Better luck on the next drive!",
		"I'll give you a lift to revision.",
	},
	ChatDraw: {
		"Neck and neck to the finish line.",
		"A dead heat, rematch?",
	},
}

// BotConfig tunes the bot opponent. Accuracy is the probability of a correct
// answer and is used as given: zero yields a bot that is always wrong.
// DefaultBotConfig holds the production values.
type BotConfig struct {
	Accuracy float64
	ThinkMin time.Duration
	ThinkMax time.Duration
}

func DefaultBotConfig() BotConfig {
	return BotConfig{
		Accuracy: 0.75,
		ThinkMin: 500 * time.Millisecond,
		ThinkMax: 1500 * time.Millisecond,
	}
}

// Bot generates opponent answers, thinking delays, names and chat lines.
// All randomness flows through the injected source.
type Bot struct {
	cfg BotConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBot(cfg BotConfig, rnd *rand.Rand) *Bot {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.ThinkMax < cfg.ThinkMin {
		cfg.ThinkMax = cfg.ThinkMin
	}
	return &Bot{cfg: cfg, rnd: rnd}
}

// Answer returns the correct index with probability Accuracy, otherwise a
// uniformly chosen incorrect index.
func (b *Bot) Answer(q domain.Question) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rnd.Float64() < b.cfg.Accuracy {
		return q.CorrectAnswer
	}
	wrong := make([]int, 0, len(q.Options))
	for i := range q.Options {
		if i != q.CorrectAnswer {
			wrong = append(wrong, i)
		}
	}
	if len(wrong) == 0 {
		return q.CorrectAnswer
	}
	return wrong[b.rnd.Intn(len(wrong))]
}

// ThinkingDelay returns a uniform delay in [ThinkMin, ThinkMax].
func (b *Bot) ThinkingDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	span := int64(b.cfg.ThinkMax - b.cfg.ThinkMin)
	if span <= 0 {
		return b.cfg.ThinkMin
	}
	return b.cfg.ThinkMin + time.Duration(b.rnd.Int63n(span+1))
}

// Opponent synthesizes a bot opponent with a pooled name.
func (b *Bot) Opponent() domain.Opponent {
	b.mu.Lock()
	name := botNames[b.rnd.Intn(len(botNames))]
	b.mu.Unlock()
	return domain.Opponent{IsBot: true, Name: name, AvatarURL: BotAvatar(name)}
}

// Chat picks a flavour line of the given kind.
func (b *Bot) Chat(kind ChatKind) string {
	lines := botChat[kind]
	if len(lines) == 0 {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return lines[b.rnd.Intn(len(lines))]
}

// Sample draws n distinct questions from pool in random order.
func (b *Bot) Sample(pool []domain.Question, n int) []domain.Question {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sampleQuestions(b.rnd, pool, n)
}

// BotAvatar derives a stable avatar URL from a bot name.
func BotAvatar(name string) string {
	return "https://api.dicebear.com/7.x/bottts/svg?seed=" + url.QueryEscape(name)
}

// OutcomeChat maps a final outcome to the bot's reaction. The bot reacts from
// its own side, so a player win is a bot loss.
func OutcomeChat(o domain.Outcome) ChatKind {
	switch o {
	case domain.OutcomeWin:
		return ChatLose
	case domain.OutcomeLose:
		return ChatWin
	default:
		return ChatDraw
	}
}
