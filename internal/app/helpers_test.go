package app

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"theory-battle/internal/domain"
	"theory-battle/internal/infra/memory"
	"theory-battle/internal/logging"
	"theory-battle/internal/realtime"
)

// testQuestions builds n four-option questions whose correct answer is 0.
func testQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:   fmt.Sprintf("q%d", i),
			Text: fmt.Sprintf("Question %d", i),
			Options: []domain.Option{
				{Text: "right"}, {Text: "wrong"}, {Text: "wrong"}, {Text: "wrong"},
			},
			CorrectAnswer: 0,
			Category:      "Alertness",
		}
	}
	return qs
}

func testLogger() logrus.FieldLogger { return logging.Discard() }

func fastConfig() Config {
	return Config{
		QuestionCount: 10,
		FallbackWait:  2 * time.Second,
		RoundDelay:    time.Millisecond,
		StartTimeout:  2 * time.Second,
		PoolRetry:     5 * time.Millisecond,
	}
}

func newTestCoordinator(hub *memory.Hub, pool QuestionPool, cfg Config, botCfg BotConfig, opts ...Option) *Coordinator {
	bot := NewBot(botCfg, rand.New(rand.NewSource(1)))
	return NewCoordinator(hub, pool, bot, cfg, testLogger(), opts...)
}

// waitState reads snapshots until match returns true.
func waitState(t *testing.T, updates <-chan BattleState, match func(BattleState) bool) BattleState {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				t.Fatalf("updates closed before expected state")
			}
			if match(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for battle state")
		}
	}
}

// waitEvent reads channel events until match returns true.
func waitEvent(t *testing.T, ch realtime.Channel, match func(realtime.Event) bool) realtime.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				t.Fatalf("channel %s closed", ch.Name())
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event on %s", ch.Name())
		}
	}
}
