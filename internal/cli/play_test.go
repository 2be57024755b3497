package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theory-battle/internal/app"
	"theory-battle/internal/config"
	"theory-battle/internal/domain"
)

func stateFor(q domain.Question) app.BattleState {
	return app.BattleState{Phase: app.PhasePlaying, Question: &q, QuestionIndex: 2, TotalQuestions: 10}
}

func TestTerminalAnswererRetriesInvalidInput(t *testing.T) {
	q := sampleQuestions()[0]
	var out bytes.Buffer
	a := newTerminalAnswerer(context.Background(), strings.NewReader("x\n9\n2\n"), &out)

	got, err := a.Answer(context.Background(), stateFor(q))
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Contains(t, out.String(), "Question 3/10")
	assert.Equal(t, 2, strings.Count(out.String(), "Enter a number between 1 and"))
}

func TestTerminalAnswererStopsAtEOF(t *testing.T) {
	a := newTerminalAnswerer(context.Background(), strings.NewReader(""), io.Discard)
	_, err := a.Answer(context.Background(), stateFor(sampleQuestions()[1]))
	assert.ErrorIs(t, err, io.EOF)
}

func TestBattlePrinterPrintsEachRoundOnce(t *testing.T) {
	var out bytes.Buffer
	p := &battlePrinter{out: &out}
	q := sampleQuestions()[0]
	round := &app.RoundResult{Index: 0, CorrectAnswer: q.CorrectAnswer, PlayerAnswer: q.CorrectAnswer, PlayerCorrect: true, OpponentAnswer: 0}
	s := app.BattleState{
		Phase:       app.PhaseRoundOver,
		Opponent:    domain.Opponent{Name: "Max Mirror", IsBot: true},
		Question:    &q,
		LastRound:   round,
		PlayerScore: 1,
		BotChat:     "Nice one!",
	}
	p.observe(s)
	p.observe(s)

	assert.Equal(t, 1, strings.Count(out.String(), "Correct!"))
	assert.Equal(t, 1, strings.Count(out.String(), "Nice one!"))
	assert.Contains(t, out.String(), "Score 1-0")
}

func TestBattleConfigDefaults(t *testing.T) {
	var cfg config.Config
	battle, bot := battleConfig(cfg)
	assert.Equal(t, app.DefaultConfig(), battle)
	assert.Equal(t, app.DefaultBotConfig(), bot)

	cfg.Battle.QuestionCount = 5
	cfg.Battle.RoundDelay = "1s"
	cfg.Battle.BotAccuracy = 1
	battle, bot = battleConfig(cfg)
	assert.Equal(t, 5, battle.QuestionCount)
	assert.Equal(t, "1s", battle.RoundDelay.String())
	assert.Equal(t, 1.0, bot.Accuracy)
}

func TestSampleQuestionsAreWellFormed(t *testing.T) {
	seen := map[string]bool{}
	qs := sampleQuestions()
	require.GreaterOrEqual(t, len(qs), app.DefaultConfig().QuestionCount)
	for _, q := range qs {
		assert.False(t, seen[q.ID], "duplicate id %s", q.ID)
		seen[q.ID] = true
		assert.GreaterOrEqual(t, len(q.Options), 2, q.ID)
		assert.True(t, q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options), q.ID)
	}
}
