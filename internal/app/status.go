package app

import (
	"context"
	"errors"
	"fmt"

	"theory-battle/internal/domain"
)

const StatusSearching = "Searching for an opponent..."

// StatusText maps a matchmaking or battle error to a user-facing line.
func StatusText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrLobbyUnavailable):
		return "Failed to connect to lobby"
	case errors.Is(err, domain.ErrBattleUnavailable):
		return "Failed to connect to battle"
	case errors.Is(err, domain.ErrOpponentNoShow):
		return "Opponent did not join, searching again..."
	case errors.Is(err, domain.ErrUnknownQuestion), errors.Is(err, domain.ErrEmptyQuestionSet):
		return "Could not load battle questions"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Matchmaking cancelled"
	default:
		return "Something went wrong, please try again"
	}
}

func MatchedText(m domain.Match) string {
	if m.Opponent.IsBot {
		return fmt.Sprintf("No players available, you're up against %s", m.Opponent.Name)
	}
	return fmt.Sprintf("Opponent found: %s", m.Opponent.Name)
}

func ResultText(r domain.BattleResult) string {
	var verdict string
	switch r.Outcome() {
	case domain.OutcomeWin:
		verdict = "You won"
	case domain.OutcomeLose:
		verdict = "You lost"
	default:
		verdict = "It's a draw"
	}
	if r.Forfeit {
		return fmt.Sprintf("%s, %s left the battle (%d-%d)", verdict, r.Opponent.Name, r.PlayerScore, r.OpponentScore)
	}
	return fmt.Sprintf("%s %d-%d against %s", verdict, r.PlayerScore, r.OpponentScore, r.Opponent.Name)
}
