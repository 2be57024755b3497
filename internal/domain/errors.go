package domain

import "errors"

var (
	// ErrLobbyUnavailable is returned when the lobby channel cannot be joined.
	ErrLobbyUnavailable = errors.New("failed to connect to lobby")
	// ErrBattleUnavailable is returned when the battle channel cannot be joined.
	ErrBattleUnavailable = errors.New("failed to connect to battle")
	// ErrOpponentNoShow means the paired opponent never appeared on the battle channel.
	ErrOpponentNoShow = errors.New("opponent did not join the battle")
	// ErrUnknownQuestion means the host distributed a question id missing from the local pool.
	ErrUnknownQuestion = errors.New("question not found in pool")
	// ErrEmptyQuestionSet is returned when a battle would start without questions.
	ErrEmptyQuestionSet = errors.New("no questions available")
	// ErrRoundClosed is returned when answering while no round accepts answers.
	ErrRoundClosed = errors.New("round is not accepting answers")
	// ErrAlreadyAnswered is returned on a second answer for the same round.
	ErrAlreadyAnswered = errors.New("already answered this round")
	// ErrInvalidAnswer is returned for an option index outside the question.
	ErrInvalidAnswer = errors.New("answer index out of range")
	// ErrBattleFinished is returned when interacting with a completed battle.
	ErrBattleFinished = errors.New("battle already finished")
)
