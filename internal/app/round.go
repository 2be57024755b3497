package app

import "theory-battle/internal/domain"

// RoundResult is the scoring of one resolved round.
type RoundResult struct {
	Index           int  `json:"index"`
	CorrectAnswer   int  `json:"correctAnswer"`
	PlayerAnswer    int  `json:"playerAnswer"`
	OpponentAnswer  int  `json:"opponentAnswer"`
	PlayerCorrect   bool `json:"playerCorrect"`
	OpponentCorrect bool `json:"opponentCorrect"`
}

// Rounds is the per-battle round state owned by a single battle loop.
type Rounds struct {
	questions      []domain.Question
	index          int
	playerAnswer   *int
	opponentAnswer *int
	playerScore    int
	opponentScore  int
	over           bool
	// pendingOpponent holds a peer answer that arrived for the next round
	// while the current one was still on display.
	pendingOpponent *int
}

func NewRounds(questions []domain.Question) *Rounds {
	return &Rounds{questions: questions}
}

func (r *Rounds) Total() int { return len(r.questions) }

func (r *Rounds) Index() int { return r.index }

// Finished reports whether the cursor reached the end.
func (r *Rounds) Finished() bool { return r.index >= len(r.questions) }

// Over reports whether the current round has been resolved.
func (r *Rounds) Over() bool { return r.over }

func (r *Rounds) Scores() (player, opponent int) { return r.playerScore, r.opponentScore }

func (r *Rounds) PlayerAnswer() *int { return copyInt(r.playerAnswer) }

func (r *Rounds) OpponentAnswer() *int { return copyInt(r.opponentAnswer) }

// Current returns the question being played.
func (r *Rounds) Current() (domain.Question, bool) {
	if r.Finished() {
		return domain.Question{}, false
	}
	return r.questions[r.index], true
}

// SetPlayerAnswer records the local answer for the current round.
func (r *Rounds) SetPlayerAnswer(answer int) error {
	q, ok := r.Current()
	if !ok {
		return domain.ErrBattleFinished
	}
	if r.over {
		return domain.ErrRoundClosed
	}
	if r.playerAnswer != nil {
		return domain.ErrAlreadyAnswered
	}
	if answer < 0 || answer >= len(q.Options) {
		return domain.ErrInvalidAnswer
	}
	r.playerAnswer = &answer
	return nil
}

// SetOpponentAnswer records the opponent's answer. An answer arriving while
// the round is on display belongs to the next round and is held until Advance.
func (r *Rounds) SetOpponentAnswer(answer int) error {
	if r.Finished() {
		return domain.ErrBattleFinished
	}
	if r.over {
		if r.pendingOpponent != nil {
			return domain.ErrAlreadyAnswered
		}
		r.pendingOpponent = &answer
		return nil
	}
	if r.opponentAnswer != nil {
		return domain.ErrAlreadyAnswered
	}
	r.opponentAnswer = &answer
	return nil
}

// Resolve scores the current round on the transition into "both answered".
// It reports false when the round is incomplete or was already resolved, so
// repeated calls never double-score.
func (r *Rounds) Resolve() (RoundResult, bool) {
	if r.over || r.playerAnswer == nil || r.opponentAnswer == nil {
		return RoundResult{}, false
	}
	q, ok := r.Current()
	if !ok {
		return RoundResult{}, false
	}
	res := RoundResult{
		Index:           r.index,
		CorrectAnswer:   q.CorrectAnswer,
		PlayerAnswer:    *r.playerAnswer,
		OpponentAnswer:  *r.opponentAnswer,
		PlayerCorrect:   q.IsCorrect(*r.playerAnswer),
		OpponentCorrect: q.IsCorrect(*r.opponentAnswer),
	}
	if res.PlayerCorrect {
		r.playerScore++
	}
	if res.OpponentCorrect {
		r.opponentScore++
	}
	r.over = true
	return res, true
}

// Advance moves past a resolved round and reports whether the battle is done.
func (r *Rounds) Advance() bool {
	if !r.over {
		return r.Finished()
	}
	r.index++
	r.over = false
	r.playerAnswer = nil
	r.opponentAnswer = r.pendingOpponent
	r.pendingOpponent = nil
	return r.Finished()
}

// Played counts resolved rounds.
func (r *Rounds) Played() int {
	if r.over {
		return r.index + 1
	}
	return r.index
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
