package domain

import "time"

// Player is an authenticated user taking part in matchmaking.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// LobbyPresence is the payload each searching user tracks on the lobby channel.
type LobbyPresence struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Presence converts a player into its lobby presence payload.
func (p Player) Presence() LobbyPresence {
	return LobbyPresence{UserID: p.ID, Name: p.Name, AvatarURL: p.AvatarURL}
}

// Player converts a presence payload back into a player.
func (p LobbyPresence) Player() Player {
	return Player{ID: p.UserID, Name: p.Name, AvatarURL: p.AvatarURL}
}

// MatchProposal is broadcast on the lobby to pair two searching users.
type MatchProposal struct {
	BattleID string `json:"battleId"`
	Player1  Player `json:"player1"`
	Player2  Player `json:"player2"`
}

// Names reports whether the proposal includes the given user.
func (m MatchProposal) Names(userID string) bool {
	return m.Player1.ID == userID || m.Player2.ID == userID
}

// OpponentOf returns the participant that is not userID.
func (m MatchProposal) OpponentOf(userID string) Player {
	if m.Player1.ID == userID {
		return m.Player2
	}
	return m.Player1
}

// QuestionsPayload carries the host's question selection.
type QuestionsPayload struct {
	QuestionIDs []string `json:"questionIds"`
}

// AnswerPayload is broadcast whenever a participant answers the current question.
type AnswerPayload struct {
	UserID      string `json:"userId"`
	AnswerIndex int    `json:"answerIndex"`
}

// Opponent is either a real peer or a synthesized bot. Bots carry no ID.
type Opponent struct {
	IsBot     bool   `json:"isBot"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// HumanOpponent wraps a peer player.
func HumanOpponent(p Player) Opponent {
	return Opponent{ID: p.ID, Name: p.Name, AvatarURL: p.AvatarURL}
}

// Match is the outcome of matchmaking: where to battle and against whom.
type Match struct {
	BattleID string   `json:"battleId"`
	Opponent Opponent `json:"opponent"`
}

// Option is one answer choice; either field may be empty.
type Option struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Question is an immutable multiple-choice theory question.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"question"`
	Options       []Option `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Category      string   `json:"category"`
	Explanation   string   `json:"explanation"`
}

// IsCorrect reports whether answer matches the correct option index.
func (q Question) IsCorrect(answer int) bool {
	return answer == q.CorrectAnswer
}

// Outcome is the final verdict of a battle from the local player's side.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	OutcomeDraw Outcome = "draw"
)

// BattleResult is reported once a battle completes or is forfeited.
type BattleResult struct {
	BattleID       string    `json:"battleId"`
	Opponent       Opponent  `json:"opponent"`
	PlayerScore    int       `json:"playerScore"`
	OpponentScore  int       `json:"opponentScore"`
	TotalQuestions int       `json:"totalQuestions"`
	RoundsPlayed   int       `json:"roundsPlayed"`
	Forfeit        bool      `json:"forfeit"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// Outcome derives win/lose/draw from the final scores. A forfeit is always a win.
func (r BattleResult) Outcome() Outcome {
	switch {
	case r.Forfeit || r.PlayerScore > r.OpponentScore:
		return OutcomeWin
	case r.PlayerScore < r.OpponentScore:
		return OutcomeLose
	default:
		return OutcomeDraw
	}
}

// BattleRecord is a persisted battle result for one user.
type BattleRecord struct {
	UserID string `json:"userId"`
	BattleResult
}
