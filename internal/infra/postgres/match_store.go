package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"theory-battle/internal/domain"
)

// MatchStore persists finished battles in battle_results.
type MatchStore struct {
	pool *pgxpool.Pool
}

func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

func (s *MatchStore) RecordBattle(ctx context.Context, userID string, r domain.BattleResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO battle_results (
			user_id, battle_id, opponent_id, opponent_name, opponent_is_bot,
			player_score, opponent_score, total_questions, rounds_played, forfeit, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, battle_id) DO NOTHING`,
		userID, r.BattleID, r.Opponent.ID, r.Opponent.Name, r.Opponent.IsBot,
		r.PlayerScore, r.OpponentScore, r.TotalQuestions, r.RoundsPlayed, r.Forfeit, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record battle: %w", err)
	}
	return nil
}

// ListBattles returns up to limit results for userID, newest first.
func (s *MatchStore) ListBattles(ctx context.Context, userID string, limit int) ([]domain.BattleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT battle_id, opponent_id, opponent_name, opponent_is_bot,
			player_score, opponent_score, total_questions, rounds_played, forfeit, finished_at
		FROM battle_results
		WHERE user_id = $1
		ORDER BY finished_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list battles: %w", err)
	}
	defer rows.Close()

	var out []domain.BattleRecord
	for rows.Next() {
		rec := domain.BattleRecord{UserID: userID}
		if err := rows.Scan(
			&rec.BattleID, &rec.Opponent.ID, &rec.Opponent.Name, &rec.Opponent.IsBot,
			&rec.PlayerScore, &rec.OpponentScore, &rec.TotalQuestions, &rec.RoundsPlayed,
			&rec.Forfeit, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
