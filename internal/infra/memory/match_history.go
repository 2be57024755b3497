package memory

import (
	"context"
	"sync"

	"theory-battle/internal/domain"
)

const defaultHistoryCap = 50

// MatchHistory keeps the most recent battle results per user in memory.
type MatchHistory struct {
	cap int

	mu      sync.RWMutex
	records map[string][]domain.BattleRecord
}

func NewMatchHistory() *MatchHistory {
	return &MatchHistory{
		cap:     defaultHistoryCap,
		records: make(map[string][]domain.BattleRecord),
	}
}

func (h *MatchHistory) RecordBattle(_ context.Context, userID string, result domain.BattleResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append(h.records[userID], domain.BattleRecord{UserID: userID, BattleResult: result})
	if len(list) > h.cap {
		list = list[len(list)-h.cap:]
	}
	h.records[userID] = list
	return nil
}

// ListBattles returns up to limit records, newest first. limit <= 0 means all.
func (h *MatchHistory) ListBattles(_ context.Context, userID string, limit int) ([]domain.BattleRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.records[userID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]domain.BattleRecord, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
