package app

import (
	"context"
	"fmt"
	"math/rand"

	"theory-battle/internal/domain"
)

// QuestionPool loads the full question pool (from cache/backing store).
type QuestionPool interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

// sampleQuestions returns up to n distinct questions in random order. An
// empty pool yields an empty sample.
func sampleQuestions(rnd *rand.Rand, pool []domain.Question, n int) []domain.Question {
	if n > len(pool) {
		n = len(pool)
	}
	if n <= 0 {
		return nil
	}
	out := make([]domain.Question, 0, n)
	for _, i := range rnd.Perm(len(pool))[:n] {
		out = append(out, pool[i])
	}
	return out
}

// questionIDs lists ids in order.
func questionIDs(qs []domain.Question) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

// resolveQuestions maps distributed ids back onto the local pool.
func resolveQuestions(pool []domain.Question, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, domain.ErrEmptyQuestionSet
	}
	byID := make(map[string]domain.Question, len(pool))
	for _, q := range pool {
		byID[q.ID] = q
	}
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, id)
		}
		out = append(out, q)
	}
	return out, nil
}

// StaticPool serves a fixed question list.
type StaticPool []domain.Question

func (p StaticPool) Questions(context.Context) ([]domain.Question, error) {
	return p, nil
}
