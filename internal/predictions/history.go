package predictions

import (
	"context"
	"math/rand/v2"

	"emberwatch/internal/types"
)

// maxDisplayJitter is the half-width of the cosmetic probability perturbation
// applied to history reads.
const maxDisplayJitter = 7.5

// defaultHistoryLimit bounds a history page when the caller does not specify.
const defaultHistoryLimit = 50

// HistoryEntry is a stored prediction prepared for display. DisplayProbability
// is the perturbed value; Record keeps the persisted truth.
type HistoryEntry struct {
	Record             *types.PredictionRecord
	DisplayProbability float64
}

// jitterFn produces a value in [-1, 1); injected for deterministic tests.
type jitterFn func() float64

// History returns the user's predictions newest-first, each with a display
// probability perturbed by up to ±7.5 points and clamped to [0,100].
//
// The perturbation is purely cosmetic: it is computed at read time, differs
// between reads, and is never written back. The stored probability is the
// authoritative value and is returned unchanged alongside the display value.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	return s.historyWithJitter(ctx, userID, limit, func() float64 {
		return rand.Float64()*2 - 1
	})
}

func (s *Service) historyWithJitter(ctx context.Context, userID string, limit int, jitter jitterFn) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	records, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, HistoryEntry{
			Record:             rec,
			DisplayProbability: perturbProbability(rec.Probability, jitter()),
		})
	}
	return entries, nil
}

// perturbProbability offsets p by jitter*maxDisplayJitter and clamps the
// result to the probability scale. jitter must be in [-1, 1].
func perturbProbability(p, jitter float64) float64 {
	return types.ClampProbability(p + jitter*maxDisplayJitter)
}
