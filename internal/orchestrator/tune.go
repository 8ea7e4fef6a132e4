package orchestrator

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/learnloop/internal/fsrs"
	"github.com/abhisek/learnloop/internal/store"
)

// tuneConcurrency bounds the parallel per-user tuning work.
const tuneConcurrency = 4

// TuneAllWeights runs the weekly weight-tuning batch: every learner
// with at least one reviewed memory row gets their FSRS weights nudged
// against their observed lapse rate and difficulty. Returns how many
// learners were tuned.
func (s *Service) TuneAllWeights(ctx context.Context) (int, error) {
	users, err := s.store.UsersWithReviews(ctx)
	if err != nil {
		return 0, internalErr("list users with reviews", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(tuneConcurrency)
	for _, userID := range users {
		g.Go(func() error {
			return s.tuneUser(ctx, userID)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(users), nil
}

// tuneUser recomputes one learner's weight override from their full
// review history.
func (s *Service) tuneUser(ctx context.Context, userID string) error {
	rows, err := s.store.AllMemoryRows(ctx, userID)
	if err != nil {
		return internalErr("load memory rows", err)
	}

	stats := reviewStats(rows)
	if stats.TotalReviews == 0 {
		return nil
	}

	base, err := s.paramsFor(ctx, userID)
	if err != nil {
		return err
	}
	tuned := fsrs.OptimizeWeights(base, stats)

	if err := s.store.UpsertFsrsParameters(ctx, store.FsrsParameters{
		UserID:          userID,
		Weights:         store.JSONFloats(tuned.Weights),
		TargetRetention: tuned.TargetRetention,
		UpdatedAt:       s.now(),
	}); err != nil {
		return internalErr("persist tuned parameters", err)
	}

	s.logger.Info("fsrs weights tuned",
		zap.String("user_id", userID),
		zap.Float64("lapse_rate", tuned.LapseRate),
		zap.Float64("adjustment_score", tuned.AdjustmentScore),
		zap.Float64("target_retention", tuned.TargetRetention),
	)
	return nil
}

// reviewStats aggregates a learner's memory rows into the optimizer's
// input shape. Only reviewed rows contribute to the averages.
func reviewStats(rows []store.FsrsMemoryRow) fsrs.ReviewStats {
	var stats fsrs.ReviewStats
	var rSum, sSum, dSum float64
	var reviewed int
	for _, r := range rows {
		stats.TotalReviews += r.ReviewCount
		stats.TotalLapses += r.LapseCount
		if r.ReviewCount > 0 {
			rSum += r.Retrievability
			sSum += r.Stability
			dSum += r.Difficulty
			reviewed++
		}
	}
	if reviewed > 0 {
		stats.AvgRetrievability = rSum / float64(reviewed)
		stats.AvgStability = sSum / float64(reviewed)
		stats.AvgDifficulty = dSum / float64(reviewed)
	}
	return stats
}
