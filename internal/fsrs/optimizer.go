package fsrs

// ReviewStats aggregates a learner's review history for the weekly
// weight-tuning pass.
type ReviewStats struct {
	TotalReviews      int
	TotalLapses       int
	AvgRetrievability float64
	AvgStability      float64
	AvgDifficulty     float64
}

// TunedParams is the output of OptimizeWeights: an adjusted weight vector
// plus the diagnostics the tuning batch records.
type TunedParams struct {
	Params
	LapseRate       float64
	AdjustmentScore float64
}

// OptimizeWeights nudges a learner's weight vector against their observed
// lapse rate, retrievability and difficulty. It is a bounded heuristic,
// not a fitted model: every multiplier is clamped, so repeated weekly runs
// cannot push a weight outside a fixed band around the baseline.
//
// All outputs are finite for any non-negative input, including an empty
// history (TotalReviews == 0 yields a zero lapse rate).
func OptimizeWeights(base Params, stats ReviewStats) TunedParams {
	w := make([]float64, WeightCount)
	copy(w, base.Weights)

	lapseRate := 0.0
	if stats.TotalReviews > 0 {
		lapseRate = float64(stats.TotalLapses) / float64(stats.TotalReviews)
	}

	lapsePressure := clamp((lapseRate-0.15)/0.2, -1, 1)
	retrievabilityPressure := clamp((stats.AvgRetrievability-0.82)/0.25, -1, 1)
	difficultyPressure := clamp((stats.AvgDifficulty-5.5)/3, -1, 1)

	score := clamp(lapsePressure-0.5*retrievabilityPressure+0.15*difficultyPressure, -1, 1)

	// A positive score means the learner is struggling: slow stability
	// growth (w8, w10), strengthen post-lapse recovery (w11, w14), widen
	// the Hard/Easy spread (w15, w16) and lower the retention target.
	w[8] *= clamp(1-0.12*score, 0.85, 1.15)
	w[10] *= clamp(1-0.12*score, 0.85, 1.15)
	w[11] *= clamp(1+0.15*score, 0.85, 1.2)
	w[14] *= clamp(1+0.15*score, 0.85, 1.2)
	w[15] = clamp(w[15]*clamp(1-0.1*score, 0.8, 1.2), 0.08, 0.9)
	w[16] = clamp(w[16]*clamp(1-0.1*score, 0.85, 1.15), 1.5, 4.5)

	target := clamp(0.9+0.05*score, MinTargetRetention, MaxTargetRetention)

	return TunedParams{
		Params:          Params{Weights: w, TargetRetention: target},
		LapseRate:       lapseRate,
		AdjustmentScore: score,
	}
}
