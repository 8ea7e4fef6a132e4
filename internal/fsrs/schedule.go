package fsrs

import (
	"fmt"
	"math"
	"time"
)

// Schedule is the result of rating a card: the new memory parameters and
// the next review date.
type Schedule struct {
	NextDue        time.Time `json:"next_due"`
	IntervalDays   int       `json:"interval_days"` // >= 1
	Stability      float64   `json:"stability"`
	Difficulty     float64   `json:"difficulty"`
	Retrievability float64   `json:"retrievability"` // at review time
	State          State     `json:"state"`
}

// ComputeSchedule rates a card and derives the next review without
// mutating the input. Pass DefaultParams() unless the learner has a tuned
// override.
func ComputeSchedule(c Card, rating Rating, now time.Time, p Params) (Schedule, error) {
	if !rating.Valid() {
		return Schedule{}, fmt.Errorf("invalid rating %d: must be 1-4", rating)
	}
	if len(p.Weights) != WeightCount {
		return Schedule{}, fmt.Errorf("invalid weight vector: got %d entries, want %d", len(p.Weights), WeightCount)
	}
	w := p.Weights

	var stability, difficulty float64
	retrievability := CurrentRetrievability(c, now)

	if c.IsNew() {
		stability = initialStability(w, rating)
		difficulty = initialDifficulty(w, rating)
	} else {
		difficulty = nextDifficulty(w, c.Difficulty, rating)
		if rating == RatingAgain {
			stability = lapseStability(w, c.Difficulty, c.Stability, retrievability)
		} else {
			stability = recallStability(w, c.Difficulty, c.Stability, retrievability, rating)
		}
	}

	interval := intervalDays(stability, p.TargetRetention)

	return Schedule{
		NextDue:        now.AddDate(0, 0, interval),
		IntervalDays:   interval,
		Stability:      stability,
		Difficulty:     difficulty,
		Retrievability: retrievability,
		State:          nextState(c, rating),
	}, nil
}

// Apply folds a schedule back into a card, producing the post-review card.
// The lapse counter increments only on an Again rating.
func Apply(c Card, s Schedule, rating Rating, now time.Time) Card {
	next := c
	next.Stability = s.Stability
	next.Difficulty = s.Difficulty
	next.Retrievability = s.Retrievability
	next.State = s.State
	t := now
	next.LastReview = &t
	next.ReviewCount = c.ReviewCount + 1
	if rating == RatingAgain {
		next.LapseCount = c.LapseCount + 1
	}
	return next
}

func initialStability(w []float64, rating Rating) float64 {
	return math.Max(1, w[rating-1])
}

func initialDifficulty(w []float64, rating Rating) float64 {
	return clamp(w[4]-math.Exp(w[5]*float64(rating-1))+1, 1, 10)
}

func nextDifficulty(w []float64, d float64, rating Rating) float64 {
	target := d - w[6]*float64(rating-3)
	return clamp(w[7]*initialDifficulty(w, RatingGood)+(1-w[7])*target, 1, 10)
}

// recallStability grows stability after a successful review. The Hard
// penalty (w15) and Easy bonus (w16) bracket the Good multiplier, which
// keeps S(Hard) < S(Good) < S(Easy) at fixed inputs.
func recallStability(w []float64, d, s, r float64, rating Rating) float64 {
	hardPenalty := 1.0
	if rating == RatingHard {
		hardPenalty = w[15]
	}
	easyBonus := 1.0
	if rating == RatingEasy {
		easyBonus = w[16]
	}
	growth := math.Exp(w[8]) *
		(11 - d) *
		math.Pow(s, -w[9]) *
		(math.Exp(w[10]*(1-r)) - 1) *
		hardPenalty *
		easyBonus
	return s * (growth + 1)
}

func lapseStability(w []float64, d, s, r float64) float64 {
	next := w[11] *
		math.Pow(d, -w[12]) *
		(math.Pow(s+1, w[13]) - 1) *
		math.Exp(w[14]*(1-r))
	return math.Max(1, next)
}

// intervalDays converts stability to a whole-day interval at the target
// retention. Never less than one day.
func intervalDays(stability, targetRetention float64) int {
	raw := (stability / Factor) * (math.Pow(targetRetention, 1/Decay) - 1)
	days := int(math.Round(raw))
	if days < 1 {
		return 1
	}
	return days
}

func nextState(c Card, rating Rating) State {
	if c.IsNew() {
		if rating == RatingAgain {
			return StateLearning
		}
		return StateReview
	}
	if rating == RatingAgain {
		return StateRelearning
	}
	return StateReview
}
