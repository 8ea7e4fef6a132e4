package fsrs

import "time"

// State represents a card's position in the memory lifecycle.
type State string

const (
	StateNew        State = "new"
	StateLearning   State = "learning"
	StateReview     State = "review"
	StateRelearning State = "relearning"
)

// Rating is the learner's self-graded review outcome.
type Rating int

const (
	RatingAgain Rating = 1
	RatingHard  Rating = 2
	RatingGood  Rating = 3
	RatingEasy  Rating = 4
)

// Valid reports whether the rating is one of the four FSRS grades.
func (r Rating) Valid() bool {
	return r >= RatingAgain && r <= RatingEasy
}

// Card holds the memory state of one reviewable item for one learner.
//
// Invariant: State == StateNew iff ReviewCount == 0 and LastReview == nil.
type Card struct {
	Stability      float64    `json:"stability"`      // days to 90% retention
	Difficulty     float64    `json:"difficulty"`     // 1..10
	Retrievability float64    `json:"retrievability"` // snapshot at last computation
	State          State      `json:"state"`
	LastReview     *time.Time `json:"last_review,omitempty"`
	ReviewCount    int        `json:"review_count"`
	LapseCount     int        `json:"lapse_count"`
}

// NewCard returns a fresh card that has never been reviewed.
func NewCard() Card {
	return Card{
		State:          StateNew,
		Retrievability: 1,
	}
}

// IsNew reports whether the card has never been reviewed.
func (c Card) IsNew() bool {
	return c.State == StateNew || c.ReviewCount == 0 || c.LastReview == nil
}

// CurrentRetrievability returns the probability of recall at now.
// New cards (and cards with no usable decay curve) always return 1.
func CurrentRetrievability(c Card, now time.Time) float64 {
	if c.IsNew() || c.Stability <= 0 {
		return 1
	}
	elapsed := now.Sub(*c.LastReview).Hours() / 24
	if elapsed <= 0 {
		return 1
	}
	return Retrievability(elapsed, c.Stability)
}

// Retrievability computes the forgetting-curve value R(t, S) for an
// elapsed time of t days against stability S. At t == S the result is
// approximately 0.9.
func Retrievability(elapsedDays, stability float64) float64 {
	if stability <= 0 {
		return 1
	}
	return pow(1+Factor*elapsedDays/stability, Decay)
}

// IsDue reports whether a card should be presented. New cards are always
// due; otherwise the card is due once now reaches dueDate.
func IsDue(c Card, dueDate, now time.Time) bool {
	if c.IsNew() {
		return true
	}
	return !now.Before(dueDate)
}
