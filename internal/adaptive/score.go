package adaptive

import (
	"time"

	"github.com/abhisek/learnloop/internal/fsrs"
)

// candidate is an analysis item with its computed memory features.
type candidate struct {
	item           AnalysisItem
	isNew          bool
	isDue          bool
	isOverdue      bool
	retrievability float64
	similarity     float64 // against the primary topic tag set
	score          float64
}

// classify derives the due/new/overdue features for an item from its
// memory card. Items without a card, or with a never-reviewed card, are
// new.
func classify(item AnalysisItem, card fsrs.Card, hasCard bool, now time.Time) (isNew, isDue, isOverdue bool, r float64) {
	if !hasCard || card.State == fsrs.StateNew {
		return true, false, false, 1
	}
	r = fsrs.CurrentRetrievability(card, now)
	isDue = card.State == fsrs.StateLearning || card.State == fsrs.StateRelearning || r < 0.9
	isOverdue = isDue && r < 0.7
	return false, isDue, isOverdue, r
}

// similarity is tag overlap normalized by the larger tag set. Empty sets
// never match.
func similarity(tags []string, primary map[string]bool) float64 {
	if len(tags) == 0 || len(primary) == 0 {
		return 0
	}
	overlap := 0
	for _, t := range tags {
		if primary[t] {
			overlap++
		}
	}
	denom := len(tags)
	if len(primary) > denom {
		denom = len(primary)
	}
	return float64(overlap) / float64(denom)
}

// scoreCandidate combines the urgency boosts. Overdue items dominate
// (scaled by how far below the 0.7 floor they are), due items follow,
// related off-topic items get a similarity boost and new items a small
// penalty so reviews win ties.
func scoreCandidate(c *candidate, primaryTopic string) {
	score := 0.0
	if c.isOverdue {
		score += (0.7 - c.retrievability) * 100
	}
	if c.isDue {
		score += (1 - c.retrievability) * 20
	}
	if c.item.TopicID != primaryTopic {
		score += c.similarity * 8
	}
	if c.isNew {
		score -= 2
	}
	c.score = score
}

// primaryTagSet is the union of similarity tags across the primary
// topic's candidates.
func primaryTagSet(pools []TopicPool, primaryTopic string) map[string]bool {
	set := make(map[string]bool)
	for _, pool := range pools {
		if pool.TopicID != primaryTopic {
			continue
		}
		for _, item := range pool.Items {
			for _, tag := range item.SimilarityTags {
				set[tag] = true
			}
		}
	}
	return set
}
