package adaptive

import (
	"fmt"
	"math"
	"sort"
)

// BuildPlan runs the full selection pipeline: classify and score every
// candidate at or below the learner's level, draw from the urgency pools
// in order, interleave related off-topic items at a regular stride, and
// decide level promotion. The pipeline is deterministic: ties keep
// insertion order.
func BuildPlan(input PlanInput) Plan {
	level := clampLevel(input.CurrentLevel)
	budget := AnalysisBudgetFor(input.SessionType, input.AnalysisItemBudget)
	reviewRatio, _ := levelRatios(level)
	interleaveRatio := interleaveRatioFor(input.SessionType, level)

	reviewTarget := int(math.Round(float64(budget) * reviewRatio))
	interleaveTarget := int(math.Round(float64(budget) * interleaveRatio))
	overdueCap := int(math.Round(float64(budget) * 0.25))

	candidates := collectCandidates(input, level)
	selected := drawPools(candidates, input.PrimaryTopicID, budget, reviewTarget, interleaveTarget, overdueCap)
	ordered := orderSelections(selected)

	avgR, hasReviewed := primaryReviewedAverage(candidates, input.PrimaryTopicID)
	next := NextLevel(level, avgR, hasReviewed)

	plan := Plan{
		Level:         level,
		NextLevel:     next,
		StageBalance:  StageBalanceFor(input.SessionType, input.HemisphereBalance),
		SelectedItems: ordered,
	}
	plan.Rationale = buildRationale(plan, budget, reviewTarget, interleaveTarget, avgR, hasReviewed)
	return plan
}

// collectCandidates flattens the topic pools into classified, scored
// candidates, dropping items above the learner's level. Primary topic
// items come first so stable sorts keep them ahead on ties.
func collectCandidates(input PlanInput, level int) []*candidate {
	primaryTags := primaryTagSet(input.AvailableTopics, input.PrimaryTopicID)

	pools := make([]TopicPool, 0, len(input.AvailableTopics))
	for _, pool := range input.AvailableTopics {
		if pool.TopicID == input.PrimaryTopicID {
			pools = append(pools, pool)
		}
	}
	for _, pool := range input.AvailableTopics {
		if pool.TopicID != input.PrimaryTopicID {
			pools = append(pools, pool)
		}
	}

	var out []*candidate
	seen := make(map[string]bool)
	for _, pool := range pools {
		for _, item := range pool.Items {
			if item.DifficultyLevel > level || seen[item.ID] {
				continue
			}
			seen[item.ID] = true

			card, hasCard := input.MemoryStates[item.ID]
			isNew, isDue, isOverdue, r := classify(item, card, hasCard, input.Now)
			c := &candidate{
				item:           item,
				isNew:          isNew,
				isDue:          isDue,
				isOverdue:      isOverdue,
				retrievability: r,
			}
			if item.TopicID != input.PrimaryTopicID {
				c.similarity = similarity(item.SimilarityTags, primaryTags)
			}
			scoreCandidate(c, input.PrimaryTopicID)
			out = append(out, c)
		}
	}
	return out
}

// drawPools fills the budget from disjoint pools in priority order.
// Later pools never displace earlier selections.
func drawPools(candidates []*candidate, primaryTopic string, budget, reviewTarget, interleaveTarget, overdueCap int) []SelectedItem {
	taken := make(map[string]bool)
	var selected []SelectedItem

	take := func(c *candidate, reason SelectionReason) {
		taken[c.item.ID] = true
		selected = append(selected, SelectedItem{
			Item:           c.item,
			Reason:         reason,
			Score:          c.score,
			Retrievability: c.retrievability,
		})
	}

	// 1. Overdue primary reviews, capped at a quarter of the budget.
	for _, c := range byScoreDesc(candidates, func(c *candidate) bool {
		return c.item.TopicID == primaryTopic && c.isOverdue && !taken[c.item.ID]
	}) {
		if len(selected) >= budget || len(selected) >= overdueCap {
			break
		}
		take(c, ReasonOverdue)
	}

	// 2. Due primary reviews, not overdue, up to the review target.
	for _, c := range byScoreDesc(candidates, func(c *candidate) bool {
		return c.item.TopicID == primaryTopic && c.isDue && !c.isOverdue && !taken[c.item.ID]
	}) {
		if len(selected) >= budget || len(selected) >= reviewTarget {
			break
		}
		take(c, ReasonDue)
	}

	// 3. New primary items, leaving room for the interleave reservation.
	newPrimaryCap := budget - len(selected) - interleaveTarget
	for _, c := range byScoreDesc(candidates, func(c *candidate) bool {
		return c.isNew && c.item.TopicID == primaryTopic && !taken[c.item.ID]
	}) {
		if newPrimaryCap <= 0 || len(selected) >= budget {
			break
		}
		take(c, ReasonNewPrimary)
		newPrimaryCap--
	}

	// 4. Related interleave: off-topic, eligible, similar, already seen.
	for _, c := range byScoreDesc(candidates, func(c *candidate) bool {
		return c.item.TopicID != primaryTopic &&
			c.item.InterleaveEligible &&
			c.similarity >= 0.5 &&
			!c.isNew &&
			!taken[c.item.ID]
	}) {
		if len(selected) >= budget {
			break
		}
		take(c, ReasonInterleaved)
	}

	// 5. Fill with primary items that are neither due nor overdue.
	for _, c := range byScoreDesc(candidates, func(c *candidate) bool {
		return c.item.TopicID == primaryTopic && !c.isDue && !c.isOverdue && !taken[c.item.ID]
	}) {
		if len(selected) >= budget {
			break
		}
		take(c, ReasonFill)
	}

	if len(selected) > budget {
		selected = selected[:budget]
	}
	return selected
}

// orderSelections emits the final queue order. Without interleaved items
// it is plain descending score; with them, interleaved items are placed
// every stride core items so related material is spaced through the
// session.
func orderSelections(selected []SelectedItem) []SelectedItem {
	var core, interleaved []SelectedItem
	for _, s := range selected {
		if s.Reason == ReasonInterleaved {
			interleaved = append(interleaved, s)
		} else {
			core = append(core, s)
		}
	}

	sort.SliceStable(core, func(i, j int) bool { return core[i].Score > core[j].Score })
	if len(interleaved) == 0 {
		return core
	}
	sort.SliceStable(interleaved, func(i, j int) bool { return interleaved[i].Score > interleaved[j].Score })

	stride := len(core) / len(interleaved)
	if stride < 1 {
		stride = 1
	}

	out := make([]SelectedItem, 0, len(selected))
	ci, ii := 0, 0
	for ci < len(core) || ii < len(interleaved) {
		for n := 0; n < stride && ci < len(core); n++ {
			out = append(out, core[ci])
			ci++
		}
		if ii < len(interleaved) {
			out = append(out, interleaved[ii])
			ii++
		}
		if ci >= len(core) {
			// Core exhausted: flush the remaining interleaved tail.
			for ; ii < len(interleaved); ii++ {
				out = append(out, interleaved[ii])
			}
		}
	}
	return out
}

// byScoreDesc filters candidates and stable-sorts them by descending
// score, preserving insertion order on ties.
func byScoreDesc(candidates []*candidate, keep func(*candidate) bool) []*candidate {
	var out []*candidate
	for _, c := range candidates {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// primaryReviewedAverage averages retrievability over primary, non-new,
// reviewed candidates. This is the promotion signal.
func primaryReviewedAverage(candidates []*candidate, primaryTopic string) (float64, bool) {
	sum, n := 0.0, 0
	for _, c := range candidates {
		if c.item.TopicID != primaryTopic || c.isNew {
			continue
		}
		sum += c.retrievability
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func buildRationale(plan Plan, budget, reviewTarget, interleaveTarget int, avgR float64, hasReviewed bool) []string {
	counts := plan.CountByReason()
	rationale := []string{
		fmt.Sprintf("budget %d: review target %d, interleave target %d", budget, reviewTarget, interleaveTarget),
		fmt.Sprintf("selected %d: overdue=%d due=%d new_primary=%d interleaved=%d fill=%d",
			len(plan.SelectedItems), counts[ReasonOverdue], counts[ReasonDue],
			counts[ReasonNewPrimary], counts[ReasonInterleaved], counts[ReasonFill]),
	}
	if !hasReviewed {
		rationale = append(rationale, fmt.Sprintf("level %d held: no reviewed primary items", plan.Level))
	} else if plan.NextLevel > plan.Level {
		rationale = append(rationale, fmt.Sprintf("promoted %d→%d: avg retrievability %.2f", plan.Level, plan.NextLevel, avgR))
	} else {
		rationale = append(rationale, fmt.Sprintf("level %d held: avg retrievability %.2f", plan.Level, avgR))
	}
	return rationale
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 4 {
		return 4
	}
	return level
}

// ComposeQueue builds the session queue from the per-stage item lists,
// deduplicating while keeping first occurrences.
func ComposeQueue(encounter, analysis, returnItems []string) []string {
	seen := make(map[string]bool)
	var queue []string
	for _, group := range [][]string{encounter, analysis, returnItems} {
		for _, id := range group {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			queue = append(queue, id)
		}
	}
	return queue
}
