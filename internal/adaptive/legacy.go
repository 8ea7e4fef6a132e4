package adaptive

import "sort"

// SmallPlanInput feeds the small-pool selector used for level 1 and 2
// topics with only a handful of items.
type SmallPlanInput struct {
	Input PlanInput
	// LearningCount is how many items the learner currently has in the
	// learning state for the primary topic.
	LearningCount int
}

// BuildSmallPlan is the simplified selector for small pools. At level 1
// it picks at most five items and introduces new material only while
// fewer than three items are in learning. At level 2 it uses a 60/40
// review/new split with at most five new items. Scoring is shared with
// the full pipeline.
func BuildSmallPlan(in SmallPlanInput) Plan {
	input := in.Input
	level := clampLevel(input.CurrentLevel)
	candidates := collectCandidates(input, level)

	reviews := byScoreDesc(candidates, func(c *candidate) bool {
		return !c.isNew && c.item.TopicID == input.PrimaryTopicID
	})
	news := byScoreDesc(candidates, func(c *candidate) bool {
		return c.isNew && c.item.TopicID == input.PrimaryTopicID
	})

	var selected []SelectedItem
	take := func(c *candidate, reason SelectionReason) {
		selected = append(selected, SelectedItem{
			Item:           c.item,
			Reason:         reason,
			Score:          c.score,
			Retrievability: c.retrievability,
		})
	}

	if level <= 1 {
		for _, c := range reviews {
			if len(selected) >= 5 {
				break
			}
			take(c, reviewReason(c))
		}
		if in.LearningCount < 3 {
			for _, c := range news {
				if len(selected) >= 5 {
					break
				}
				take(c, ReasonNewPrimary)
			}
		}
	} else {
		budget := AnalysisBudgetFor(input.SessionType, input.AnalysisItemBudget)
		reviewCap := int(float64(budget)*0.6 + 0.5)
		newCap := budget - reviewCap
		if newCap > 5 {
			newCap = 5
		}
		for _, c := range reviews {
			if len(selected) >= reviewCap {
				break
			}
			take(c, reviewReason(c))
		}
		for _, c := range news {
			if newCap <= 0 || len(selected) >= budget {
				break
			}
			take(c, ReasonNewPrimary)
			newCap--
		}
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Score > selected[j].Score })

	avgR, hasReviewed := primaryReviewedAverage(candidates, input.PrimaryTopicID)
	return Plan{
		Level:         level,
		NextLevel:     NextLevel(level, avgR, hasReviewed),
		StageBalance:  StageBalanceFor(input.SessionType, input.HemisphereBalance),
		SelectedItems: selected,
		Rationale:     []string{"small-pool selector"},
	}
}

func reviewReason(c *candidate) SelectionReason {
	switch {
	case c.isOverdue:
		return ReasonOverdue
	case c.isDue:
		return ReasonDue
	default:
		return ReasonFill
	}
}
