package adaptive

import "github.com/abhisek/learnloop/internal/session"

// defaultStageBalance is the loop default used for neutral learners.
var defaultStageBalance = StageBalance{Encounter: 0.2, Analysis: 0.6, Return: 0.2}

// quickStageBalance is fixed for quick sessions regardless of HBS.
var quickStageBalance = StageBalance{Encounter: 0.1, Analysis: 0.7, Return: 0.2}

// StageBalanceFor maps a hemisphere balance score onto stage time
// fractions. A strongly negative HBS (accuracy-dominant learner) gets
// more encounter/return time; a strongly positive one gets more
// analysis.
func StageBalanceFor(sessionType session.Type, hbs float64) StageBalance {
	if sessionType == session.TypeQuick {
		return quickStageBalance
	}
	switch {
	case hbs < -0.3:
		return StageBalance{Encounter: 0.30, Analysis: 0.40, Return: 0.30}
	case hbs < -0.1:
		return StageBalance{Encounter: 0.27, Analysis: 0.46, Return: 0.27}
	case hbs <= 0.1:
		return defaultStageBalance
	case hbs <= 0.3:
		return StageBalance{Encounter: 0.22, Analysis: 0.56, Return: 0.22}
	default:
		return StageBalance{Encounter: 0.20, Analysis: 0.60, Return: 0.20}
	}
}

// AnalysisBudgetFor resolves the analysis item budget: an explicit
// positive budget wins, otherwise the session-type default applies.
func AnalysisBudgetFor(sessionType session.Type, explicit int) int {
	if explicit > 0 {
		return explicit
	}
	switch sessionType {
	case session.TypeQuick:
		return 8
	case session.TypeExtended:
		return 28
	default:
		return 16
	}
}

// levelRatios returns the review and base interleave ratios for a
// difficulty level.
func levelRatios(level int) (reviewRatio, interleaveRatio float64) {
	switch level {
	case 1:
		return 0.70, 0.10
	case 2:
		return 0.60, 0.20
	case 3:
		return 0.55, 0.25
	default:
		return 0.50, 0.35
	}
}

// interleaveRatioFor adjusts the base interleave ratio by session type:
// quick sessions cap it, extended sessions stretch it.
func interleaveRatioFor(sessionType session.Type, level int) float64 {
	_, base := levelRatios(level)
	switch sessionType {
	case session.TypeQuick:
		if base > 0.15 {
			return 0.15
		}
		return base
	case session.TypeExtended:
		stretched := base + 0.05
		if stretched > 0.40 {
			return 0.40
		}
		return stretched
	default:
		return base
	}
}

// promotionThresholds gates level promotion on average retrievability of
// reviewed primary items. Level 4 is terminal.
var promotionThresholds = map[int]float64{
	1: 0.72,
	2: 0.80,
	3: 0.86,
}

// NextLevel decides whether the learner is promoted. avgRetrievability
// must come from primary, non-new, reviewed items; hasReviewed is false
// when no such items exist.
func NextLevel(level int, avgRetrievability float64, hasReviewed bool) int {
	if level >= 4 {
		return 4
	}
	if level < 1 {
		level = 1
	}
	if !hasReviewed {
		return level
	}
	if avgRetrievability >= promotionThresholds[level] {
		return level + 1
	}
	return level
}
