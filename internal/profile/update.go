package profile

import (
	"math"
	"sort"
	"time"
)

// RiskThresholds parameterize the burnout heuristic. They have no
// validation corpus behind them, so deployments tune them via
// configuration rather than code.
type RiskThresholds struct {
	// FrequencySpikePerWeek is the weekly session count treated as a
	// strain signal.
	FrequencySpikePerWeek int
	// AccuracyFloor flags accuracy below the learner's baseline.
	AccuracyFloor float64
	// LatencyTrendCeiling flags a rising response-latency trend.
	LatencyTrendCeiling float64
}

// DefaultRiskThresholds returns the shipped heuristic values.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		FrequencySpikePerWeek: 10,
		AccuracyFloor:         0.5,
		LatencyTrendCeiling:   0.15,
	}
}

// Update folds one session observation into the profile using the
// default risk thresholds. The input profile is not mutated.
func Update(prev Profile, obs Observation) Profile {
	return UpdateWith(prev, obs, DefaultRiskThresholds())
}

// UpdateWith is Update with caller-supplied risk thresholds.
func UpdateWith(prev Profile, obs Observation, risk RiskThresholds) Profile {
	next := clone(prev)
	updateBehavioral(&next.Behavioral, obs)
	updateCognitive(&next.Cognitive, obs)
	updateMotivational(&next.Motivational, next.Behavioral, obs, risk)
	return next
}

func updateBehavioral(b *Behavioral, obs Observation) {
	first := b.TotalSessions == 0
	b.TotalSessions++
	b.SessionsLast7d = obs.SessionsLast7d
	b.SessionsLast30d = obs.SessionsLast30d

	b.DurationEwmaS = ewma(b.DurationEwmaS, float64(obs.DurationS), first)
	if obs.LatencyMeanMs > 0 {
		prevLatency := b.LatencyMeanMs
		b.LatencyMeanMs = ewma(b.LatencyMeanMs, obs.LatencyMeanMs, first || prevLatency == 0)
		if prevLatency > 0 {
			b.LatencyTrend = ewma(b.LatencyTrend, (obs.LatencyMeanMs-prevLatency)/prevLatency, first)
		}
	}

	hour := obs.CompletedAt.Hour()
	b.HourCounts[hour]++
	b.PreferredHour = preferredHour(b.HourCounts)

	if obs.Responses > 0 {
		rate := float64(obs.HelpRequests) / float64(obs.Responses)
		b.HelpRequestRate = ewma(b.HelpRequestRate, rate, first)
	}

	if total := sumDurations(obs.StageDurationsMs); total > 0 {
		if b.StageTimeRatio == nil {
			b.StageTimeRatio = map[string]float64{}
		}
		for stage, ms := range obs.StageDurationsMs {
			b.StageTimeRatio[stage] = ewma(b.StageTimeRatio[stage], float64(ms)/float64(total), first)
		}
	}

	if corr, gap, ok := confidenceStats(obs.ConfidencePairs); ok {
		b.ConfidenceAccCorr = ewma(b.ConfidenceAccCorr, corr, first)
		b.CalibrationGap = ewma(b.CalibrationGap, gap, first)
	}
}

func updateCognitive(c *Cognitive, obs Observation) {
	first := len(c.HbsHistory) == 0
	c.HemisphereBalance = ewma(c.HemisphereBalance, obs.Hbs, first)
	c.HbsHistory = appendCapped(c.HbsHistory, obs.Hbs, 30)

	c.ModalityPreferences = normalizeSimplex(accumulate(c.ModalityPreferences, obs.ModalityCounts))

	if _, gap, ok := confidenceStats(obs.ConfidencePairs); ok {
		c.MetacognitiveAcc = ewma(c.MetacognitiveAcc, 1-math.Abs(gap), first)
	}

	c.LearningVelocity = ewma(c.LearningVelocity, obs.MasteryDelta, first)
	if obs.DifficultyTier >= 1 {
		if c.VelocityByTier == nil {
			c.VelocityByTier = map[int]float64{}
		}
		_, seen := c.VelocityByTier[obs.DifficultyTier]
		c.VelocityByTier[obs.DifficultyTier] = ewma(c.VelocityByTier[obs.DifficultyTier], obs.MasteryDelta, !seen)
	}

	strongest, weakest := rankedKeys(obs.AssessmentTypes)
	if len(strongest) > 0 {
		c.StrongestAssessments = strongest
		c.WeakestAssessments = weakest
	}
	if obs.TopicID != "" {
		c.StrongestTopics = mergeTopicRank(c.StrongestTopics, obs.TopicID, obs.AvgScore >= 0.7)
		c.WeakestTopics = mergeTopicRank(c.WeakestTopics, obs.TopicID, obs.AvgScore < 0.5)
	}
}

func updateMotivational(m *Motivational, b Behavioral, obs Observation, risk RiskThresholds) {
	first := len(m.EngagementHistory) == 0

	engagement := weeklyEngagement(obs)
	week := obs.CompletedAt.Truncate(7 * 24 * time.Hour)
	if n := len(m.EngagementHistory); n > 0 && m.EngagementHistory[n-1].WeekStart.Equal(week) {
		// Same week: keep the higher score.
		if engagement > m.EngagementHistory[n-1].Score {
			m.EngagementHistory[n-1].Score = engagement
		}
	} else {
		m.EngagementHistory = append(m.EngagementHistory, WeekScore{WeekStart: week, Score: engagement})
		if len(m.EngagementHistory) > 8 {
			m.EngagementHistory = m.EngagementHistory[len(m.EngagementHistory)-8:]
		}
	}
	m.WeeklyEngagement = m.EngagementHistory[len(m.EngagementHistory)-1].Score
	m.EngagementTrend = engagementTrend(m.EngagementHistory)

	tolerance := float64(obs.DifficultyTier) / 4
	if obs.Abandoned {
		tolerance *= 0.5
	}
	m.ChallengeTolerance = ewma(m.ChallengeTolerance, tolerance, first)

	if obs.Abandoned && obs.AbandonedStage != "" {
		if m.AbandonmentByStage == nil {
			m.AbandonmentByStage = map[string]int{}
		}
		m.AbandonmentByStage[obs.AbandonedStage]++
	}

	m.DropoutRisk = dropoutRisk(m.EngagementTrend, obs.SessionsLast7d, obs.Abandoned)
	m.BurnoutRisk = burnoutRisk(b, obs, risk)
}

// weeklyEngagement is a bounded 0..1 score for the week containing the
// session: frequency dominates, accuracy moderates.
func weeklyEngagement(obs Observation) float64 {
	freq := math.Min(1, float64(obs.SessionsLast7d)/5)
	acc := 0.5
	if obs.Accuracy != nil {
		acc = *obs.Accuracy
	}
	return clamp01(0.7*freq + 0.3*acc)
}

// engagementTrend fits the last 4 weekly scores; slope thresholds at
// ±0.05 per week.
func engagementTrend(history []WeekScore) TrendLabel {
	n := len(history)
	if n < 2 {
		return TrendStable
	}
	window := history
	if n > 4 {
		window = history[n-4:]
	}
	slope := linearSlope(window)
	switch {
	case slope > 0.05:
		return TrendIncreasing
	case slope < -0.05:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// linearSlope is the least-squares slope of score over sample index.
func linearSlope(window []WeekScore) float64 {
	n := float64(len(window))
	var sumX, sumY, sumXY, sumXX float64
	for i, w := range window {
		x := float64(i)
		sumX += x
		sumY += w.Score
		sumXY += x * w.Score
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func dropoutRisk(trend TrendLabel, sessionsLast7d int, abandoned bool) RiskLabel {
	signals := 0
	if trend == TrendDeclining {
		signals++
	}
	if sessionsLast7d <= 1 {
		signals++
	}
	if abandoned {
		signals++
	}
	switch {
	case signals >= 3:
		return RiskHigh
	case signals == 2:
		return RiskModerate
	default:
		return RiskLow
	}
}

// burnoutRisk counts simultaneous strain signals: a frequency spike,
// accuracy below the learner's baseline, and rising latency.
func burnoutRisk(b Behavioral, obs Observation, risk RiskThresholds) RiskLabel {
	signals := 0
	if obs.SessionsLast7d >= risk.FrequencySpikePerWeek {
		signals++
	}
	if obs.Accuracy != nil && b.TotalSessions > 3 && *obs.Accuracy < risk.AccuracyFloor {
		signals++
	}
	if b.LatencyTrend > risk.LatencyTrendCeiling {
		signals++
	}
	switch {
	case signals >= 3:
		return RiskHigh
	case signals == 2:
		return RiskModerate
	default:
		return RiskLow
	}
}

// confidenceStats returns the confidence-accuracy correlation and the
// calibration gap (mean confidence minus accuracy), both on [−1, 1].
func confidenceStats(pairs []ConfidencePair) (corr, gap float64, ok bool) {
	if len(pairs) == 0 {
		return 0, 0, false
	}
	var sumC, sumA float64
	for _, p := range pairs {
		sumC += (float64(p.Confidence) - 1) / 4 // 1..5 → 0..1
		if p.Correct {
			sumA++
		}
	}
	n := float64(len(pairs))
	meanC, meanA := sumC/n, sumA/n
	gap = meanC - meanA

	var cov, varC, varA float64
	for _, p := range pairs {
		c := (float64(p.Confidence)-1)/4 - meanC
		a := -meanA
		if p.Correct {
			a = 1 - meanA
		}
		cov += c * a
		varC += c * c
		varA += a * a
	}
	if varC == 0 || varA == 0 {
		return 0, gap, true
	}
	return cov / math.Sqrt(varC*varA), gap, true
}

// normalizeSimplex scales the weights so they sum to 1. Empty input
// stays empty.
func normalizeSimplex(w map[string]float64) map[string]float64 {
	total := 0.0
	for _, v := range w {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return w
	}
	out := make(map[string]float64, len(w))
	for k, v := range w {
		if v > 0 {
			out[k] = v / total
		}
	}
	return out
}

func accumulate(prev, add map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(prev)+len(add))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range add {
		out[k] += v
	}
	return out
}

// rankedKeys returns the top-3 and bottom-3 keys by value.
func rankedKeys(scores map[string]float64) (top, bottom []string) {
	if len(scores) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if scores[keys[i]] != scores[keys[j]] {
			return scores[keys[i]] > scores[keys[j]]
		}
		return keys[i] < keys[j]
	})

	top = append(top, keys[:min(3, len(keys))]...)
	rev := make([]string, len(keys))
	copy(rev, keys)
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	bottom = append(bottom, rev[:min(3, len(rev))]...)
	return top, bottom
}

// mergeTopicRank keeps a small rolling list of topic ids.
func mergeTopicRank(list []string, topic string, include bool) []string {
	filtered := list[:0:0]
	for _, t := range list {
		if t != topic {
			filtered = append(filtered, t)
		}
	}
	if include {
		filtered = append([]string{topic}, filtered...)
	}
	if len(filtered) > 3 {
		filtered = filtered[:3]
	}
	return filtered
}

func preferredHour(counts [24]int) int {
	best := 0
	for h, c := range counts {
		if c > counts[best] {
			best = h
		}
	}
	return best
}

func sumDurations(d map[string]int64) int64 {
	var total int64
	for _, ms := range d {
		total += ms
	}
	return total
}

func ewma(prev, sample float64, first bool) float64 {
	if first {
		return sample
	}
	return EwmaAlpha*sample + (1-EwmaAlpha)*prev
}

func appendCapped(history []float64, v float64, limit int) []float64 {
	history = append(history, v)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clone(p Profile) Profile {
	out := p
	out.Behavioral.StageTimeRatio = copyMap(p.Behavioral.StageTimeRatio)
	out.Cognitive.HbsHistory = append([]float64(nil), p.Cognitive.HbsHistory...)
	out.Cognitive.ModalityPreferences = copyMap(p.Cognitive.ModalityPreferences)
	out.Cognitive.VelocityByTier = copyIntMap(p.Cognitive.VelocityByTier)
	out.Cognitive.StrongestAssessments = append([]string(nil), p.Cognitive.StrongestAssessments...)
	out.Cognitive.WeakestAssessments = append([]string(nil), p.Cognitive.WeakestAssessments...)
	out.Cognitive.StrongestTopics = append([]string(nil), p.Cognitive.StrongestTopics...)
	out.Cognitive.WeakestTopics = append([]string(nil), p.Cognitive.WeakestTopics...)
	out.Motivational.EngagementHistory = append([]WeekScore(nil), p.Motivational.EngagementHistory...)
	out.Motivational.AbandonmentByStage = copyIntCountMap(p.Motivational.AbandonmentByStage)
	return out
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntMap(m map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntCountMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
