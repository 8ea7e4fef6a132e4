package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obsAt(when time.Time) Observation {
	acc := 0.8
	return Observation{
		CompletedAt:   when,
		DurationS:     960,
		Accuracy:      &acc,
		AvgScore:      0.8,
		LatencyMeanMs: 12000,
		HelpRequests:  1,
		Responses:     10,
		StageDurationsMs: map[string]int64{
			"encounter": 180_000,
			"analysis":  600_000,
			"return":    180_000,
		},
		ConfidencePairs: []ConfidencePair{
			{Confidence: 4, Correct: true},
			{Confidence: 4, Correct: true},
			{Confidence: 2, Correct: false},
		},
		Hbs:             0.1,
		ModalityCounts:  map[string]float64{"visual": 3, "verbal": 1},
		DifficultyTier:  2,
		MasteryDelta:    0.05,
		TopicID:         "algebra",
		AssessmentTypes: map[string]float64{"answer": 0.8, "reflection": 0.6},
		SessionsLast7d:  3,
		SessionsLast30d: 9,
	}
}

func TestUpdateFirstSessionSeedsScalars(t *testing.T) {
	when := time.Date(2026, 4, 6, 19, 30, 0, 0, time.UTC)
	p := Update(NewProfile(), obsAt(when))

	assert.Equal(t, 1, p.Behavioral.TotalSessions)
	assert.InDelta(t, 960, p.Behavioral.DurationEwmaS, 1e-9, "first sample seeds the EWMA")
	assert.InDelta(t, 12000, p.Behavioral.LatencyMeanMs, 1e-9)
	assert.Equal(t, 19, p.Behavioral.PreferredHour)
	assert.InDelta(t, 0.1, p.Behavioral.HelpRequestRate, 1e-9)
	assert.InDelta(t, 0.1, p.Cognitive.HemisphereBalance, 1e-9)
	require.Len(t, p.Cognitive.HbsHistory, 1)
}

func TestUpdateEwmaSmoothing(t *testing.T) {
	when := time.Date(2026, 4, 6, 19, 0, 0, 0, time.UTC)
	p := Update(NewProfile(), obsAt(when))

	second := obsAt(when.Add(24 * time.Hour))
	second.DurationS = 480
	p = Update(p, second)

	// 0.3*480 + 0.7*960 = 816
	assert.InDelta(t, 816, p.Behavioral.DurationEwmaS, 1e-9)
	assert.Equal(t, 2, p.Behavioral.TotalSessions)
}

func TestUpdateDoesNotMutateInput(t *testing.T) {
	when := time.Date(2026, 4, 6, 19, 0, 0, 0, time.UTC)
	first := Update(NewProfile(), obsAt(when))
	historyBefore := len(first.Cognitive.HbsHistory)
	engagementBefore := len(first.Motivational.EngagementHistory)

	_ = Update(first, obsAt(when.Add(8*24*time.Hour)))

	assert.Len(t, first.Cognitive.HbsHistory, historyBefore)
	assert.Len(t, first.Motivational.EngagementHistory, engagementBefore)
}

func TestModalitySimplex(t *testing.T) {
	when := time.Date(2026, 4, 6, 19, 0, 0, 0, time.UTC)
	p := Update(NewProfile(), obsAt(when))

	second := obsAt(when.Add(24 * time.Hour))
	second.ModalityCounts = map[string]float64{"visual": 1, "kinesthetic": 2}
	p = Update(p, second)

	sum := 0.0
	for _, v := range p.Cognitive.ModalityPreferences {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Greater(t, p.Cognitive.ModalityPreferences["visual"], p.Cognitive.ModalityPreferences["verbal"])
}

func TestHbsHistoryCap(t *testing.T) {
	p := NewProfile()
	when := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 35; i++ {
		p = Update(p, obsAt(when.Add(time.Duration(i)*24*time.Hour)))
	}
	assert.Len(t, p.Cognitive.HbsHistory, 30)
}

func TestEngagementTrend(t *testing.T) {
	p := NewProfile()
	when := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	// Declining frequency week over week.
	counts := []int{5, 4, 2, 1, 0}
	for i, c := range counts {
		obs := obsAt(when.Add(time.Duration(i*7*24) * time.Hour))
		obs.SessionsLast7d = c
		p = Update(p, obs)
	}
	assert.Equal(t, TrendDeclining, p.Motivational.EngagementTrend)

	// Rising frequency flips the label.
	p2 := NewProfile()
	for i, c := range []int{0, 1, 3, 5} {
		obs := obsAt(when.Add(time.Duration(i*7*24) * time.Hour))
		obs.SessionsLast7d = c
		p2 = Update(p2, obs)
	}
	assert.Equal(t, TrendIncreasing, p2.Motivational.EngagementTrend)
}

func TestEngagementHistoryCap(t *testing.T) {
	p := NewProfile()
	when := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		p = Update(p, obsAt(when.Add(time.Duration(i*7*24)*time.Hour)))
	}
	assert.LessOrEqual(t, len(p.Motivational.EngagementHistory), 8)
}

func TestBurnoutSignals(t *testing.T) {
	p := NewProfile()
	when := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	// Build a baseline over a few sessions.
	for i := 0; i < 5; i++ {
		p = Update(p, obsAt(when.Add(time.Duration(i)*24*time.Hour)))
	}
	assert.Equal(t, RiskLow, p.Motivational.BurnoutRisk)

	// Spike frequency, crash accuracy, slow down sharply.
	strained := obsAt(when.Add(6 * 24 * time.Hour))
	low := 0.3
	strained.Accuracy = &low
	strained.SessionsLast7d = 12
	strained.LatencyMeanMs = 30000
	p = Update(p, strained)
	p = Update(p, strained)

	assert.NotEqual(t, RiskLow, p.Motivational.BurnoutRisk)
}

func TestAbandonmentDistribution(t *testing.T) {
	p := NewProfile()
	when := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	obs := obsAt(when)
	obs.Abandoned = true
	obs.AbandonedStage = "analysis"
	p = Update(p, obs)
	p = Update(p, obs)

	assert.Equal(t, 2, p.Motivational.AbandonmentByStage["analysis"])
}

func TestConfidenceCalibration(t *testing.T) {
	when := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	// Overconfident learner: high confidence, all wrong.
	obs := obsAt(when)
	obs.ConfidencePairs = []ConfidencePair{
		{Confidence: 5, Correct: false},
		{Confidence: 5, Correct: false},
		{Confidence: 4, Correct: false},
	}
	p := Update(NewProfile(), obs)
	assert.Greater(t, p.Behavioral.CalibrationGap, 0.5)
}

func TestRankedAssessments(t *testing.T) {
	when := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	obs := obsAt(when)
	obs.AssessmentTypes = map[string]float64{
		"answer": 0.9, "reflection": 0.4, "match": 0.7, "recall": 0.6,
	}
	p := Update(NewProfile(), obs)

	require.Len(t, p.Cognitive.StrongestAssessments, 3)
	assert.Equal(t, "answer", p.Cognitive.StrongestAssessments[0])
	assert.Equal(t, "reflection", p.Cognitive.WeakestAssessments[0])
}
