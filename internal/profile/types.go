package profile

import "time"

// EwmaAlpha is the smoothing factor applied to scalar profile metrics.
const EwmaAlpha = 0.3

// RiskLabel grades dropout and burnout risk.
type RiskLabel string

const (
	RiskLow      RiskLabel = "low"
	RiskModerate RiskLabel = "moderate"
	RiskHigh     RiskLabel = "high"
)

// TrendLabel describes the recent engagement direction.
type TrendLabel string

const (
	TrendIncreasing TrendLabel = "increasing"
	TrendDeclining  TrendLabel = "declining"
	TrendStable     TrendLabel = "stable"
)

// Behavioral is the session-habit layer.
type Behavioral struct {
	TotalSessions     int                `json:"totalSessions"`
	SessionsLast7d    int                `json:"sessionsLast7d"`
	SessionsLast30d   int                `json:"sessionsLast30d"`
	DurationEwmaS     float64            `json:"durationEwmaS"`
	LatencyMeanMs     float64            `json:"latencyMeanMs"`
	LatencyTrend      float64            `json:"latencyTrend"` // positive = slowing down
	PreferredHour     int                `json:"preferredHour"`
	HourCounts        [24]int            `json:"hourCounts"`
	HelpRequestRate   float64            `json:"helpRequestRate"`
	StageTimeRatio    map[string]float64 `json:"stageTimeRatio"`
	ConfidenceAccCorr float64            `json:"confidenceAccuracyCorrelation"`
	CalibrationGap    float64            `json:"calibrationGap"`
}

// Cognitive is the processing-style layer.
type Cognitive struct {
	HemisphereBalance    float64            `json:"hemisphereBalance"`
	HbsHistory           []float64          `json:"hbsHistory"` // capped at 30 points
	ModalityPreferences  map[string]float64 `json:"modalityPreferences"`
	MetacognitiveAcc     float64            `json:"metacognitiveAccuracy"`
	LearningVelocity     float64            `json:"learningVelocity"`
	VelocityByTier       map[int]float64    `json:"velocityByTier"`
	StrongestAssessments []string           `json:"strongestAssessments"`
	WeakestAssessments   []string           `json:"weakestAssessments"`
	StrongestTopics      []string           `json:"strongestTopics"`
	WeakestTopics        []string           `json:"weakestTopics"`
}

// WeekScore is one weekly engagement sample.
type WeekScore struct {
	WeekStart time.Time `json:"weekStart"`
	Score     float64   `json:"score"`
}

// Motivational is the engagement layer.
type Motivational struct {
	WeeklyEngagement   float64        `json:"weeklyEngagement"`
	EngagementHistory  []WeekScore    `json:"engagementHistory"` // capped at 8 weeks
	EngagementTrend    TrendLabel     `json:"engagementTrend"`
	ChallengeTolerance float64        `json:"challengeTolerance"`
	AbandonmentByStage map[string]int `json:"abandonmentByStage"`
	DropoutRisk        RiskLabel      `json:"dropoutRisk"`
	BurnoutRisk        RiskLabel      `json:"burnoutRisk"`
}

// Profile bundles the three derived layers. The knowledge layer lives
// in the per-KC state and topic proficiency rows.
type Profile struct {
	Behavioral   Behavioral   `json:"behavioral"`
	Cognitive    Cognitive    `json:"cognitive"`
	Motivational Motivational `json:"motivational"`
}

// Observation is one completed session's contribution to the profile.
type Observation struct {
	CompletedAt      time.Time
	DurationS        int
	Accuracy         *float64
	AvgScore         float64
	LatencyMeanMs    float64
	HelpRequests     int
	Responses        int
	StageDurationsMs map[string]int64
	// ConfidencePairs holds (selfConfidence 1..5, wasCorrect) samples.
	ConfidencePairs []ConfidencePair
	Hbs             float64
	ModalityCounts  map[string]float64
	DifficultyTier  int
	MasteryDelta    float64
	TopicID         string
	AssessmentTypes map[string]float64 // avg score per response type
	Abandoned       bool
	AbandonedStage  string
	SessionsLast7d  int
	SessionsLast30d int
}

// ConfidencePair pairs a self-rated confidence with the outcome.
type ConfidencePair struct {
	Confidence int
	Correct    bool
}

// NewProfile returns the neutral starting profile.
func NewProfile() Profile {
	return Profile{
		Behavioral: Behavioral{
			StageTimeRatio: map[string]float64{},
		},
		Cognitive: Cognitive{
			ModalityPreferences: map[string]float64{},
			VelocityByTier:      map[int]float64{},
		},
		Motivational: Motivational{
			EngagementTrend:    TrendStable,
			AbandonmentByStage: map[string]int{},
			DropoutRisk:        RiskLow,
			BurnoutRisk:        RiskLow,
		},
	}
}
