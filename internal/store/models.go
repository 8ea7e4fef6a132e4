package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONStrings stores a string slice as a JSON array column.
type JSONStrings []string

func (j JSONStrings) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(j))
	return string(b), err
}

func (j *JSONStrings) Scan(src any) error {
	return scanJSON(src, (*[]string)(j))
}

// JSONFloats stores a float slice as a JSON array column.
type JSONFloats []float64

func (j JSONFloats) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]float64(j))
	return string(b), err
}

func (j *JSONFloats) Scan(src any) error {
	return scanJSON(src, (*[]float64)(j))
}

func scanJSON(src, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(v), dest)
	case []byte:
		return json.Unmarshal(v, dest)
	default:
		return fmt.Errorf("cannot scan %T as JSON", src)
	}
}

// User is one learner account.
type User struct {
	ID          string    `db:"id"`
	DisplayName string    `db:"display_name"`
	Role        string    `db:"role"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
}

// Topic is a subject area grouping content items and KCs.
type Topic struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// KnowledgeComponent is an atomic learnable concept within a topic.
type KnowledgeComponent struct {
	ID      string `db:"id"`
	TopicID string `db:"topic_id"`
	Name    string `db:"name"`
}

// ContentItem is one presentable learning activity.
type ContentItem struct {
	ID                 string      `db:"id"`
	TopicID            string      `db:"topic_id"`
	Stage              string      `db:"stage"`
	ItemType           string      `db:"item_type"`
	DifficultyLevel    int         `db:"difficulty_level"`
	HemisphereMode     string      `db:"hemisphere_mode"`
	EstimatedDurationS int         `db:"estimated_duration_s"`
	IsActive           bool        `db:"is_active"`
	IsReviewable       bool        `db:"is_reviewable"`
	InterleaveEligible bool        `db:"interleave_eligible"`
	SimilarityTags     JSONStrings `db:"similarity_tags"`
	Body               string      `db:"body"`
}

// Session is the persisted session row. AdaptiveDecisions is the full
// session state snapshot as an opaque JSON blob.
type Session struct {
	ID                string     `db:"id"`
	UserID            string     `db:"user_id"`
	TopicID           string     `db:"topic_id"`
	SessionType       string     `db:"session_type"`
	Status            string     `db:"status"`
	StartedAt         time.Time  `db:"started_at"`
	CompletedAt       *time.Time `db:"completed_at"`
	DurationS         int        `db:"duration_s"`
	Accuracy          *float64   `db:"accuracy"`
	AdaptiveDecisions string     `db:"adaptive_decisions"`
}

// AssessmentEvent is one immutable learner response.
type AssessmentEvent struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	SessionID        string    `db:"session_id"`
	ContentItemID    string    `db:"content_item_id"`
	KcID             *string   `db:"kc_id"`
	Stage            string    `db:"stage"`
	ResponseType     string    `db:"response_type"`
	Payload          string    `db:"payload"`
	IsCorrect        *bool     `db:"is_correct"`
	Score            *float64  `db:"score"`
	ScoringMethod    string    `db:"scoring_method"`
	PresentedAt      time.Time `db:"presented_at"`
	RespondedAt      time.Time `db:"responded_at"`
	LatencyMs        int64     `db:"latency_ms"`
	ConfidenceRating *int      `db:"confidence_rating"`
	SelfRating       *int      `db:"self_rating"`
	HelpRequested    bool      `db:"help_requested"`
	DifficultyLevel  int       `db:"difficulty_level"`
}

// FsrsMemoryRow is the persisted memory state per (user, memory item).
// For stage_type=return the memory item id is fixed per KC.
type FsrsMemoryRow struct {
	UserID         string     `db:"user_id"`
	MemoryItemID   string     `db:"memory_item_id"`
	KcID           *string    `db:"kc_id"`
	StageType      string     `db:"stage_type"`
	Stability      float64    `db:"stability"`
	Difficulty     float64    `db:"difficulty"`
	Retrievability float64    `db:"retrievability"`
	State          string     `db:"state"`
	LastReview     *time.Time `db:"last_review"`
	NextReview     *time.Time `db:"next_review"`
	ReviewCount    int        `db:"review_count"`
	LapseCount     int        `db:"lapse_count"`
	// ConsecutiveAgain counts the current Again streak, for zombie
	// item detection.
	ConsecutiveAgain int `db:"consecutive_again"`
}

// LearnerKcState is the per-(user, KC) mastery record.
type LearnerKcState struct {
	UserID           string     `db:"user_id"`
	KcID             string     `db:"kc_id"`
	LhAccuracy       float64    `db:"lh_accuracy"`
	LhAttempts       int        `db:"lh_attempts"`
	LhLastAccuracy   float64    `db:"lh_last_accuracy"`
	RhScore          float64    `db:"rh_score"`
	RhAttempts       int        `db:"rh_attempts"`
	RhLastScore      float64    `db:"rh_last_score"`
	MasteryLevel     float64    `db:"mastery_level"`
	IntegratedScore  float64    `db:"integrated_score"`
	DifficultyTier   int        `db:"difficulty_tier"`
	FirstEncountered *time.Time `db:"first_encountered"`
	LastPracticed    *time.Time `db:"last_practiced"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// TopicProficiency summarises a learner's standing in one topic.
type TopicProficiency struct {
	UserID        string    `db:"user_id"`
	TopicID       string    `db:"topic_id"`
	Proficiency   float64   `db:"proficiency"`
	KcsMastered   int       `db:"kcs_mastered"`
	KcsInProgress int       `db:"kcs_in_progress"`
	KcsNotStarted int       `db:"kcs_not_started"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// LearnerProfile carries the behavioral, cognitive and motivational
// layers as JSON blobs. The knowledge layer lives in learner_kc_state
// and learner_topic_proficiency.
type LearnerProfile struct {
	UserID       string    `db:"user_id"`
	Behavioral   string    `db:"behavioral"`
	Cognitive    string    `db:"cognitive"`
	Motivational string    `db:"motivational"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// FsrsParameters is a per-user weight override.
type FsrsParameters struct {
	UserID          string     `db:"user_id"`
	Weights         JSONFloats `db:"weights"`
	TargetRetention float64    `db:"target_retention"`
	UpdatedAt       time.Time  `db:"updated_at"`
}
