package analytics

import (
	"time"

	"github.com/abhisek/learnloop/internal/adaptive"
	"github.com/abhisek/learnloop/internal/fsrs"
)

// Event is a typed analytics payload. Name returns the stable event
// name used downstream.
type Event interface {
	Name() string
}

// SessionPlanned is emitted when the selector produces a session plan.
type SessionPlanned struct {
	UserID         string                           `json:"userId"`
	SessionID      string                           `json:"sessionId"`
	TopicID        string                           `json:"topicId"`
	Level          int                              `json:"level"`
	NextLevel      int                              `json:"nextLevel"`
	CountsByReason map[adaptive.SelectionReason]int `json:"countsByReason"`
	StageBalance   adaptive.StageBalance            `json:"stageBalance"`
	Rationale      []string                         `json:"rationale"`
	PlannedAt      time.Time                        `json:"plannedAt"`
}

func (SessionPlanned) Name() string { return "adaptive_session_planned" }

// ItemSelected is emitted once per planned queue entry.
type ItemSelected struct {
	UserID         string                   `json:"userId"`
	SessionID      string                   `json:"sessionId"`
	ItemID         string                   `json:"itemId"`
	Reason         adaptive.SelectionReason `json:"reason"`
	Score          float64                  `json:"score"`
	Retrievability float64                  `json:"retrievability"`
	QueuePosition  int                      `json:"queuePosition"`
}

func (ItemSelected) Name() string { return "item_selected" }

// LevelChanged is emitted when a learner's difficulty level moves.
type LevelChanged struct {
	UserID            string  `json:"userId"`
	TopicID           string  `json:"topicId"`
	FromLevel         int     `json:"fromLevel"`
	ToLevel           int     `json:"toLevel"`
	AvgRetrievability float64 `json:"avgRetrievability"`
	Trigger           string  `json:"trigger"` // "promotion" or "demotion"
}

func (LevelChanged) Name() string { return "difficulty_level_changed" }

// ReviewOutcome is emitted for every FSRS reschedule at completion.
type ReviewOutcome struct {
	UserID        string      `json:"userId"`
	MemoryItemID  string      `json:"memoryItemId"`
	KcID          string      `json:"kcId,omitempty"`
	Rating        fsrs.Rating `json:"rating"`
	PreState      fsrs.State  `json:"preState"`
	PostState     fsrs.State  `json:"postState"`
	PreR          float64     `json:"preRetrievability"`
	PostR         float64     `json:"postRetrievability"`
	ElapsedDays   float64     `json:"elapsedDays"`
	ScheduledDays int         `json:"scheduledDays"`
}

func (ReviewOutcome) Name() string { return "review_outcome" }

// SessionCompleted is emitted after a session commits as completed.
type SessionCompleted struct {
	UserID     string    `json:"userId"`
	SessionID  string    `json:"sessionId"`
	TopicID    string    `json:"topicId"`
	TotalItems int       `json:"totalItems"`
	Correct    int       `json:"correct"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	DurationS  int       `json:"durationS"`
	KcsUpdated int       `json:"kcsUpdated"`
	When       time.Time `json:"when"`
}

func (SessionCompleted) Name() string { return "session_completed" }

// HemisphereScoreUpdated is emitted when the HBS snapshot moves.
type HemisphereScoreUpdated struct {
	UserID   string  `json:"userId"`
	TopicID  string  `json:"topicId"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

func (HemisphereScoreUpdated) Name() string { return "hemisphere_score_updated" }

// RemediationPlanned is emitted when a chronically missed item is
// routed out of its failure loop.
type RemediationPlanned struct {
	UserID           string                       `json:"userId"`
	MemoryItemID     string                       `json:"memoryItemId"`
	KcID             string                       `json:"kcId,omitempty"`
	Health           adaptive.ItemHealth          `json:"health"`
	Strategy         adaptive.RemediationStrategy `json:"strategy"`
	RestDays         int                          `json:"restDays,omitempty"`
	ConsecutiveAgain int                          `json:"consecutiveAgain"`
	Retrievability   float64                      `json:"retrievability"`
}

func (RemediationPlanned) Name() string { return "remediation_planned" }
