package adaptive

import (
	"time"

	"github.com/abhisek/learnloop/internal/fsrs"
	"github.com/abhisek/learnloop/internal/session"
)

// AnalysisItem is a selectable analysis-stage content item.
type AnalysisItem struct {
	ID                 string
	TopicID            string
	DifficultyLevel    int // 1..4
	IsReviewable       bool
	InterleaveEligible bool
	SimilarityTags     []string
}

// TopicPool groups the candidate items of one topic.
type TopicPool struct {
	TopicID string
	Items   []AnalysisItem
}

// PlanInput carries everything the selector needs for one session plan.
// MemoryStates is keyed by item id; items with no entry are new.
type PlanInput struct {
	PrimaryTopicID  string
	AvailableTopics []TopicPool
	MemoryStates    map[string]fsrs.Card
	CurrentLevel    int // 1..4
	SessionType     session.Type
	// HemisphereBalance biases stage time allocation: negative tilts
	// toward encounter/return, positive toward analysis.
	HemisphereBalance  float64 // -1..+1
	AnalysisItemBudget int     // 0 means the session-type default
	Now                time.Time
}

// StageBalance is the fraction of session time allotted to each stage.
type StageBalance struct {
	Encounter float64 `json:"encounter"`
	Analysis  float64 `json:"analysis"`
	Return    float64 `json:"return"`
}

// SelectionReason records which pool an item was drawn from.
type SelectionReason string

const (
	ReasonOverdue     SelectionReason = "overdue"
	ReasonDue         SelectionReason = "due"
	ReasonNewPrimary  SelectionReason = "new_primary"
	ReasonInterleaved SelectionReason = "interleaved_related"
	ReasonFill        SelectionReason = "fill"
)

// SelectedItem is one planned queue entry with its selection evidence.
type SelectedItem struct {
	Item           AnalysisItem
	Reason         SelectionReason
	Score          float64
	Retrievability float64
}

// Plan is the selector's output: an ordered analysis item list plus the
// level decision and stage balance for the session.
type Plan struct {
	Level         int
	NextLevel     int
	StageBalance  StageBalance
	SelectedItems []SelectedItem
	Rationale     []string
}

// ItemIDs returns the planned item ids in emission order.
func (p Plan) ItemIDs() []string {
	ids := make([]string, len(p.SelectedItems))
	for i, s := range p.SelectedItems {
		ids[i] = s.Item.ID
	}
	return ids
}

// CountByReason tallies selections per pool, for analytics.
func (p Plan) CountByReason() map[SelectionReason]int {
	counts := make(map[SelectionReason]int)
	for _, s := range p.SelectedItems {
		counts[s.Reason]++
	}
	return counts
}
