package adaptive

import "fmt"

// LearnerProtocol classifies the learner's recent trajectory into a
// session-shaping protocol.
type LearnerProtocol string

const (
	ProtocolNormal    LearnerProtocol = "normal"
	ProtocolColdStart LearnerProtocol = "cold_start"
	ProtocolStuck     LearnerProtocol = "stuck"
	ProtocolBored     LearnerProtocol = "bored"
)

// ProtocolInput is the learner history snapshot the classifier reads.
type ProtocolInput struct {
	SessionCount           int
	AllAssignedItemsUnseen bool
	RecentAverageScore     float64
	RecentItemsPerSession  float64
}

// ProtocolDecision carries the classification and its session effects.
// Only the fields relevant to the chosen protocol are set.
type ProtocolDecision struct {
	Protocol         LearnerProtocol `json:"protocol"`
	Reason           string          `json:"reason"`
	ColdStartBudget  int             `json:"coldStartItemBudget,omitempty"`
	StuckBackoffDays int             `json:"stuckBackoffDays,omitempty"`
	InjectChallenge  bool            `json:"injectChallenge,omitempty"`
}

// DetectLearnerProtocol classifies in priority order: cold start wins
// over stuck, stuck over bored.
func DetectLearnerProtocol(in ProtocolInput) ProtocolDecision {
	if in.SessionCount < 3 || in.AllAssignedItemsUnseen {
		return ProtocolDecision{
			Protocol:        ProtocolColdStart,
			Reason:          fmt.Sprintf("session count %d below warm-up threshold", in.SessionCount),
			ColdStartBudget: 3,
		}
	}
	if in.RecentAverageScore < 0.5 && in.RecentItemsPerSession < 5 {
		return ProtocolDecision{
			Protocol:         ProtocolStuck,
			Reason:           fmt.Sprintf("avg score %.2f with %.1f items/session", in.RecentAverageScore, in.RecentItemsPerSession),
			StuckBackoffDays: 3,
		}
	}
	if in.RecentAverageScore > 0.85 && in.RecentItemsPerSession > 15 {
		return ProtocolDecision{
			Protocol:        ProtocolBored,
			Reason:          fmt.Sprintf("avg score %.2f with %.1f items/session", in.RecentAverageScore, in.RecentItemsPerSession),
			InjectChallenge: true,
		}
	}
	return ProtocolDecision{Protocol: ProtocolNormal, Reason: "recent performance within normal band"}
}
