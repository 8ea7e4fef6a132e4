package adaptive

// ItemHealth classifies how chronically an item is being missed.
type ItemHealth string

const (
	HealthOK     ItemHealth = "ok"
	HealthAtRisk ItemHealth = "at_risk"
	HealthZombie ItemHealth = "zombie"
)

// RemediationStrategy routes a zombie item out of its failure loop.
type RemediationStrategy string

const (
	RemediationRetire      RemediationStrategy = "retire"
	RemediationRestructure RemediationStrategy = "restructure"
	RemediationRest        RemediationStrategy = "rest"
	RemediationSimplify    RemediationStrategy = "simplify"
)

// Remediation is the routing decision for one zombie item.
type Remediation struct {
	Strategy RemediationStrategy `json:"strategy"`
	RestDays int                 `json:"restDays,omitempty"`
	Note     string              `json:"note,omitempty"`
}

// ClassifyItemHealth flags items the learner chronically misses. A
// zombie needs at least three consecutive Again ratings with
// retrievability at or below 0.4; two consecutive failures mark the
// item at risk.
func ClassifyItemHealth(consecutiveAgain int, retrievability float64) ItemHealth {
	if consecutiveAgain >= 3 && retrievability <= 0.4 {
		return HealthZombie
	}
	if consecutiveAgain >= 2 {
		return HealthAtRisk
	}
	return HealthOK
}

// PlanRemediation picks the escalation tier for a zombie item based on
// its failure count and current retrievability.
func PlanRemediation(consecutiveAgain int, retrievability float64) Remediation {
	switch {
	case consecutiveAgain >= 7:
		return Remediation{Strategy: RemediationRetire, Note: "chronic failure, remove from rotation"}
	case consecutiveAgain >= 5:
		return Remediation{Strategy: RemediationRestructure, Note: "flag for content review"}
	case retrievability < 0.2:
		return Remediation{Strategy: RemediationRest, RestDays: 7}
	default:
		return Remediation{Strategy: RemediationSimplify, Note: "route to prerequisites"}
	}
}
