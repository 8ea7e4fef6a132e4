package adaptive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyItemHealth(t *testing.T) {
	cases := []struct {
		name  string
		again int
		r     float64
		want  ItemHealth
	}{
		{"fresh item", 0, 0.9, HealthOK},
		{"single miss", 1, 0.3, HealthOK},
		{"two misses at risk", 2, 0.3, HealthAtRisk},
		{"three misses low R is zombie", 3, 0.4, HealthZombie},
		{"three misses but recoverable R", 3, 0.5, HealthAtRisk},
		{"deep failure", 6, 0.1, HealthZombie},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyItemHealth(tc.again, tc.r))
		})
	}
}

func TestPlanRemediation(t *testing.T) {
	// Four failures with R=0.15 rests the item for a week.
	rest := PlanRemediation(4, 0.15)
	assert.Equal(t, RemediationRest, rest.Strategy)
	assert.Equal(t, 7, rest.RestDays)

	// Same failure count with salvageable R routes to prerequisites.
	assert.Equal(t, RemediationSimplify, PlanRemediation(4, 0.3).Strategy)

	// Escalation by failure count.
	assert.Equal(t, RemediationRestructure, PlanRemediation(6, 0.15).Strategy)
	assert.Equal(t, RemediationRetire, PlanRemediation(8, 0.15).Strategy)
}
