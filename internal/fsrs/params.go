package fsrs

import "math"

// Decay and Factor define the FSRS-5 forgetting curve
// R(t,S) = (1 + Factor*t/S)^Decay.
const (
	Decay  = -0.5
	Factor = 19.0 / 81.0
)

// WeightCount is the number of entries in an FSRS-5 weight vector.
const WeightCount = 19

// DefaultTargetRetention is the retention probability intervals aim for.
const DefaultTargetRetention = 0.9

// Target retention is only ever tuned within this band.
const (
	MinTargetRetention = 0.82
	MaxTargetRetention = 0.95
)

// defaultWeights is the FSRS-5 default weight vector.
var defaultWeights = [WeightCount]float64{
	0.4072, 1.1829, 3.1262, 15.4722, 7.2102,
	0.5316, 1.0651, 0.0, 1.5546, 0.1192,
	1.0101, 1.9395, 0.1100, 0.2939, 2.0091,
	0.2415, 2.9898, 0.5100, 0.6000,
}

// Params bundles a weight vector with a target retention. Per-learner
// overrides are stored as FsrsParameters rows; everyone else gets the
// defaults.
type Params struct {
	Weights         []float64 `json:"weights"`
	TargetRetention float64   `json:"target_retention"`
}

// DefaultParams returns a fresh copy of the FSRS-5 defaults. The slice is
// owned by the caller.
func DefaultParams() Params {
	w := make([]float64, WeightCount)
	copy(w, defaultWeights[:])
	return Params{Weights: w, TargetRetention: DefaultTargetRetention}
}

// Valid reports whether the params carry a full weight vector and a
// target retention within the tuning band.
func (p Params) Valid() bool {
	if len(p.Weights) != WeightCount {
		return false
	}
	for _, w := range p.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return false
		}
	}
	return p.TargetRetention >= MinTargetRetention && p.TargetRetention <= MaxTargetRetention
}

func pow(base, exp float64) float64 {
	return math.Pow(base, exp)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
