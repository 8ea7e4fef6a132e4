package session

// Durations holds per-stage millisecond durations.
type Durations struct {
	Encounter int64
	Analysis  int64
	Return    int64
}

// Of returns the duration for a stage.
func (d Durations) Of(stage Stage) int64 {
	switch stage {
	case StageEncounter:
		return d.Encounter
	case StageAnalysis:
		return d.Analysis
	case StageReturn:
		return d.Return
	}
	return 0
}

// Total is the sum across all three stages.
func (d Durations) Total() int64 {
	return d.Encounter + d.Analysis + d.Return
}

// GuardFunc is a custom guard hook. It reports whether the event may
// proceed, with a reason when it may not. A panicking guard surfaces as a
// REDUCER_ERROR result, never as an unwound exception.
type GuardFunc func(s State, e Event) (bool, string)

// Config parameterizes the reducer. The zero value is unusable; start
// from DefaultConfig.
type Config struct {
	// MinStage gates ADVANCE_STAGE and COMPLETE_SESSION: a stage cannot
	// be left before its minimum duration has elapsed.
	MinStage Durations

	// TargetStage feeds the progress functions only.
	TargetStage Durations

	// CustomGuards optionally override the built-in guard per event kind.
	CustomGuards map[EventKind]GuardFunc
}

// DefaultConfig returns the standard stage gates: 3 minutes encounter,
// 6 minutes analysis, 3 minutes return, with 4/10/4 minute targets.
func DefaultConfig() Config {
	return Config{
		MinStage: Durations{
			Encounter: 180_000,
			Analysis:  360_000,
			Return:    180_000,
		},
		TargetStage: Durations{
			Encounter: 240_000,
			Analysis:  600_000,
			Return:    240_000,
		},
	}
}
