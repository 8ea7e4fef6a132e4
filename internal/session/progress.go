package session

import "time"

// StageProgress returns how far through the current stage's target
// duration the session is, capped at 1. Sessions with no open stage
// report 0.
func StageProgress(s State, now time.Time, cfg Config) float64 {
	if s.CurrentStage == "" {
		return 0
	}
	target := cfg.TargetStage.Of(s.CurrentStage)
	if target <= 0 {
		return 0
	}
	p := float64(s.CurrentStageDurationMs(now)) / float64(target)
	if p > 1 {
		return 1
	}
	return p
}

// SessionProgress returns overall progress against the summed stage
// targets, capped at 1.
func SessionProgress(s State, now time.Time, cfg Config) float64 {
	total := cfg.TargetStage.Total()
	if total <= 0 {
		return 0
	}

	elapsed := s.EncounterDurationMs + s.AnalysisDurationMs + s.ReturnDurationMs
	if s.SegmentStartedAt != nil && now.After(*s.SegmentStartedAt) {
		elapsed += now.Sub(*s.SegmentStartedAt).Milliseconds()
	}

	p := float64(elapsed) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}
