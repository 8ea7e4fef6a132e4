package session

import "fmt"

// Reduce applies one event to a session state and returns either the new
// state or a classified rejection. It is pure: the input state is never
// mutated, and rejection paths return it unchanged.
func Reduce(s State, e Event, cfg Config) (result Result) {
	// Custom guards may be third-party code; a panic there is reported
	// as a REDUCER_ERROR result instead of unwinding into the caller.
	defer func() {
		if r := recover(); r != nil {
			result = reject(ErrReducerError, fmt.Sprintf("guard panic: %v", r))
		}
	}()

	if e.Timestamp.IsZero() {
		return reject(ErrInvalidState, "event has no timestamp")
	}
	if s.Status == StatusInProgress && s.CurrentStage == "" {
		return reject(ErrInvalidState, "in_progress session has no current stage")
	}

	if g, ok := cfg.CustomGuards[e.Kind]; ok {
		allowed, reason := g(s, e)
		if !allowed {
			return reject(ErrGuardFailed, reason)
		}
	}

	switch e.Kind {
	case EventStartSession:
		return reduceStart(s, e)
	case EventPauseSession:
		return reducePause(s, e)
	case EventResumeSession:
		return reduceResume(s, e)
	case EventCompleteActivity:
		return reduceCompleteActivity(s, e)
	case EventAdvanceStage:
		return reduceAdvanceStage(s, e, cfg)
	case EventSkipStage:
		return reduceSkipStage(s, e)
	case EventCompleteSession:
		return reduceCompleteSession(s, e, cfg)
	case EventAbandonSession:
		return reduceAbandon(s, e)
	case EventResumeAbandoned:
		return reduceResumeAbandoned(s, e)
	}
	return reject(ErrUnknownEvent, fmt.Sprintf("unknown event kind %q", e.Kind))
}

func reduceStart(s State, e Event) Result {
	if s.Status != StatusReady {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot start from status %q", s.Status))
	}
	if len(s.ItemQueue) == 0 {
		return reject(ErrGuardFailed, "cannot start with an empty item queue")
	}

	next := s.Clone()
	t := e.Timestamp
	next.Status = StatusInProgress
	next.CurrentStage = StageEncounter
	next.StartedAt = &t
	next.EncounterStartedAt = &t
	next.SegmentStartedAt = cloneTime(&t)
	return ok(next)
}

func reducePause(s State, e Event) Result {
	if s.Status != StatusInProgress {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot pause from status %q", s.Status))
	}
	if s.PausedAt != nil {
		return reject(ErrGuardFailed, "session is already paused")
	}

	next := s.Clone()
	t := e.Timestamp
	next.closeSegment(t)
	next.Status = StatusPaused
	next.PausedAt = &t
	return ok(next)
}

func reduceResume(s State, e Event) Result {
	if s.Status != StatusPaused {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot resume from status %q", s.Status))
	}
	if s.PausedAt == nil {
		return reject(ErrInvalidState, "paused session has no pause timestamp")
	}

	next := s.Clone()
	t := e.Timestamp
	if t.After(*next.PausedAt) {
		next.PausedDurationMs += t.Sub(*next.PausedAt).Milliseconds()
	}
	next.PausedAt = nil
	next.Status = StatusInProgress
	next.SegmentStartedAt = cloneTime(&t)
	return ok(next)
}

func reduceCompleteActivity(s State, e Event) Result {
	if s.Status != StatusInProgress {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot complete an activity from status %q", s.Status))
	}
	if e.ActivityID == "" {
		return reject(ErrInvalidState, "COMPLETE_ACTIVITY requires an activity id")
	}
	if s.CurrentItemIndex >= len(s.ItemQueue) {
		return reject(ErrGuardFailed, "item queue is exhausted")
	}

	next := s.Clone()
	if !containsString(next.CompletedActivityIDs, e.ActivityID) {
		next.CompletedActivityIDs = append(next.CompletedActivityIDs, e.ActivityID)
	}
	next.CurrentItemIndex++
	return ok(next)
}

func reduceAdvanceStage(s State, e Event, cfg Config) Result {
	if s.Status != StatusInProgress {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot advance stage from status %q", s.Status))
	}

	switch s.CurrentStage {
	case StageEncounter:
		if allowed, reason := canAdvanceToAnalysis(s, e, cfg); !allowed {
			return reject(ErrGuardFailed, reason)
		}
		return ok(enterStage(s, StageAnalysis, e))
	case StageAnalysis:
		if allowed, reason := canAdvanceToReturn(s, e, cfg); !allowed {
			return reject(ErrGuardFailed, reason)
		}
		return ok(enterStage(s, StageReturn, e))
	case StageReturn:
		return reject(ErrInvalidTransition, "return is the final stage; use COMPLETE_SESSION")
	}
	return reject(ErrInvalidState, "session has no current stage")
}

func reduceSkipStage(s State, e Event) Result {
	if s.Status != StatusInProgress {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot skip stage from status %q", s.Status))
	}

	// Skip bypasses the minimum-duration and completion guards, but the
	// final stage still has nowhere to skip to.
	switch s.CurrentStage {
	case StageEncounter:
		next := enterStage(s, StageAnalysis, e)
		next.EncounterComplete = true
		return ok(next)
	case StageAnalysis:
		next := enterStage(s, StageReturn, e)
		next.AnalysisComplete = true
		return ok(next)
	case StageReturn:
		return reject(ErrInvalidTransition, "return is the final stage; nothing to skip to")
	}
	return reject(ErrInvalidState, "session has no current stage")
}

func reduceCompleteSession(s State, e Event, cfg Config) Result {
	if s.Status != StatusInProgress {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot complete from status %q", s.Status))
	}
	if allowed, reason := canComplete(s, e, cfg); !allowed {
		return reject(ErrGuardFailed, reason)
	}

	next := s.Clone()
	t := e.Timestamp
	next.closeSegment(t)
	next.Status = StatusCompleted
	next.CurrentStage = ""
	next.CompletedAt = &t
	next.TotalDurationMs = next.EncounterDurationMs + next.AnalysisDurationMs + next.ReturnDurationMs
	return ok(next)
}

func reduceAbandon(s State, e Event) Result {
	if s.Status != StatusInProgress && s.Status != StatusPaused {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot abandon from status %q", s.Status))
	}

	next := s.Clone()
	t := e.Timestamp
	next.closeSegment(t)
	if next.PausedAt != nil {
		if t.After(*next.PausedAt) {
			next.PausedDurationMs += t.Sub(*next.PausedAt).Milliseconds()
		}
		next.PausedAt = nil
	}
	next.AbandonedAtStage = next.CurrentStage
	next.AbandonmentReason = e.Reason
	next.Status = StatusAbandoned
	return ok(next)
}

// reduceResumeAbandoned restores an abandoned session at the stage it was
// abandoned in. Paused sessions resume via RESUME_SESSION instead.
func reduceResumeAbandoned(s State, e Event) Result {
	if s.Status != StatusAbandoned {
		return reject(ErrInvalidTransition, fmt.Sprintf("cannot resume an abandoned session from status %q", s.Status))
	}

	next := s.Clone()
	t := e.Timestamp
	next.Status = StatusInProgress
	next.CurrentStage = next.AbandonedAtStage
	if next.CurrentStage == "" {
		next.CurrentStage = StageEncounter
	}
	next.AbandonedAtStage = ""
	next.AbandonmentReason = ""
	next.SegmentStartedAt = cloneTime(&t)
	return ok(next)
}

// enterStage finalizes the current stage's duration and opens the next.
func enterStage(s State, stage Stage, e Event) State {
	next := s.Clone()
	t := e.Timestamp
	next.closeSegment(t)
	next.CurrentStage = stage
	next.SegmentStartedAt = cloneTime(&t)
	switch stage {
	case StageAnalysis:
		next.AnalysisStartedAt = &t
	case StageReturn:
		next.ReturnStartedAt = &t
	}
	return next
}

func canAdvanceToAnalysis(s State, e Event, cfg Config) (bool, string) {
	if !s.EncounterComplete {
		return false, "encounter stage is not complete"
	}
	if s.EncounterStartedAt == nil {
		return false, "encounter stage never started"
	}
	if d := s.CurrentStageDurationMs(e.Timestamp); d < cfg.MinStage.Encounter {
		return false, fmt.Sprintf("encounter duration %dms below minimum %dms", d, cfg.MinStage.Encounter)
	}
	return true, ""
}

func canAdvanceToReturn(s State, e Event, cfg Config) (bool, string) {
	if !s.AnalysisComplete {
		return false, "analysis stage is not complete"
	}
	if s.AnalysisStartedAt == nil {
		return false, "analysis stage never started"
	}
	if s.CurrentItemIndex == 0 {
		return false, "no activities completed yet"
	}
	if d := s.CurrentStageDurationMs(e.Timestamp); d < cfg.MinStage.Analysis {
		return false, fmt.Sprintf("analysis duration %dms below minimum %dms", d, cfg.MinStage.Analysis)
	}
	return true, ""
}

func canComplete(s State, e Event, cfg Config) (bool, string) {
	if s.CurrentStage != StageReturn {
		return false, fmt.Sprintf("cannot complete from stage %q", s.CurrentStage)
	}
	if !s.ReturnComplete {
		return false, "return stage is not complete"
	}
	if s.ReturnStartedAt == nil {
		return false, "return stage never started"
	}
	if d := s.CurrentStageDurationMs(e.Timestamp); d < cfg.MinStage.Return {
		return false, fmt.Sprintf("return duration %dms below minimum %dms", d, cfg.MinStage.Return)
	}
	return true, ""
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
