package session

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(secs int) time.Time {
	return t0.Add(time.Duration(secs) * time.Second)
}

func startedSession(t *testing.T, queue []string) State {
	t.Helper()
	s := NewState("s1", "u1", "topic1", TypeStandard, queue)
	res := Reduce(s, Event{Kind: EventStartSession, Timestamp: t0}, DefaultConfig())
	if !res.OK {
		t.Fatalf("start failed: %s %s", res.ErrKind, res.Reason)
	}
	return res.State
}

func mustReduce(t *testing.T, s State, e Event) State {
	t.Helper()
	res := Reduce(s, e, DefaultConfig())
	if !res.OK {
		t.Fatalf("%s at %v failed: %s %s", e.Kind, e.Timestamp, res.ErrKind, res.Reason)
	}
	return res.State
}

func mustFail(t *testing.T, s State, e Event, kind ErrKind) {
	t.Helper()
	res := Reduce(s, e, DefaultConfig())
	if res.OK {
		t.Fatalf("%s unexpectedly succeeded", e.Kind)
	}
	if res.ErrKind != kind {
		t.Fatalf("%s: ErrKind = %s, want %s (%s)", e.Kind, res.ErrKind, kind, res.Reason)
	}
}

func TestStartSession(t *testing.T) {
	s := startedSession(t, []string{"e1", "a1", "r1"})

	if s.Status != StatusInProgress {
		t.Errorf("Status = %s, want in_progress", s.Status)
	}
	if s.CurrentStage != StageEncounter {
		t.Errorf("CurrentStage = %s, want encounter", s.CurrentStage)
	}
	if s.StartedAt == nil || !s.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", s.StartedAt, t0)
	}
	if s.EncounterStartedAt == nil {
		t.Error("EncounterStartedAt not set")
	}
}

func TestStartGuards(t *testing.T) {
	empty := NewState("s1", "u1", "topic1", TypeQuick, nil)
	mustFail(t, empty, Event{Kind: EventStartSession, Timestamp: t0}, ErrGuardFailed)

	started := startedSession(t, []string{"e1"})
	mustFail(t, started, Event{Kind: EventStartSession, Timestamp: at(1)}, ErrInvalidTransition)
}

func TestHappyPath(t *testing.T) {
	// Queue [e1, a1, a2, r1], responses at 181s, 541s, 902s, 1082s with
	// stage boundaries after e1, a2 and r1.
	s := startedSession(t, []string{"e1", "a1", "a2", "r1"})

	s = mustReduce(t, s, Event{Kind: EventCompleteActivity, ActivityID: "e1", Timestamp: at(181)})
	s.MarkStageComplete(StageEncounter)
	s = mustReduce(t, s, Event{Kind: EventAdvanceStage, Timestamp: at(181)})
	if s.CurrentStage != StageAnalysis {
		t.Fatalf("CurrentStage = %s, want analysis", s.CurrentStage)
	}
	if s.EncounterDurationMs != 181_000 {
		t.Errorf("EncounterDurationMs = %d, want 181000", s.EncounterDurationMs)
	}

	s = mustReduce(t, s, Event{Kind: EventCompleteActivity, ActivityID: "a1", Timestamp: at(541)})
	s = mustReduce(t, s, Event{Kind: EventCompleteActivity, ActivityID: "a2", Timestamp: at(902)})
	s.MarkStageComplete(StageAnalysis)
	s = mustReduce(t, s, Event{Kind: EventAdvanceStage, Timestamp: at(902)})
	if s.CurrentStage != StageReturn {
		t.Fatalf("CurrentStage = %s, want return", s.CurrentStage)
	}
	if s.AnalysisDurationMs != 721_000 {
		t.Errorf("AnalysisDurationMs = %d, want 721000", s.AnalysisDurationMs)
	}

	s = mustReduce(t, s, Event{Kind: EventCompleteActivity, ActivityID: "r1", Timestamp: at(1082)})
	s.MarkStageComplete(StageReturn)
	s = mustReduce(t, s, Event{Kind: EventCompleteSession, Timestamp: at(1082)})

	if s.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed", s.Status)
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(at(1082)) {
		t.Errorf("CompletedAt = %v, want %v", s.CompletedAt, at(1082))
	}
	if s.ReturnDurationMs != 180_000 {
		t.Errorf("ReturnDurationMs = %d, want 180000", s.ReturnDurationMs)
	}
	if want := s.EncounterDurationMs + s.AnalysisDurationMs + s.ReturnDurationMs; s.TotalDurationMs != want {
		t.Errorf("TotalDurationMs = %d, want %d", s.TotalDurationMs, want)
	}
	if !s.ReturnComplete {
		t.Error("ReturnComplete should be true")
	}
	if len(s.CompletedActivityIDs) != 4 {
		t.Errorf("CompletedActivityIDs = %v, want 4 entries", s.CompletedActivityIDs)
	}
}

func TestAdvanceGuardMinimumDuration(t *testing.T) {
	s := startedSession(t, []string{"e1", "a1"})
	s = mustReduce(t, s, Event{Kind: EventCompleteActivity, ActivityID: "e1", Timestamp: at(60)})
	s.MarkStageComplete(StageEncounter)

	// 60s < 180s minimum: guard denies, state preserved.
	res := Reduce(s, Event{Kind: EventAdvanceStage, Timestamp: at(60)}, DefaultConfig())
	if res.OK {
		t.Fatal("advance should be denied below the minimum duration")
	}
	if res.ErrKind != ErrGuardFailed {
		t.Fatalf("ErrKind = %s, want GUARD_FAILED", res.ErrKind)
	}
	if s.CurrentStage != StageEncounter {
		t.Error("denied advance must leave the stage unchanged")
	}

	// Same event later passes.
	s = mustReduce(t, s, Event{Kind: EventAdvanceStage, Timestamp: at(200)})
	if s.CurrentStage != StageAnalysis {
		t.Errorf("CurrentStage = %s, want analysis", s.CurrentStage)
	}
}

func TestAdvanceRequiresStageComplete(t *testing.T) {
	s := startedSession(t, []string{"e1", "a1"})
	mustFail(t, s, Event{Kind: EventAdvanceStage, Timestamp: at(300)}, ErrGuardFailed)
}

func TestAdvanceToReturnRequiresProgress(t *testing.T) {
	s := startedSession(t, []string{"e1", "a1"})
	s.CurrentStage = StageAnalysis
	now := at(0)
	s.AnalysisStartedAt = &now
	s.AnalysisComplete = true
	// CurrentItemIndex is still 0: no activities completed.
	mustFail(t, s, Event{Kind: EventAdvanceStage, Timestamp: at(400)}, ErrGuardFailed)
}

func TestPauseResumeAccounting(t *testing.T) {
	s := startedSession(t, []string{"e1", "a1"})

	s = mustReduce(t, s, Event{Kind: EventPauseSession, Timestamp: at(100)})
	if s.Status != StatusPaused {
		t.Fatalf("Status = %s, want paused", s.Status)
	}
	if s.EncounterDurationMs != 100_000 {
		t.Errorf("EncounterDurationMs = %d, want 100000", s.EncounterDurationMs)
	}

	s = mustReduce(t, s, Event{Kind: EventResumeSession, Timestamp: at(160)})
	if s.PausedDurationMs != 60_000 {
		t.Errorf("PausedDurationMs = %d, want 60000", s.PausedDurationMs)
	}
	if s.PausedAt != nil {
		t.Error("PausedAt should be cleared on resume")
	}

	// stage duration + paused duration == wall time since stage start.
	now := at(300)
	total := s.CurrentStageDurationMs(now) + s.PausedDurationMs
	if want := now.Sub(*s.EncounterStartedAt).Milliseconds(); total != want {
		t.Errorf("duration accounting: %d, want %d", total, want)
	}
}

func TestDoublePauseRejected(t *testing.T) {
	s := startedSession(t, []string{"e1"})
	s = mustReduce(t, s, Event{Kind: EventPauseSession, Timestamp: at(10)})
	mustFail(t, s, Event{Kind: EventPauseSession, Timestamp: at(20)}, ErrInvalidTransition)
}

func TestSkipStage(t *testing.T) {
	s := startedSession(t, []string{"e1", "a1", "r1"})

	// Skip bypasses the duration guard entirely.
	s = mustReduce(t, s, Event{Kind: EventSkipStage, Reason: "placement", Timestamp: at(5)})
	if s.CurrentStage != StageAnalysis {
		t.Fatalf("CurrentStage = %s, want analysis", s.CurrentStage)
	}
	if !s.EncounterComplete {
		t.Error("skipped stage should be marked complete")
	}

	s = mustReduce(t, s, Event{Kind: EventSkipStage, Reason: "placement", Timestamp: at(6)})
	if s.CurrentStage != StageReturn {
		t.Fatalf("CurrentStage = %s, want return", s.CurrentStage)
	}

	// Return has no next stage.
	mustFail(t, s, Event{Kind: EventSkipStage, Timestamp: at(7)}, ErrInvalidTransition)
}

func TestAbandonAndResumeAbandoned(t *testing.T) {
	s := startedSession(t, []string{"e1", "a1"})
	s = mustReduce(t, s, Event{Kind: EventAbandonSession, Reason: "timeout", Timestamp: at(90)})

	if s.Status != StatusAbandoned {
		t.Fatalf("Status = %s, want abandoned", s.Status)
	}
	if s.AbandonedAtStage != StageEncounter {
		t.Errorf("AbandonedAtStage = %s, want encounter", s.AbandonedAtStage)
	}
	if s.AbandonmentReason != "timeout" {
		t.Errorf("AbandonmentReason = %q, want timeout", s.AbandonmentReason)
	}

	// Paused sessions use RESUME_SESSION, not RESUME_ABANDONED.
	mustFail(t, s, Event{Kind: EventResumeSession, Timestamp: at(100)}, ErrInvalidTransition)

	s = mustReduce(t, s, Event{Kind: EventResumeAbandoned, Timestamp: at(100)})
	if s.Status != StatusInProgress || s.CurrentStage != StageEncounter {
		t.Errorf("resume: status=%s stage=%s", s.Status, s.CurrentStage)
	}
	if s.AbandonedAtStage != "" || s.AbandonmentReason != "" {
		t.Error("abandonment fields should be cleared")
	}
}

func TestAbandonFromPaused(t *testing.T) {
	s := startedSession(t, []string{"e1"})
	s = mustReduce(t, s, Event{Kind: EventPauseSession, Timestamp: at(30)})
	s = mustReduce(t, s, Event{Kind: EventAbandonSession, Reason: "quit", Timestamp: at(50)})

	if s.Status != StatusAbandoned {
		t.Fatalf("Status = %s, want abandoned", s.Status)
	}
	if s.PausedDurationMs != 20_000 {
		t.Errorf("PausedDurationMs = %d, want 20000", s.PausedDurationMs)
	}
	if s.PausedAt != nil {
		t.Error("PausedAt should be closed on abandon")
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	s := startedSession(t, []string{"e1"})
	s.CurrentStage = StageReturn
	now := at(0)
	s.ReturnStartedAt = &now
	s.ReturnComplete = true
	s = mustReduce(t, s, Event{Kind: EventCompleteSession, Timestamp: at(200)})

	for _, kind := range []EventKind{
		EventStartSession, EventPauseSession, EventResumeSession,
		EventAdvanceStage, EventSkipStage, EventCompleteSession,
		EventAbandonSession, EventResumeAbandoned,
	} {
		mustFail(t, s, Event{Kind: kind, Timestamp: at(300)}, ErrInvalidTransition)
	}
}

func TestCompleteActivityGuards(t *testing.T) {
	s := startedSession(t, []string{"e1"})
	s = mustReduce(t, s, Event{Kind: EventCompleteActivity, ActivityID: "e1", Timestamp: at(10)})

	// Queue exhausted.
	mustFail(t, s, Event{Kind: EventCompleteActivity, ActivityID: "x", Timestamp: at(11)}, ErrGuardFailed)
}

func TestCompletedActivityIDsDedup(t *testing.T) {
	s := startedSession(t, []string{"e1", "e1b", "a1"})
	s = mustReduce(t, s, Event{Kind: EventCompleteActivity, ActivityID: "e1", Timestamp: at(1)})
	s = mustReduce(t, s, Event{Kind: EventCompleteActivity, ActivityID: "e1", Timestamp: at(2)})

	if len(s.CompletedActivityIDs) != 1 {
		t.Errorf("CompletedActivityIDs = %v, want single entry", s.CompletedActivityIDs)
	}
	if s.CurrentItemIndex != 2 {
		t.Errorf("CurrentItemIndex = %d, want 2", s.CurrentItemIndex)
	}
}

func TestUnknownEvent(t *testing.T) {
	s := startedSession(t, []string{"e1"})
	mustFail(t, s, Event{Kind: "EXPLODE", Timestamp: at(1)}, ErrUnknownEvent)
}

func TestReducerPurity(t *testing.T) {
	s := startedSession(t, []string{"e1", "a1"})
	queueBefore := append([]string(nil), s.ItemQueue...)
	idxBefore := s.CurrentItemIndex

	res := Reduce(s, Event{Kind: EventCompleteActivity, ActivityID: "e1", Timestamp: at(10)}, DefaultConfig())
	if !res.OK {
		t.Fatal(res.Reason)
	}

	if s.CurrentItemIndex != idxBefore {
		t.Error("input state index mutated")
	}
	for i, id := range s.ItemQueue {
		if id != queueBefore[i] {
			t.Error("input state queue mutated")
		}
	}

	// Mutating the result must not leak back.
	res.State.ItemQueue[0] = "zz"
	if s.ItemQueue[0] != "e1" {
		t.Error("result state aliases the input queue")
	}
}

func TestCustomGuardPanicBecomesReducerError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CustomGuards = map[EventKind]GuardFunc{
		EventPauseSession: func(State, Event) (bool, string) { panic("boom") },
	}

	s := startedSession(t, []string{"e1"})
	res := Reduce(s, Event{Kind: EventPauseSession, Timestamp: at(5)}, cfg)
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.ErrKind != ErrReducerError {
		t.Errorf("ErrKind = %s, want REDUCER_ERROR", res.ErrKind)
	}
}

func TestCustomGuardDenies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CustomGuards = map[EventKind]GuardFunc{
		EventAbandonSession: func(State, Event) (bool, string) { return false, "policy" },
	}

	s := startedSession(t, []string{"e1"})
	res := Reduce(s, Event{Kind: EventAbandonSession, Timestamp: at(5)}, cfg)
	if res.OK || res.ErrKind != ErrGuardFailed {
		t.Errorf("got %v %s, want GUARD_FAILED", res.OK, res.ErrKind)
	}
}

func TestMissingTimestamp(t *testing.T) {
	s := startedSession(t, []string{"e1"})
	mustFail(t, s, Event{Kind: EventPauseSession}, ErrInvalidState)
}
