package session

import "time"

// EventKind identifies a state machine event.
type EventKind string

const (
	EventStartSession     EventKind = "START_SESSION"
	EventPauseSession     EventKind = "PAUSE_SESSION"
	EventResumeSession    EventKind = "RESUME_SESSION"
	EventCompleteActivity EventKind = "COMPLETE_ACTIVITY"
	EventAdvanceStage     EventKind = "ADVANCE_STAGE"
	EventSkipStage        EventKind = "SKIP_STAGE"
	EventCompleteSession  EventKind = "COMPLETE_SESSION"
	EventAbandonSession   EventKind = "ABANDON_SESSION"
	EventResumeAbandoned  EventKind = "RESUME_ABANDONED"
)

// Event is a single input to the reducer. Timestamp is required;
// ActivityID applies to COMPLETE_ACTIVITY, Reason to SKIP_STAGE and
// ABANDON_SESSION.
type Event struct {
	Kind       EventKind
	Timestamp  time.Time
	ActivityID string
	Reason     string
}

// ErrKind classifies a rejected reducer call.
type ErrKind string

const (
	ErrInvalidTransition ErrKind = "INVALID_TRANSITION"
	ErrInvalidState      ErrKind = "INVALID_STATE"
	ErrGuardFailed       ErrKind = "GUARD_FAILED"
	ErrUnknownEvent      ErrKind = "UNKNOWN_EVENT"
	ErrReducerError      ErrKind = "REDUCER_ERROR"
)

// Result is the reducer's explicit outcome: either OK with the new state,
// or a classified rejection with the input state untouched.
type Result struct {
	OK      bool
	State   State
	ErrKind ErrKind
	Reason  string
}

func ok(s State) Result {
	return Result{OK: true, State: s}
}

func reject(kind ErrKind, reason string) Result {
	return Result{ErrKind: kind, Reason: reason}
}
