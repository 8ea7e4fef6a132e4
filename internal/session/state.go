package session

import "time"

// Status represents the lifecycle position of a session.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleting Status = "completing"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Stage is one of the three stages of the learning loop.
type Stage string

const (
	StageEncounter Stage = "encounter"
	StageAnalysis  Stage = "analysis"
	StageReturn    Stage = "return"
)

// Type is the session length class.
type Type string

const (
	TypeQuick    Type = "quick"
	TypeStandard Type = "standard"
	TypeExtended Type = "extended"
)

// PlannedBalance records how many queue items came from each selection
// source when the session was planned.
type PlannedBalance struct {
	New         int `json:"new"`
	Review      int `json:"review"`
	Interleaved int `json:"interleaved"`
}

// State is the single source of truth for one in-flight session. It is
// persisted whole as the session row's adaptive-decisions JSON blob, so
// every field carries a JSON tag.
//
// Invariants the reducer maintains:
//   - Status == in_progress implies CurrentStage != "".
//   - Status == completed implies CompletedAt != nil and >= StartedAt.
//   - Stage start instants are ordered encounter <= analysis <= return.
//   - 0 <= CurrentItemIndex <= len(ItemQueue).
//   - All duration fields are >= 0.
type State struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	TopicID   string `json:"topicId"`

	Status       Status `json:"status"`
	CurrentStage Stage  `json:"currentStage,omitempty"`

	StartedAt          *time.Time `json:"startedAt,omitempty"`
	PausedAt           *time.Time `json:"pausedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	EncounterStartedAt *time.Time `json:"encounterStartedAt,omitempty"`
	AnalysisStartedAt  *time.Time `json:"analysisStartedAt,omitempty"`
	ReturnStartedAt    *time.Time `json:"returnStartedAt,omitempty"`

	// segmentStartedAt marks when the current running segment began:
	// the stage start, or the last resume. Nil while paused or idle.
	SegmentStartedAt *time.Time `json:"segmentStartedAt,omitempty"`

	TotalDurationMs     int64 `json:"totalDurationMs"`
	EncounterDurationMs int64 `json:"encounterDurationMs"`
	AnalysisDurationMs  int64 `json:"analysisDurationMs"`
	ReturnDurationMs    int64 `json:"returnDurationMs"`
	PausedDurationMs    int64 `json:"pausedDurationMs"`

	ItemQueue        []string `json:"itemQueue"`
	CurrentItemIndex int      `json:"currentItemIndex"`

	EncounterComplete    bool     `json:"encounterComplete"`
	AnalysisComplete     bool     `json:"analysisComplete"`
	ReturnComplete       bool     `json:"returnComplete"`
	CompletedActivityIDs []string `json:"completedActivityIds"`

	AbandonedAtStage  Stage  `json:"abandonedAtStage,omitempty"`
	AbandonmentReason string `json:"abandonmentReason,omitempty"`

	SessionType    Type           `json:"sessionType"`
	PlannedBalance PlannedBalance `json:"plannedBalance"`
}

// NewState creates a ready session with the given item queue.
func NewState(sessionID, userID, topicID string, sessionType Type, queue []string) State {
	q := make([]string, len(queue))
	copy(q, queue)
	return State{
		SessionID:   sessionID,
		UserID:      userID,
		TopicID:     topicID,
		Status:      StatusReady,
		SessionType: sessionType,
		ItemQueue:   q,
	}
}

// Clone deep-copies the state so the reducer never aliases the caller's
// slices.
func (s State) Clone() State {
	out := s
	out.ItemQueue = append([]string(nil), s.ItemQueue...)
	out.CompletedActivityIDs = append([]string(nil), s.CompletedActivityIDs...)
	out.StartedAt = cloneTime(s.StartedAt)
	out.PausedAt = cloneTime(s.PausedAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	out.EncounterStartedAt = cloneTime(s.EncounterStartedAt)
	out.AnalysisStartedAt = cloneTime(s.AnalysisStartedAt)
	out.ReturnStartedAt = cloneTime(s.ReturnStartedAt)
	out.SegmentStartedAt = cloneTime(s.SegmentStartedAt)
	return out
}

// MarkStageComplete sets the completion flag for a stage. The
// orchestrator calls this when a response crosses a stage boundary,
// before attempting the guarded advance.
func (s *State) MarkStageComplete(stage Stage) {
	switch stage {
	case StageEncounter:
		s.EncounterComplete = true
	case StageAnalysis:
		s.AnalysisComplete = true
	case StageReturn:
		s.ReturnComplete = true
	}
}

// StageDurationMs returns the accumulated duration for a stage, not
// counting a currently running segment.
func (s State) StageDurationMs(stage Stage) int64 {
	switch stage {
	case StageEncounter:
		return s.EncounterDurationMs
	case StageAnalysis:
		return s.AnalysisDurationMs
	case StageReturn:
		return s.ReturnDurationMs
	}
	return 0
}

// CurrentStageDurationMs returns the live duration of the current stage
// at now, including the running segment if one is open.
func (s State) CurrentStageDurationMs(now time.Time) int64 {
	d := s.StageDurationMs(s.CurrentStage)
	if s.SegmentStartedAt != nil && now.After(*s.SegmentStartedAt) {
		d += now.Sub(*s.SegmentStartedAt).Milliseconds()
	}
	return d
}

// NextQueueItem returns the item the learner should respond to next, or
// "" when the queue is exhausted.
func (s State) NextQueueItem() string {
	if s.CurrentItemIndex >= len(s.ItemQueue) {
		return ""
	}
	return s.ItemQueue[s.CurrentItemIndex]
}

func (s *State) addStageDuration(stage Stage, ms int64) {
	if ms < 0 {
		ms = 0
	}
	switch stage {
	case StageEncounter:
		s.EncounterDurationMs += ms
	case StageAnalysis:
		s.AnalysisDurationMs += ms
	case StageReturn:
		s.ReturnDurationMs += ms
	}
}

// closeSegment folds the running segment, if any, into the current
// stage's duration.
func (s *State) closeSegment(now time.Time) {
	if s.SegmentStartedAt == nil {
		return
	}
	s.addStageDuration(s.CurrentStage, now.Sub(*s.SegmentStartedAt).Milliseconds())
	s.SegmentStartedAt = nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
