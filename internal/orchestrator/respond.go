package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/learnloop/internal/scoring"
	"github.com/abhisek/learnloop/internal/session"
	"github.com/abhisek/learnloop/internal/store"
)

// RespondRequest is one learner response to the currently queued item.
type RespondRequest struct {
	SessionID        string `json:"sessionId"`
	ItemID           string `json:"itemId"`
	ResponseType     string `json:"responseType"`
	Payload          string `json:"payload"` // opaque JSON
	Correct          *bool  `json:"correct,omitempty"`
	ConfidenceRating *int   `json:"confidenceRating,omitempty"`
	SelfRating       *int   `json:"selfRating,omitempty"`
	HelpRequested    bool   `json:"helpRequested,omitempty"`
	LatencyMs        int64  `json:"latencyMs"`
}

// RespondResult tells the client what to render next.
type RespondResult struct {
	NextItem        *store.ContentItem `json:"nextItem,omitempty"`
	Stage           session.Stage      `json:"stage,omitempty"`
	SessionComplete bool               `json:"sessionComplete"`
}

// RecordResponse appends an assessment event, advances the state
// machine, and detects stage boundaries. Guard rejections on a boundary
// never surface: the stage simply does not advance and the next
// response retries it.
func (s *Service) RecordResponse(ctx context.Context, bearer string, req RespondRequest) (*RespondResult, error) {
	id, err := s.authenticate(ctx, bearer)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(id.UserID)
	lock.Lock()
	defer lock.Unlock()

	if req.SessionID == "" || req.ItemID == "" {
		return nil, errf(KindValidation, "sessionId and itemId are required")
	}
	if req.LatencyMs < 0 {
		return nil, errf(KindValidation, "latencyMs must be non-negative")
	}

	row, err := s.loadOwnedSession(ctx, id.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if row.Status != string(session.StatusInProgress) {
		return nil, errf(KindConflict, "session is %s, not in progress", row.Status)
	}

	st, err := decodeState(row.AdaptiveDecisions)
	if err != nil {
		return nil, err
	}
	expected := st.NextQueueItem()
	if expected == "" {
		return nil, errf(KindConflict, "item queue is exhausted")
	}
	if req.ItemID != expected {
		return nil, &Error{
			Kind:    KindConflict,
			Message: "itemId is out of sequence",
			Details: map[string]string{"expectedItemId": expected},
		}
	}

	byID, err := s.itemsByID(ctx, st.ItemQueue)
	if err != nil {
		return nil, err
	}
	item, ok := byID[req.ItemID]
	if !ok {
		return nil, errf(KindNotFound, "content item %s not found", req.ItemID)
	}

	kcs, err := s.store.PrimaryKcs(ctx, []string{req.ItemID})
	if err != nil {
		return nil, internalErr("resolve primary kc", err)
	}
	var kcID *string
	if kc, ok := kcs[req.ItemID]; ok {
		kcID = &kc
	}

	now := s.now()
	event := store.AssessmentEvent{
		ID:               uuid.NewString(),
		UserID:           id.UserID,
		SessionID:        req.SessionID,
		ContentItemID:    req.ItemID,
		KcID:             kcID,
		Stage:            string(st.CurrentStage),
		ResponseType:     req.ResponseType,
		Payload:          req.Payload,
		PresentedAt:      now.Add(-time.Duration(req.LatencyMs) * time.Millisecond),
		RespondedAt:      now,
		LatencyMs:        req.LatencyMs,
		ConfidenceRating: req.ConfidenceRating,
		SelfRating:       req.SelfRating,
		HelpRequested:    req.HelpRequested,
		DifficultyLevel:  item.DifficultyLevel,
	}
	s.gradeResponse(ctx, &event, req, item)

	finished := st.CurrentStage
	res := session.Reduce(st, session.Event{
		Kind:       session.EventCompleteActivity,
		Timestamp:  now,
		ActivityID: req.ItemID,
	}, s.cfg)
	if !res.OK {
		return nil, errf(KindInternal, "activity completion rejected: %s", res.Reason)
	}
	next := res.State

	// A stage boundary is reached when the queue is exhausted or the
	// next queued item belongs to a different stage.
	nextID := next.NextQueueItem()
	boundary := nextID == "" || byID[nextID].Stage != string(finished)
	if boundary {
		next.MarkStageComplete(finished)
		kind := session.EventAdvanceStage
		if finished == session.StageReturn {
			kind = session.EventCompleteSession
		}
		adv := session.Reduce(next, session.Event{Kind: kind, Timestamp: now}, s.cfg)
		if adv.OK {
			next = adv.State
		} else {
			// Guard failure is tolerated: the marked state persists so
			// the next response retries the boundary.
			s.logger.Debug("stage boundary held",
				zap.String("session_id", req.SessionID),
				zap.String("stage", string(finished)),
				zap.String("reason", adv.Reason),
			)
		}
	}

	snapshot, err := encodeState(next)
	if err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		if err := q.InsertAssessmentEvent(ctx, event); err != nil {
			return err
		}
		return q.UpdateSessionState(ctx, req.SessionID, snapshot)
	})
	if err != nil {
		return nil, internalErr("persist response", err)
	}

	out := &RespondResult{
		Stage:           next.CurrentStage,
		SessionComplete: next.Status == session.StatusCompleted,
	}
	if nid := next.NextQueueItem(); nid != "" && !out.SessionComplete {
		if it, ok := byID[nid]; ok {
			out.NextItem = &it
		}
	}
	return out, nil
}

// gradeResponse fills isCorrect, score and scoringMethod. Explicit
// correctness grades automatically; free-text answers go to the scoring
// collaborator when one is wired; everything else stays pending.
func (s *Service) gradeResponse(ctx context.Context, event *store.AssessmentEvent, req RespondRequest, item store.ContentItem) {
	if req.Correct != nil {
		c := *req.Correct
		score := 0.0
		if c {
			score = 1.0
		}
		event.IsCorrect = &c
		event.Score = &score
		event.ScoringMethod = "auto"
		return
	}

	text := freeText(req.Payload)
	if s.scorer == nil || text == "" {
		event.ScoringMethod = "pending"
		return
	}

	concept := item.ID
	if event.KcID != nil {
		concept = *event.KcID
	}
	result := s.scorer.Score(ctx, scoring.Request{
		Concept:      concept,
		Scenario:     item.Body,
		UserResponse: text,
	})
	score := result.Score
	event.Score = &score
	event.ScoringMethod = "external"
}

// freeText pulls the learner's prose out of the response payload.
func freeText(payload string) string {
	var body struct {
		Text   string `json:"text"`
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return ""
	}
	if body.Text != "" {
		return body.Text
	}
	return body.Answer
}
