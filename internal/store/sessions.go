package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// InsertSession persists a new session row.
func (q *queries) InsertSession(ctx context.Context, s Session) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO sessions (
			id, user_id, topic_id, session_type, status, started_at,
			completed_at, duration_s, accuracy, adaptive_decisions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TopicID, s.SessionType, s.Status, s.StartedAt,
		s.CompletedAt, s.DurationS, s.Accuracy, s.AdaptiveDecisions)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession returns the session by id or ErrNotFound.
func (q *queries) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := sqlx.GetContext(ctx, q.ext, &s, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &s, nil
}

// ActiveSession returns the most recently started in_progress session
// for the user, or nil when none exists.
func (q *queries) ActiveSession(ctx context.Context, userID string) (*Session, error) {
	var s Session
	err := sqlx.GetContext(ctx, q.ext, &s,
		`SELECT * FROM sessions
		 WHERE user_id = ? AND status = 'in_progress'
		 ORDER BY started_at DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active session for %s: %w", userID, err)
	}
	return &s, nil
}

// ActiveSessionForTopic returns the in_progress session for (user,
// topic), or nil when none exists.
func (q *queries) ActiveSessionForTopic(ctx context.Context, userID, topicID string) (*Session, error) {
	var s Session
	err := sqlx.GetContext(ctx, q.ext, &s,
		`SELECT * FROM sessions
		 WHERE user_id = ? AND topic_id = ? AND status = 'in_progress'
		 ORDER BY started_at DESC LIMIT 1`, userID, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active session for %s/%s: %w", userID, topicID, err)
	}
	return &s, nil
}

// UpdateSessionState overwrites the adaptive_decisions snapshot.
func (q *queries) UpdateSessionState(ctx context.Context, sessionID, adaptiveDecisions string) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE sessions SET adaptive_decisions = ? WHERE id = ?`,
		adaptiveDecisions, sessionID)
	if err != nil {
		return fmt.Errorf("update session state %s: %w", sessionID, err)
	}
	return nil
}

// UpdateSessionOutcome writes the terminal fields together with the
// final state snapshot.
func (q *queries) UpdateSessionOutcome(ctx context.Context, s Session) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE sessions
		 SET status = ?, completed_at = ?, duration_s = ?, accuracy = ?,
		     adaptive_decisions = ?
		 WHERE id = ?`,
		s.Status, s.CompletedAt, s.DurationS, s.Accuracy, s.AdaptiveDecisions, s.ID)
	if err != nil {
		return fmt.Errorf("update session outcome %s: %w", s.ID, err)
	}
	return nil
}

// CountSessions returns how many sessions the user has ever started.
func (q *queries) CountSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("count sessions for %s: %w", userID, err)
	}
	return n, nil
}

// RecentSessions returns the user's latest sessions, newest first.
func (q *queries) RecentSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	var out []Session
	err := sqlx.SelectContext(ctx, q.ext, &out,
		`SELECT * FROM sessions WHERE user_id = ?
		 ORDER BY started_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions for %s: %w", userID, err)
	}
	return out, nil
}

// InsertAssessmentEvent appends one immutable response event.
func (q *queries) InsertAssessmentEvent(ctx context.Context, e AssessmentEvent) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO assessment_events (
			id, user_id, session_id, content_item_id, kc_id, stage,
			response_type, payload, is_correct, score, scoring_method,
			presented_at, responded_at, latency_ms, confidence_rating,
			self_rating, help_requested, difficulty_level
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.SessionID, e.ContentItemID, e.KcID, e.Stage,
		e.ResponseType, e.Payload, e.IsCorrect, e.Score, e.ScoringMethod,
		e.PresentedAt, e.RespondedAt, e.LatencyMs, e.ConfidenceRating,
		e.SelfRating, e.HelpRequested, e.DifficultyLevel)
	if err != nil {
		return fmt.Errorf("insert assessment event %s: %w", e.ID, err)
	}
	return nil
}

// SessionEvents lists a session's assessment events in response order.
func (q *queries) SessionEvents(ctx context.Context, sessionID string) ([]AssessmentEvent, error) {
	var out []AssessmentEvent
	err := sqlx.SelectContext(ctx, q.ext, &out,
		`SELECT * FROM assessment_events
		 WHERE session_id = ? ORDER BY responded_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("events for session %s: %w", sessionID, err)
	}
	return out, nil
}

// RecentUserEvents lists the user's latest assessment events, newest
// first, for protocol classification and profile refresh.
func (q *queries) RecentUserEvents(ctx context.Context, userID string, limit int) ([]AssessmentEvent, error) {
	var out []AssessmentEvent
	err := sqlx.SelectContext(ctx, q.ext, &out,
		`SELECT * FROM assessment_events WHERE user_id = ?
		 ORDER BY responded_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events for %s: %w", userID, err)
	}
	return out, nil
}
