package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// UpsertKcState writes the per-(user, KC) mastery record.
func (q *queries) UpsertKcState(ctx context.Context, s LearnerKcState) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO learner_kc_state (
			user_id, kc_id, lh_accuracy, lh_attempts, lh_last_accuracy,
			rh_score, rh_attempts, rh_last_score, mastery_level,
			integrated_score, difficulty_tier, first_encountered,
			last_practiced, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, kc_id) DO UPDATE SET
			lh_accuracy = excluded.lh_accuracy,
			lh_attempts = excluded.lh_attempts,
			lh_last_accuracy = excluded.lh_last_accuracy,
			rh_score = excluded.rh_score,
			rh_attempts = excluded.rh_attempts,
			rh_last_score = excluded.rh_last_score,
			mastery_level = excluded.mastery_level,
			integrated_score = excluded.integrated_score,
			difficulty_tier = excluded.difficulty_tier,
			last_practiced = excluded.last_practiced,
			updated_at = excluded.updated_at`,
		s.UserID, s.KcID, s.LhAccuracy, s.LhAttempts, s.LhLastAccuracy,
		s.RhScore, s.RhAttempts, s.RhLastScore, s.MasteryLevel,
		s.IntegratedScore, s.DifficultyTier, s.FirstEncountered,
		s.LastPracticed, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert kc state %s/%s: %w", s.UserID, s.KcID, err)
	}
	return nil
}

// KcStates bulk-reads mastery records keyed by KC id.
func (q *queries) KcStates(ctx context.Context, userID string, kcIDs []string) (map[string]LearnerKcState, error) {
	if len(kcIDs) == 0 {
		return map[string]LearnerKcState{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT * FROM learner_kc_state WHERE user_id = ? AND kc_id IN (?)`,
		userID, kcIDs)
	if err != nil {
		return nil, fmt.Errorf("kc states: %w", err)
	}

	var rows []LearnerKcState
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("kc states for %s: %w", userID, err)
	}

	out := make(map[string]LearnerKcState, len(rows))
	for _, r := range rows {
		out[r.KcID] = r
	}
	return out, nil
}

// KcStatesForTopic reads the mastery records whose KC belongs to the
// topic, for the HBS and level computation at session start.
func (q *queries) KcStatesForTopic(ctx context.Context, userID, topicID string) ([]LearnerKcState, error) {
	var rows []LearnerKcState
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT s.* FROM learner_kc_state s
		 JOIN knowledge_components kc ON kc.id = s.kc_id
		 WHERE s.user_id = ? AND kc.topic_id = ?
		 ORDER BY s.kc_id`, userID, topicID)
	if err != nil {
		return nil, fmt.Errorf("kc states for %s topic %s: %w", userID, topicID, err)
	}
	return rows, nil
}

// UpsertTopicProficiency writes the per-topic summary.
func (q *queries) UpsertTopicProficiency(ctx context.Context, p TopicProficiency) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO learner_topic_proficiency (
			user_id, topic_id, proficiency, kcs_mastered, kcs_in_progress,
			kcs_not_started, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, topic_id) DO UPDATE SET
			proficiency = excluded.proficiency,
			kcs_mastered = excluded.kcs_mastered,
			kcs_in_progress = excluded.kcs_in_progress,
			kcs_not_started = excluded.kcs_not_started,
			updated_at = excluded.updated_at`,
		p.UserID, p.TopicID, p.Proficiency, p.KcsMastered, p.KcsInProgress,
		p.KcsNotStarted, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert topic proficiency %s/%s: %w", p.UserID, p.TopicID, err)
	}
	return nil
}

// GetTopicProficiency returns the per-topic summary or nil.
func (q *queries) GetTopicProficiency(ctx context.Context, userID, topicID string) (*TopicProficiency, error) {
	var p TopicProficiency
	err := sqlx.GetContext(ctx, q.ext, &p,
		`SELECT * FROM learner_topic_proficiency WHERE user_id = ? AND topic_id = ?`,
		userID, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("topic proficiency %s/%s: %w", userID, topicID, err)
	}
	return &p, nil
}

// GetProfile returns the learner's profile blobs or nil when the
// learner has never completed a session.
func (q *queries) GetProfile(ctx context.Context, userID string) (*LearnerProfile, error) {
	var p LearnerProfile
	err := sqlx.GetContext(ctx, q.ext, &p,
		`SELECT * FROM learner_profiles WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile for %s: %w", userID, err)
	}
	return &p, nil
}

// UpsertProfile writes the learner's profile blobs.
func (q *queries) UpsertProfile(ctx context.Context, p LearnerProfile) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO learner_profiles (user_id, behavioral, cognitive, motivational, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			behavioral = excluded.behavioral,
			cognitive = excluded.cognitive,
			motivational = excluded.motivational,
			updated_at = excluded.updated_at`,
		p.UserID, p.Behavioral, p.Cognitive, p.Motivational, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile for %s: %w", p.UserID, err)
	}
	return nil
}
