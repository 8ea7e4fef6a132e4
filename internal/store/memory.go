package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// UpsertMemoryRow writes the memory state keyed by (user, memory item).
func (q *queries) UpsertMemoryRow(ctx context.Context, r FsrsMemoryRow) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO fsrs_memory (
			user_id, memory_item_id, kc_id, stage_type, stability, difficulty,
			retrievability, state, last_review, next_review, review_count,
			lapse_count, consecutive_again
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, memory_item_id) DO UPDATE SET
			kc_id = excluded.kc_id,
			stage_type = excluded.stage_type,
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			retrievability = excluded.retrievability,
			state = excluded.state,
			last_review = excluded.last_review,
			next_review = excluded.next_review,
			review_count = excluded.review_count,
			lapse_count = excluded.lapse_count,
			consecutive_again = excluded.consecutive_again`,
		r.UserID, r.MemoryItemID, r.KcID, r.StageType, r.Stability, r.Difficulty,
		r.Retrievability, r.State, r.LastReview, r.NextReview, r.ReviewCount,
		r.LapseCount, r.ConsecutiveAgain)
	if err != nil {
		return fmt.Errorf("upsert memory row %s/%s: %w", r.UserID, r.MemoryItemID, err)
	}
	return nil
}

// MemoryRows bulk-reads memory rows for the given item ids, keyed by
// memory item id.
func (q *queries) MemoryRows(ctx context.Context, userID string, itemIDs []string) (map[string]FsrsMemoryRow, error) {
	if len(itemIDs) == 0 {
		return map[string]FsrsMemoryRow{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT * FROM fsrs_memory WHERE user_id = ? AND memory_item_id IN (?)`,
		userID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("memory rows: %w", err)
	}

	var rows []FsrsMemoryRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("memory rows for %s: %w", userID, err)
	}

	out := make(map[string]FsrsMemoryRow, len(rows))
	for _, r := range rows {
		out[r.MemoryItemID] = r
	}
	return out, nil
}

// ReturnMemoryRows reads the concept-level return rows for the given
// KCs, keyed by KC id.
func (q *queries) ReturnMemoryRows(ctx context.Context, userID string, kcIDs []string) (map[string]FsrsMemoryRow, error) {
	if len(kcIDs) == 0 {
		return map[string]FsrsMemoryRow{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT * FROM fsrs_memory
		 WHERE user_id = ? AND stage_type = 'return' AND kc_id IN (?)`,
		userID, kcIDs)
	if err != nil {
		return nil, fmt.Errorf("return memory rows: %w", err)
	}

	var rows []FsrsMemoryRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("return memory rows for %s: %w", userID, err)
	}

	out := make(map[string]FsrsMemoryRow, len(rows))
	for _, r := range rows {
		if r.KcID != nil {
			out[*r.KcID] = r
		}
	}
	return out, nil
}

// AllMemoryRows reads every memory row for a user (weight tuning and
// stats reporting).
func (q *queries) AllMemoryRows(ctx context.Context, userID string) ([]FsrsMemoryRow, error) {
	var rows []FsrsMemoryRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT * FROM fsrs_memory WHERE user_id = ? ORDER BY memory_item_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("all memory rows for %s: %w", userID, err)
	}
	return rows, nil
}

// UsersWithReviews lists every user id holding at least one reviewed
// memory row, for the weekly tuning batch.
func (q *queries) UsersWithReviews(ctx context.Context) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, q.ext, &ids,
		`SELECT DISTINCT user_id FROM fsrs_memory
		 WHERE review_count > 0 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("users with reviews: %w", err)
	}
	return ids, nil
}

// GetFsrsParameters returns the per-user override, or nil when the
// learner uses the global defaults.
func (q *queries) GetFsrsParameters(ctx context.Context, userID string) (*FsrsParameters, error) {
	var p FsrsParameters
	err := sqlx.GetContext(ctx, q.ext, &p,
		`SELECT * FROM fsrs_parameters WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fsrs parameters for %s: %w", userID, err)
	}
	return &p, nil
}

// UpsertFsrsParameters writes the per-user weight override.
func (q *queries) UpsertFsrsParameters(ctx context.Context, p FsrsParameters) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO fsrs_parameters (user_id, weights, target_retention, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			weights = excluded.weights,
			target_retention = excluded.target_retention,
			updated_at = excluded.updated_at`,
		p.UserID, p.Weights, p.TargetRetention, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert fsrs parameters for %s: %w", p.UserID, err)
	}
	return nil
}

// DeleteFsrsParameters removes the per-user override so the learner
// falls back to global defaults.
func (q *queries) DeleteFsrsParameters(ctx context.Context, userID string) error {
	_, err := q.ext.ExecContext(ctx,
		`DELETE FROM fsrs_parameters WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete fsrs parameters for %s: %w", userID, err)
	}
	return nil
}
