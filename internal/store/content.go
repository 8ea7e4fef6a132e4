package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// GetUser returns the user by id or ErrNotFound.
func (q *queries) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.ext, &u, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// CreateUser inserts a user row.
func (q *queries) CreateUser(ctx context.Context, u User) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO users (id, display_name, role, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.DisplayName, u.Role, u.IsActive, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return nil
}

// GetTopic returns the topic by id or ErrNotFound.
func (q *queries) GetTopic(ctx context.Context, id string) (*Topic, error) {
	var t Topic
	err := sqlx.GetContext(ctx, q.ext, &t, `SELECT * FROM topics WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic %s: %w", id, err)
	}
	return &t, nil
}

// CreateTopic inserts a topic row.
func (q *queries) CreateTopic(ctx context.Context, t Topic) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO topics (id, name) VALUES (?, ?)`, t.ID, t.Name)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", t.ID, err)
	}
	return nil
}

// CreateKc inserts a knowledge component row.
func (q *queries) CreateKc(ctx context.Context, kc KnowledgeComponent) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO knowledge_components (id, topic_id, name) VALUES (?, ?, ?)`,
		kc.ID, kc.TopicID, kc.Name)
	if err != nil {
		return fmt.Errorf("create kc %s: %w", kc.ID, err)
	}
	return nil
}

// KcsByTopic lists the knowledge components of a topic.
func (q *queries) KcsByTopic(ctx context.Context, topicID string) ([]KnowledgeComponent, error) {
	var out []KnowledgeComponent
	err := sqlx.SelectContext(ctx, q.ext, &out,
		`SELECT * FROM knowledge_components WHERE topic_id = ? ORDER BY id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("kcs by topic %s: %w", topicID, err)
	}
	return out, nil
}

// CreateContentItem inserts a content item row.
func (q *queries) CreateContentItem(ctx context.Context, item ContentItem) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO content_items (
			id, topic_id, stage, item_type, difficulty_level, hemisphere_mode,
			estimated_duration_s, is_active, is_reviewable, interleave_eligible,
			similarity_tags, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TopicID, item.Stage, item.ItemType, item.DifficultyLevel,
		item.HemisphereMode, item.EstimatedDurationS, item.IsActive,
		item.IsReviewable, item.InterleaveEligible, item.SimilarityTags, item.Body)
	if err != nil {
		return fmt.Errorf("create content item %s: %w", item.ID, err)
	}
	return nil
}

// ListActiveItems returns every active content item, ordered by stage
// then difficulty (the pool order the planner expects).
func (q *queries) ListActiveItems(ctx context.Context) ([]ContentItem, error) {
	var out []ContentItem
	err := sqlx.SelectContext(ctx, q.ext, &out,
		`SELECT * FROM content_items
		 WHERE is_active = 1
		 ORDER BY stage, difficulty_level, id`)
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	return out, nil
}

// ItemsByIDs bulk-reads content items by id.
func (q *queries) ItemsByIDs(ctx context.Context, ids []string) ([]ContentItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM content_items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("items by ids: %w", err)
	}
	var out []ContentItem
	if err := sqlx.SelectContext(ctx, q.ext, &out, query, args...); err != nil {
		return nil, fmt.Errorf("items by ids: %w", err)
	}
	return out, nil
}

// LinkItemKc associates a content item with a knowledge component.
func (q *queries) LinkItemKc(ctx context.Context, itemID, kcID string, primary bool) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO content_item_kcs (content_item_id, kc_id, is_primary)
		 VALUES (?, ?, ?)`, itemID, kcID, primary)
	if err != nil {
		return fmt.Errorf("link item %s to kc %s: %w", itemID, kcID, err)
	}
	return nil
}

// PrimaryKcs returns the primary KC per content item for the given ids.
// Items without a KC association are absent from the map.
func (q *queries) PrimaryKcs(ctx context.Context, itemIDs []string) (map[string]string, error) {
	if len(itemIDs) == 0 {
		return map[string]string{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT content_item_id, kc_id FROM content_item_kcs
		 WHERE is_primary = 1 AND content_item_id IN (?)`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("primary kcs: %w", err)
	}

	var rows []struct {
		ContentItemID string `db:"content_item_id"`
		KcID          string `db:"kc_id"`
	}
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("primary kcs: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.ContentItemID] = r.KcID
	}
	return out, nil
}
