package store

import "github.com/jmoiron/sqlx"

// migrate creates the schema if it does not exist. Statements are
// idempotent so repeated startup is safe.
func migrate(db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		role         TEXT NOT NULL DEFAULT 'learner',
		is_active    INTEGER NOT NULL DEFAULT 1,
		created_at   TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS topics (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS knowledge_components (
		id       TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL REFERENCES topics(id),
		name     TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS content_items (
		id                   TEXT PRIMARY KEY,
		topic_id             TEXT NOT NULL REFERENCES topics(id),
		stage                TEXT NOT NULL,
		item_type            TEXT NOT NULL,
		difficulty_level     INTEGER NOT NULL DEFAULT 1,
		hemisphere_mode      TEXT NOT NULL DEFAULT 'balanced',
		estimated_duration_s INTEGER NOT NULL DEFAULT 60,
		is_active            INTEGER NOT NULL DEFAULT 1,
		is_reviewable        INTEGER NOT NULL DEFAULT 1,
		interleave_eligible  INTEGER NOT NULL DEFAULT 0,
		similarity_tags      TEXT NOT NULL DEFAULT '[]',
		body                 TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_items_topic
		ON content_items(topic_id, stage, difficulty_level)`,

	`CREATE TABLE IF NOT EXISTS content_item_kcs (
		content_item_id TEXT NOT NULL REFERENCES content_items(id),
		kc_id           TEXT NOT NULL REFERENCES knowledge_components(id),
		is_primary      INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (content_item_id, kc_id)
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL REFERENCES users(id),
		topic_id           TEXT NOT NULL REFERENCES topics(id),
		session_type       TEXT NOT NULL,
		status             TEXT NOT NULL,
		started_at         TIMESTAMP NOT NULL,
		completed_at       TIMESTAMP,
		duration_s         INTEGER NOT NULL DEFAULT 0,
		accuracy           REAL,
		adaptive_decisions TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_status
		ON sessions(user_id, status, started_at)`,

	`CREATE TABLE IF NOT EXISTS assessment_events (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL REFERENCES users(id),
		session_id        TEXT NOT NULL REFERENCES sessions(id),
		content_item_id   TEXT NOT NULL,
		kc_id             TEXT,
		stage             TEXT NOT NULL,
		response_type     TEXT NOT NULL,
		payload           TEXT NOT NULL DEFAULT '{}',
		is_correct        INTEGER,
		score             REAL,
		scoring_method    TEXT NOT NULL,
		presented_at      TIMESTAMP NOT NULL,
		responded_at      TIMESTAMP NOT NULL,
		latency_ms        INTEGER NOT NULL DEFAULT 0,
		confidence_rating INTEGER,
		self_rating       INTEGER,
		help_requested    INTEGER NOT NULL DEFAULT 0,
		difficulty_level  INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assessment_events_session
		ON assessment_events(session_id, responded_at)`,

	`CREATE TABLE IF NOT EXISTS fsrs_memory (
		user_id        TEXT NOT NULL,
		memory_item_id TEXT NOT NULL,
		kc_id          TEXT,
		stage_type     TEXT NOT NULL,
		stability      REAL NOT NULL DEFAULT 0,
		difficulty     REAL NOT NULL DEFAULT 0,
		retrievability REAL NOT NULL DEFAULT 1,
		state          TEXT NOT NULL DEFAULT 'new',
		last_review    TIMESTAMP,
		next_review    TIMESTAMP,
		review_count   INTEGER NOT NULL DEFAULT 0,
		lapse_count    INTEGER NOT NULL DEFAULT 0,
		consecutive_again INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, memory_item_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fsrs_memory_stage
		ON fsrs_memory(user_id, stage_type, kc_id)`,

	`CREATE TABLE IF NOT EXISTS learner_kc_state (
		user_id           TEXT NOT NULL,
		kc_id             TEXT NOT NULL,
		lh_accuracy       REAL NOT NULL DEFAULT 0,
		lh_attempts       INTEGER NOT NULL DEFAULT 0,
		lh_last_accuracy  REAL NOT NULL DEFAULT 0,
		rh_score          REAL NOT NULL DEFAULT 0,
		rh_attempts       INTEGER NOT NULL DEFAULT 0,
		rh_last_score     REAL NOT NULL DEFAULT 0,
		mastery_level     REAL NOT NULL DEFAULT 0,
		integrated_score  REAL NOT NULL DEFAULT 0,
		difficulty_tier   INTEGER NOT NULL DEFAULT 1,
		first_encountered TIMESTAMP,
		last_practiced    TIMESTAMP,
		updated_at        TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, kc_id)
	)`,

	`CREATE TABLE IF NOT EXISTS learner_topic_proficiency (
		user_id         TEXT NOT NULL,
		topic_id        TEXT NOT NULL,
		proficiency     REAL NOT NULL DEFAULT 0,
		kcs_mastered    INTEGER NOT NULL DEFAULT 0,
		kcs_in_progress INTEGER NOT NULL DEFAULT 0,
		kcs_not_started INTEGER NOT NULL DEFAULT 0,
		updated_at      TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, topic_id)
	)`,

	`CREATE TABLE IF NOT EXISTS learner_profiles (
		user_id      TEXT PRIMARY KEY,
		behavioral   TEXT NOT NULL DEFAULT '{}',
		cognitive    TEXT NOT NULL DEFAULT '{}',
		motivational TEXT NOT NULL DEFAULT '{}',
		updated_at   TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS fsrs_parameters (
		user_id          TEXT PRIMARY KEY,
		weights          TEXT NOT NULL,
		target_retention REAL NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
}
