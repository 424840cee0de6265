package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations are applied in order on every startup; each statement is
// idempotent so restarting against an existing database is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS stories (
		id            TEXT PRIMARY KEY,
		resident_id   TEXT        NOT NULL,
		session_id    TEXT        NOT NULL,
		question_id   TEXT        NOT NULL,
		question_text TEXT        NOT NULL,
		theme         TEXT        NOT NULL,
		transcript    TEXT        NOT NULL,
		duration_ns   BIGINT      NOT NULL,
		recorded_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS stories_resident_recorded_idx
		ON stories (resident_id, recorded_at DESC)`,
	`CREATE INDEX IF NOT EXISTS stories_transcript_fts_idx
		ON stories USING GIN (to_tsvector('english', transcript))`,
}

// Migrate ensures the stories table and its indexes exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// durationFromNS converts a stored nanosecond count back to a Duration.
func durationFromNS(ns int64) time.Duration {
	return time.Duration(ns)
}
