// Package postgres implements [storage.StoryStore] on PostgreSQL with a GIN
// full-text search index over transcripts.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pollyconnect/polly/internal/storage"
)

// Compile-time interface check.
var _ storage.StoryStore = (*Store)(nil)

// Store is a PostgreSQL-backed story store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the stories table and its indexes exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("story store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("story store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("story store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveStory implements [storage.StoryStore].
func (s *Store) SaveStory(ctx context.Context, story storage.Story) error {
	const q = `
		INSERT INTO stories
		    (id, resident_id, session_id, question_id, question_text, theme,
		     transcript, duration_ns, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		story.ID,
		story.ResidentID,
		story.SessionID,
		story.QuestionID,
		story.QuestionText,
		story.Theme,
		story.Transcript,
		story.Duration.Nanoseconds(),
		story.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("story store: save: %w", err)
	}
	return nil
}

// ListStories implements [storage.StoryStore].
func (s *Store) ListStories(ctx context.Context, residentID string, limit int) ([]storage.Story, error) {
	q := `
		SELECT id, resident_id, session_id, question_id, question_text, theme,
		       transcript, duration_ns, recorded_at
		FROM   stories
		WHERE  resident_id = $1
		ORDER  BY recorded_at DESC`
	args := []any{residentID}
	if limit > 0 {
		args = append(args, limit)
		q += "\nLIMIT $2"
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("story store: list: %w", err)
	}
	return collectStories(rows)
}

// SearchStories implements [storage.StoryStore]. The query is passed to
// plainto_tsquery so no special operator syntax is required.
func (s *Store) SearchStories(ctx context.Context, residentID, query string, limit int) ([]storage.Story, error) {
	q := `
		SELECT id, resident_id, session_id, question_id, question_text, theme,
		       transcript, duration_ns, recorded_at
		FROM   stories
		WHERE  resident_id = $1
		  AND  to_tsvector('english', transcript) @@ plainto_tsquery('english', $2)
		ORDER  BY recorded_at DESC`
	args := []any{residentID, query}
	if limit > 0 {
		args = append(args, limit)
		q += "\nLIMIT $3"
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("story store: search: %w", err)
	}
	return collectStories(rows)
}

// collectStories scans all rows into Story values.
func collectStories(rows pgx.Rows) ([]storage.Story, error) {
	defer rows.Close()

	var out []storage.Story
	for rows.Next() {
		var st storage.Story
		var durationNS int64
		if err := rows.Scan(
			&st.ID, &st.ResidentID, &st.SessionID,
			&st.QuestionID, &st.QuestionText, &st.Theme,
			&st.Transcript, &durationNS, &st.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("story store: scan: %w", err)
		}
		st.Duration = durationFromNS(durationNS)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("story store: rows: %w", err)
	}
	return out, nil
}
