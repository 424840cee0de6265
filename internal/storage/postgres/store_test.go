package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pollyconnect/polly/internal/storage"
	"github.com/pollyconnect/polly/internal/storage/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if POLLY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POLLY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POLLY_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS stories"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func testStory(id, residentID, transcript string, at time.Time) storage.Story {
	return storage.Story{
		ID:           id,
		ResidentID:   residentID,
		SessionID:    "sess-1",
		QuestionID:   "week-1-where",
		QuestionText: "Where did you grow up?",
		Theme:        "childhood",
		Transcript:   transcript,
		Duration:     42 * time.Second,
		RecordedAt:   at,
	}
}

func TestSaveAndListStories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	stories := []storage.Story{
		testStory("a1", "rose", "i grew up on a farm in kansas", base),
		testStory("a2", "rose", "my mother taught piano lessons", base.Add(time.Hour)),
		testStory("a3", "albert", "we lived by the harbor", base.Add(30*time.Minute)),
	}
	for _, st := range stories {
		if err := store.SaveStory(ctx, st); err != nil {
			t.Fatalf("SaveStory(%s): %v", st.ID, err)
		}
	}

	got, err := store.ListStories(ctx, "rose", 0)
	if err != nil {
		t.Fatalf("ListStories: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d stories, want 2", len(got))
	}
	if got[0].ID != "a2" || got[1].ID != "a1" {
		t.Errorf("order = %s, %s, want newest first a2, a1", got[0].ID, got[1].ID)
	}
	if got[0].Duration != 42*time.Second {
		t.Errorf("duration round-tripped as %v", got[0].Duration)
	}
	if got[0].Theme != "childhood" || got[0].QuestionText == "" {
		t.Errorf("story fields lost: %+v", got[0])
	}

	limited, err := store.ListStories(ctx, "rose", 1)
	if err != nil {
		t.Fatalf("ListStories limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "a2" {
		t.Errorf("limited list = %v", limited)
	}
}

func TestSearchStoriesFullText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, st := range []storage.Story{
		testStory("b1", "rose", "i grew up on a farm in kansas", base),
		testStory("b2", "rose", "my mother taught piano lessons", base.Add(time.Hour)),
		testStory("b3", "albert", "the farm was near the river", base.Add(2*time.Hour)),
	} {
		if err := store.SaveStory(ctx, st); err != nil {
			t.Fatalf("SaveStory %d: %v", i, err)
		}
	}

	got, err := store.SearchStories(ctx, "rose", "farm", 0)
	if err != nil {
		t.Fatalf("SearchStories: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b1" {
		t.Errorf("matches = %v, want only rose's farm story", got)
	}

	// Word-stem matching: "farms" should still hit via the tsvector.
	got, err = store.SearchStories(ctx, "rose", "farms", 0)
	if err != nil {
		t.Fatalf("SearchStories: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("stemmed query matched %d stories, want 1", len(got))
	}

	got, err = store.SearchStories(ctx, "rose", "locomotive", 0)
	if err != nil {
		t.Fatalf("SearchStories: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unrelated query matched %d stories", len(got))
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
