// Package storage defines the story store boundary and its implementations.
//
// Finalized story recordings are handed to a [StoryStore] asynchronously;
// a store failure is logged and never blocks the conversation. Downstream
// consumers (transcription enrichment, the ebook pipeline) read from the
// same store out of band.
package storage

import (
	"context"
	"time"
)

// Story is one finalized life story recording.
type Story struct {
	// ID is the recording identifier assigned at capture time.
	ID string

	// ResidentID identifies whose story this is.
	ResidentID string

	// SessionID is the conversation session the story was captured in.
	SessionID string

	// QuestionID and QuestionText reference the prompt that was posed.
	QuestionID   string
	QuestionText string

	// Theme is the question's weekly theme, kept denormalized so the ebook
	// pipeline can group stories without loading the question bank.
	Theme string

	// Transcript is the recognized text of the answer.
	Transcript string

	// Duration is the length of the spoken answer.
	Duration time.Duration

	// RecordedAt is when the capture finished.
	RecordedAt time.Time
}

// StoryStore persists finalized recordings.
// Implementations must be safe for concurrent use.
type StoryStore interface {
	// SaveStory persists one finalized recording.
	SaveStory(ctx context.Context, story Story) error

	// ListStories returns the resident's stories, newest first, capped at
	// limit (non-positive means no cap).
	ListStories(ctx context.Context, residentID string, limit int) ([]Story, error)

	// SearchStories performs a full-text search over the resident's
	// transcripts, newest first, capped at limit.
	SearchStories(ctx context.Context, residentID, query string, limit int) ([]Story, error)
}
