// Package notify emits structured family notification events.
//
// Events are dispatched fire-and-forget: the conversation core enqueues and
// moves on, and a failing or slow delivery collaborator can never stall a
// turn. Delivery order is best-effort; events are dropped (with a log line
// and a metric-worthy count) when the queue overflows.
package notify

import (
	"context"
	"time"
)

// Kind classifies a notification event.
type Kind string

const (
	// KindNewStory fires when a finalized story recording has been stored.
	KindNewStory Kind = "new_story"

	// KindDistressKeyword fires when the distress monitor flagged an
	// utterance in memory-care mode.
	KindDistressKeyword Kind = "distress_keyword"

	// KindDailySummary and KindWeeklyDigest fire on schedule triggers.
	KindDailySummary Kind = "daily_summary"
	KindWeeklyDigest Kind = "weekly_digest"
)

// Event is one structured family notification.
type Event struct {
	Kind       Kind              `json:"kind"`
	ResidentID string            `json:"resident_id"`
	SessionID  string            `json:"session_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// Notifier delivers one event to the family. Implementations must be safe
// for concurrent use; they own their own retry policy.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
