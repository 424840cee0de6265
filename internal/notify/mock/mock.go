// Package mock provides an in-memory [notify.Notifier] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/pollyconnect/polly/internal/notify"
)

// Compile-time interface check.
var _ notify.Notifier = (*Notifier)(nil)

// Notifier records every event it receives. Safe for concurrent use.
type Notifier struct {
	mu     sync.Mutex
	events []notify.Event

	// Err, when set, is returned from every Notify call.
	Err error
}

// Notify implements [notify.Notifier].
func (n *Notifier) Notify(ctx context.Context, ev notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

// Events returns a copy of all recorded events.
func (n *Notifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Event, len(n.events))
	copy(out, n.events)
	return out
}

// Count returns how many events of kind k were recorded.
func (n *Notifier) Count(k notify.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Kind == k {
			c++
		}
	}
	return c
}
