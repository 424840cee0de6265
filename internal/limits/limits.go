// Package limits enforces the rest window between sessions on a per-resident
// basis. Per-session joke/question caps live with the session itself; this
// ledger only answers "may a new session start now?".
package limits

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pollyconnect/polly/internal/clock"
	"github.com/pollyconnect/polly/internal/config"
)

// ErrCooldownActive means the previous session ended too recently for a new
// one to start.
var ErrCooldownActive = errors.New("limits: cooldown window still active")

// Ledger tracks the end time of each resident's most recent session.
// Safe for concurrent use across sessions.
type Ledger struct {
	mu      sync.Mutex
	cfg     config.LimitsConfig
	clk     clock.Clock
	lastEnd map[string]time.Time
}

// NewLedger creates a Ledger reading time from clk.
func NewLedger(cfg config.LimitsConfig, clk clock.Clock) *Ledger {
	return &Ledger{
		cfg:     cfg,
		clk:     clk,
		lastEnd: make(map[string]time.Time),
	}
}

// CanStart returns nil if residentID may start a session now, or an error
// wrapping [ErrCooldownActive] naming the remaining wait.
func (l *Ledger) CanStart(residentID string) error {
	if remaining := l.Remaining(residentID); remaining > 0 {
		return fmt.Errorf("%w: %s remaining for resident %s",
			ErrCooldownActive, remaining.Round(time.Second), residentID)
	}
	return nil
}

// Remaining returns how much of the cooldown window is left for residentID,
// or zero if a session may start now.
func (l *Ledger) Remaining(residentID string) time.Duration {
	l.mu.Lock()
	end, ok := l.lastEnd[residentID]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	remaining := l.cfg.Cooldown() - l.clk.Now().Sub(end)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSessionEnd starts the cooldown window for residentID.
func (l *Ledger) RecordSessionEnd(residentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastEnd[residentID] = l.clk.Now()
}
