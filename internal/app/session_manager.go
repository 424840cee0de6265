package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pollyconnect/polly/internal/conversation"
	"github.com/pollyconnect/polly/internal/gateway"
	"github.com/pollyconnect/polly/internal/speech"
)

// endAllGrace bounds how long EndAll waits for sessions to say goodbye.
const endAllGrace = 10 * time.Second

// Compile-time interface check.
var _ gateway.SessionStarter = (*SessionManager)(nil)

// SessionManager tracks the running conversation per resident. At most one
// session per resident may be active at a time; different residents run
// independently. All exported methods are safe for concurrent use.
type SessionManager struct {
	deps conversation.Deps
	week func() int
	log  *slog.Logger

	mu      sync.Mutex
	active  map[string]*running
	stopped bool
}

type running struct {
	sess *conversation.Session
	done chan error
	// finished closes once the session goroutine has fully returned.
	finished chan struct{}
}

// NewSessionManager creates the registry. week resolves the active question
// week at session start so long-running processes roll over naturally.
func NewSessionManager(deps conversation.Deps, week func() int, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		deps:   deps,
		week:   week,
		log:    log,
		active: make(map[string]*running),
	}
}

// StartSession implements [gateway.SessionStarter]. The session runs on its
// own goroutine; its terminal error is delivered on the returned channel.
func (m *SessionManager) StartSession(ctx context.Context, residentID string, spk speech.Speaker) (gateway.SessionHandle, <-chan error, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("app: server is shutting down")
	}
	if _, exists := m.active[residentID]; exists {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("app: resident %s already has an active session", residentID)
	}
	m.mu.Unlock()

	deps := m.deps
	deps.Speaker = spk
	deps.Week = m.week()
	sess, err := conversation.New(residentID, deps)
	if err != nil {
		return nil, nil, err
	}

	r := &running{
		sess:     sess,
		done:     make(chan error, 1),
		finished: make(chan struct{}),
	}
	m.mu.Lock()
	if _, exists := m.active[residentID]; exists {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("app: resident %s already has an active session", residentID)
	}
	m.active[residentID] = r
	m.mu.Unlock()

	go func() {
		err := sess.Run(ctx)
		m.mu.Lock()
		if cur, ok := m.active[residentID]; ok && cur == r {
			delete(m.active, residentID)
		}
		m.mu.Unlock()
		r.done <- err
		close(r.finished)
	}()
	return sess, r.done, nil
}

// ActiveCount returns the number of running sessions.
func (m *SessionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// EndAll asks every running session to wind down and waits up to a grace
// period for the goodbyes to finish. New sessions are refused afterwards.
func (m *SessionManager) EndAll() {
	m.mu.Lock()
	m.stopped = true
	sessions := make([]*running, 0, len(m.active))
	for _, r := range m.active {
		sessions = append(sessions, r)
	}
	m.mu.Unlock()

	for _, r := range sessions {
		r.sess.End()
	}
	deadline := time.After(endAllGrace)
	for _, r := range sessions {
		select {
		case <-r.finished:
		case <-deadline:
			m.log.Warn("session did not end within grace period",
				"session_id", r.sess.ID())
			return
		}
	}
}
