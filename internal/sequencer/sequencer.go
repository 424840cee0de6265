// Package sequencer walks the weekly life story question bank.
//
// Questions are posed in the fixed interrogative order (where, who, what,
// when, why, how) within the active week, wrapping to subsequent weeks only
// once the current week's six are used up. A per-session used set
// guarantees no question is posed twice in one session.
package sequencer

import (
	"errors"
	"sync"

	"github.com/pollyconnect/polly/internal/content"
)

// ErrExhausted is returned when the per-session question cap has been
// reached or every question in the bank has been used this session.
var ErrExhausted = errors.New("sequencer: no further questions this session")

// Sequencer owns one session's cursor into the question bank.
// Safe for concurrent use.
type Sequencer struct {
	mu      sync.Mutex
	lib     *content.Library
	week    int // active week, 1-based
	pos     int // index into the active week's fixed-order questions
	used    map[string]struct{}
	asked   int
	maxAsk  int
	wrapped int // number of week advances this session
}

// New creates a Sequencer starting at the given 1-based week.
// maxPerSession caps how many questions [Sequencer.Next] will hand out;
// zero or negative means no cap.
func New(lib *content.Library, week, maxPerSession int) *Sequencer {
	if week < 1 || week > lib.NumWeeks() {
		week = 1
	}
	return &Sequencer{
		lib:    lib,
		week:   week,
		used:   make(map[string]struct{}),
		maxAsk: maxPerSession,
	}
}

// Next returns the next unused question for the active week, advancing to
// the following week (with wraparound) when the week is exhausted. Returns
// [ErrExhausted] once the session cap is reached or the bank is spent.
func (s *Sequencer) Next() (content.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxAsk > 0 && s.asked >= s.maxAsk {
		return content.Question{}, ErrExhausted
	}

	for s.wrapped < s.lib.NumWeeks() {
		qs := s.lib.WeekQuestions(s.week)
		for s.pos < len(qs) {
			q := qs[s.pos]
			s.pos++
			if _, dup := s.used[q.ID]; dup {
				continue
			}
			s.used[q.ID] = struct{}{}
			s.asked++
			return q, nil
		}
		// Week spent; move to the next one.
		s.week = s.week%s.lib.NumWeeks() + 1
		s.pos = 0
		s.wrapped++
	}
	return content.Question{}, ErrExhausted
}

// Asked returns how many questions have been handed out this session.
func (s *Sequencer) Asked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asked
}

// Week returns the currently active 1-based week number.
func (s *Sequencer) Week() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.week
}
