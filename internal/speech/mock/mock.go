// Package mock provides a scripted [speech.Speaker] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/pollyconnect/polly/internal/speech"
)

// Speaker records every request it is asked to speak. The zero value is
// ready to use and always succeeds; set Err (or FailAfter) to script
// failures. Safe for concurrent use.
type Speaker struct {
	mu     sync.Mutex
	spoken []speech.Request

	// Err, when non-nil, is returned by Speak.
	Err error

	// FailAfter, when positive, lets that many calls succeed before Err is
	// returned. Ignored when Err is nil.
	FailAfter int

	calls int
}

// Speak implements [speech.Speaker].
func (s *Speaker) Speak(ctx context.Context, req speech.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil && s.calls > s.FailAfter {
		return s.Err
	}
	s.spoken = append(s.spoken, req)
	return nil
}

// Spoken returns a copy of every successfully spoken request, in order.
func (s *Speaker) Spoken() []speech.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speech.Request, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// LastText returns the text of the most recent successfully spoken request,
// or "" if nothing has been spoken.
func (s *Speaker) LastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.spoken) == 0 {
		return ""
	}
	return s.spoken[len(s.spoken)-1].Text
}

// Texts returns just the text of every spoken request, in order.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	for i, r := range s.spoken {
		out[i] = r.Text
	}
	return out
}
