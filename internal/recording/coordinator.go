// Package recording governs the capture of spoken life-story answers.
//
// A [Coordinator] tracks one capture at a time: it starts when a substantive
// reply to a posed question begins, accumulates transcript fragments, and
// stops on silence, on an explicit stop, or when the maximum length is
// reached. Captures shorter than the configured minimum are discarded.
package recording

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pollyconnect/polly/internal/clock"
	"github.com/pollyconnect/polly/internal/config"
	"github.com/pollyconnect/polly/internal/content"
)

// Phase is the capture lifecycle state.
type Phase string

const (
	// PhaseIdle means no capture is in progress.
	PhaseIdle Phase = "idle"
	// PhaseCapturing means fragments are being accumulated.
	PhaseCapturing Phase = "capturing"
	// PhaseContinuing means a silence stop occurred and a continuation
	// prompt has been offered; the capture resumes or finalizes next.
	PhaseContinuing Phase = "continuing"
)

// Outcome reports what a capture event led to.
type Outcome string

const (
	// OutcomeNone: the capture continues unchanged.
	OutcomeNone Outcome = "none"
	// OutcomeDiscarded: the capture ended below the minimum length and was
	// dropped. The conversation continues without penalty.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeFinalized: the capture ended and a [Result] is available.
	OutcomeFinalized Outcome = "finalized"
	// OutcomeContinuationOffered: the capture paused on silence and the
	// resident should be offered a continuation prompt.
	OutcomeContinuationOffered Outcome = "continuation_offered"
)

// Result is a finalized capture, ready for the story store.
type Result struct {
	ID           string
	QuestionID   string
	QuestionText string
	Theme        string
	Transcript   string
	Duration     time.Duration
	RecordedAt   time.Time
}

// ErrNotCapturing is returned when an operation requires an active capture.
var ErrNotCapturing = errors.New("recording: no capture in progress")

// Coordinator owns the capture state machine for a single session.
// Safe for concurrent use; the silence timer fires on its own goroutine.
type Coordinator struct {
	cfg config.RecordingConfig
	clk clock.Clock

	// onSilence is invoked, without the lock held, when the silence timer
	// elapses during a capture. The owner routes it back as an event.
	onSilence func()

	mu       sync.Mutex
	phase    Phase
	question content.Question
	id       string
	started  time.Time
	segStart time.Time
	accum    time.Duration
	frags    []string
	prompts  int
	silence  *time.Timer
}

// NewCoordinator creates a coordinator. onSilence is called when the silence
// threshold elapses with no new speech; it may be nil if the owner drives
// silence detection itself via [Coordinator.SilenceElapsed].
func NewCoordinator(cfg config.RecordingConfig, clk clock.Clock, onSilence func()) *Coordinator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Coordinator{
		cfg:       cfg,
		clk:       clk,
		onSilence: onSilence,
		phase:     PhaseIdle,
	}
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Prompts returns how many continuation prompts were offered for the current
// capture.
func (c *Coordinator) Prompts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts
}

// Begin starts a capture for q with the first spoken fragment. It fails if a
// capture is already in progress.
func (c *Coordinator) Begin(q content.Question, fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		return fmt.Errorf("recording: capture already in progress for question %q", c.question.ID)
	}
	now := c.clk.Now()
	c.phase = PhaseCapturing
	c.question = q
	c.id = uuid.NewString()
	c.started = now
	c.segStart = now
	c.accum = 0
	c.frags = c.frags[:0]
	c.prompts = 0
	if fragment != "" {
		c.frags = append(c.frags, fragment)
	}
	c.armSilenceLocked()
	return nil
}

// Fragment appends a new speech fragment and resets the silence timer. If the
// capture has reached the maximum length it is force-stopped and finalized;
// the returned outcome is then [OutcomeFinalized] with a non-nil result.
func (c *Coordinator) Fragment(text string) (Outcome, *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseCapturing {
		return OutcomeNone, nil
	}
	if text != "" {
		c.frags = append(c.frags, text)
	}
	if c.elapsedLocked() >= c.cfg.MaxResponseLength() {
		res := c.finalizeLocked()
		return OutcomeFinalized, res
	}
	c.armSilenceLocked()
	return OutcomeNone, nil
}

// SilenceElapsed stops the current capture segment. Depending on length and
// configuration the capture is discarded, finalized, or paused pending a
// continuation prompt.
func (c *Coordinator) SilenceElapsed() (Outcome, *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseCapturing {
		return OutcomeNone, nil
	}
	c.stopTimerLocked()
	c.accum += c.clk.Now().Sub(c.segStart)

	elapsed := c.accum
	switch {
	case elapsed < c.cfg.MinResponseLength():
		c.resetLocked()
		return OutcomeDiscarded, nil
	case c.cfg.PromptToContinue && elapsed < c.cfg.MaxResponseLength():
		c.phase = PhaseContinuing
		c.prompts++
		return OutcomeContinuationOffered, nil
	default:
		res := c.finalizePausedLocked()
		return OutcomeFinalized, res
	}
}

// ContinueCapture resumes capturing after an accepted continuation prompt.
func (c *Coordinator) ContinueCapture(fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseContinuing {
		return ErrNotCapturing
	}
	c.phase = PhaseCapturing
	c.segStart = c.clk.Now()
	if fragment != "" {
		c.frags = append(c.frags, fragment)
	}
	c.armSilenceLocked()
	return nil
}

// Decline finalizes the paused capture after a declined (or silent)
// continuation prompt.
func (c *Coordinator) Decline() (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseContinuing {
		return nil, ErrNotCapturing
	}
	return c.finalizePausedLocked(), nil
}

// EndNow cancels timers and closes any capture in progress, for session end.
// A capture above the minimum length finalizes; below it, it is discarded.
func (c *Coordinator) EndNow() (Outcome, *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase {
	case PhaseCapturing:
		c.stopTimerLocked()
		c.accum += c.clk.Now().Sub(c.segStart)
		if c.accum < c.cfg.MinResponseLength() {
			c.resetLocked()
			return OutcomeDiscarded, nil
		}
		return OutcomeFinalized, c.finalizePausedLocked()
	case PhaseContinuing:
		if c.accum < c.cfg.MinResponseLength() {
			c.resetLocked()
			return OutcomeDiscarded, nil
		}
		return OutcomeFinalized, c.finalizePausedLocked()
	default:
		return OutcomeNone, nil
	}
}

// elapsedLocked is accumulated duration including the running segment.
func (c *Coordinator) elapsedLocked() time.Duration {
	return c.accum + c.clk.Now().Sub(c.segStart)
}

// finalizeLocked closes out a running capture.
func (c *Coordinator) finalizeLocked() *Result {
	c.stopTimerLocked()
	c.accum += c.clk.Now().Sub(c.segStart)
	return c.finalizePausedLocked()
}

// finalizePausedLocked builds the result from already-accumulated state.
func (c *Coordinator) finalizePausedLocked() *Result {
	dur := c.accum
	if max := c.cfg.MaxResponseLength(); dur > max {
		dur = max
	}
	res := &Result{
		ID:           c.id,
		QuestionID:   c.question.ID,
		QuestionText: c.question.Text,
		Theme:        c.question.Theme,
		Transcript:   strings.Join(c.frags, " "),
		Duration:     dur,
		RecordedAt:   c.started,
	}
	c.resetLocked()
	return res
}

func (c *Coordinator) resetLocked() {
	c.stopTimerLocked()
	c.phase = PhaseIdle
	c.question = content.Question{}
	c.id = ""
	c.accum = 0
	c.frags = nil
	c.prompts = 0
}

// armSilenceLocked (re)starts the silence timer. The callback fires without
// the lock so the owner can call back into the coordinator.
func (c *Coordinator) armSilenceLocked() {
	c.stopTimerLocked()
	if c.onSilence == nil {
		return
	}
	c.silence = time.AfterFunc(c.cfg.SilenceThreshold(), c.onSilence)
}

func (c *Coordinator) stopTimerLocked() {
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
}
