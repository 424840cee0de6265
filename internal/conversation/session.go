// Package conversation implements the session state machine that owns a
// single resident's conversation with Polly.
//
// A [Session] processes one turn at a time: utterances, silence events, and
// timer expiries are serialised through one event loop, so the distress
// monitor, intent classifier, pacing controller, question sequencer, and
// recording coordinator are never driven concurrently for the same session.
// Shared read-only collaborators (the content library, the classifier, the
// story store, the notification dispatcher) are safe to share across
// sessions.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pollyconnect/polly/internal/clock"
	"github.com/pollyconnect/polly/internal/config"
	"github.com/pollyconnect/polly/internal/content"
	"github.com/pollyconnect/polly/internal/distress"
	"github.com/pollyconnect/polly/internal/intent"
	"github.com/pollyconnect/polly/internal/limits"
	"github.com/pollyconnect/polly/internal/notify"
	"github.com/pollyconnect/polly/internal/observe"
	"github.com/pollyconnect/polly/internal/pacing"
	"github.com/pollyconnect/polly/internal/recording"
	"github.com/pollyconnect/polly/internal/respond"
	"github.com/pollyconnect/polly/internal/sequencer"
	"github.com/pollyconnect/polly/internal/speech"
	"github.com/pollyconnect/polly/internal/storage"
)

// State is the conversation lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateGreeting      State = "greeting"
	StateAwaitingInput State = "awaiting_input"
	StateProcessing    State = "processing"
	StateSpeaking      State = "speaking"
	StateRecording     State = "recording"
	StateEnding        State = "ending"
	StateEnded         State = "ended"
)

// EndReason explains why a session ended.
type EndReason string

const (
	EndStopIntent   EndReason = "stop_intent"
	EndTimeout      EndReason = "session_timeout"
	EndExhausted    EndReason = "limits_exhausted"
	EndUnresponsive EndReason = "unresponsive"
	EndExternal     EndReason = "external"
)

// storySaveTimeout bounds the asynchronous story store write.
const storySaveTimeout = 15 * time.Second

// Deps bundles the shared collaborators a [Session] needs. All fields except
// Metrics and Log are required.
type Deps struct {
	Cfg        *config.Config
	Lib        *content.Library
	Clock      clock.Clock
	Speaker    speech.Speaker
	Classifier *intent.Classifier
	Distress   *distress.Monitor
	Ledger     *limits.Ledger
	Store      storage.StoryStore
	Notify     *notify.Dispatcher
	Metrics    *observe.Metrics
	Log        *slog.Logger

	// Week is the active question week (1-based). Resolved by the caller
	// from the week override or the resident start date.
	Week int
}

type eventKind int

const (
	evUtterance eventKind = iota
	evSilence
	evWaitTimeout
	evRecSilence
	evSessionTimeout
	evEndSignal
)

type event struct {
	kind eventKind
	utt  speech.Utterance
	gen  uint64
}

// Session owns the conversation lifecycle for one resident. Create with
// [New], drive with [Session.Run], and feed input through
// [Session.HandleUtterance] and [Session.HandleSilence].
type Session struct {
	id         string
	residentID string
	deps       Deps
	log        *slog.Logger

	pace     *pacing.Controller
	selector *respond.Selector
	seq      *sequencer.Sequencer
	rec      *recording.Coordinator

	events chan event

	mu        sync.Mutex
	state     State
	startedAt time.Time
	endReason EndReason

	jokesTold         int
	distressRedirects int
	lastIntent        content.Intent
	pendingQuestion   *content.Question

	waitGen      uint64
	waitStage    int
	waitTimer    *time.Timer
	sessionTimer *time.Timer
}

// New creates a session for residentID. It fails with
// [limits.ErrCooldownActive] (wrapped) when the resident's cooldown window
// from the previous session has not yet elapsed.
func New(residentID string, deps Deps) (*Session, error) {
	if err := deps.Ledger.CanStart(residentID); err != nil {
		return nil, fmt.Errorf("conversation: cannot start session: %w", err)
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	id := uuid.NewString()
	s := &Session{
		id:         id,
		residentID: residentID,
		deps:       deps,
		log:        deps.Log.With("session_id", id, "resident_id", residentID),
		pace:       pacing.NewController(deps.Cfg.Speech),
		state:      StateIdle,
		startedAt:  deps.Clock.Now(),
		events:     make(chan event, 8),
	}

	var selOpts []respond.Option
	if deps.Cfg.MemoryCare.Enabled && deps.Cfg.MemoryCare.FamiliarNameEnabled {
		selOpts = append(selOpts, respond.WithFamiliarName(deps.Cfg.MemoryCare.FamiliarName))
	}
	s.selector = respond.NewSelector(deps.Lib, selOpts...)
	s.seq = sequencer.New(deps.Lib, deps.Week, deps.Cfg.Limits.MaxQuestionsPerSession)
	s.rec = recording.NewCoordinator(deps.Cfg.Recording, deps.Clock, func() {
		s.post(event{kind: evRecSilence})
	})
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ResidentID returns the resident this session belongs to.
func (s *Session) ResidentID() string { return s.residentID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns why the session ended. Empty until the session reaches
// [StateEnded].
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// HandleUtterance submits a recognised utterance. Utterances arriving while a
// previous turn is still being processed or spoken are dropped to enforce
// strict turn ordering.
func (s *Session) HandleUtterance(u speech.Utterance) {
	switch s.State() {
	case StateProcessing, StateSpeaking, StateGreeting, StateEnding, StateEnded:
		s.log.Debug("utterance dropped, turn in progress", "text", u.Text)
		return
	}
	s.post(event{kind: evUtterance, utt: u})
}

// HandleSilence submits a device-detected silence event. Only relevant while
// a story capture is in progress; the session's own wait timers govern the
// awaiting-input states.
func (s *Session) HandleSilence(ev speech.SilenceEvent) {
	if s.State() == StateRecording {
		s.post(event{kind: evRecSilence})
	}
}

// End requests an orderly session end (external signal). The session speaks
// a goodbye and finalizes any story capture in progress.
func (s *Session) End() {
	s.post(event{kind: evEndSignal})
}

// post submits an event without blocking. The buffer is sized so that only a
// misbehaving producer overflows it; overflow drops with a warning.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("session event dropped, queue full", "kind", ev.kind)
	}
}

// Run drives the session to completion: greeting, turn loop, goodbye. It
// returns nil on an orderly end and an error on a fatal abort (persistent
// speech output failure). Cancelling ctx tears the session down immediately
// without a goodbye.
func (s *Session) Run(ctx context.Context) error {
	s.deps.Metrics.ActiveSessions.Add(ctx, 1)
	defer s.deps.Metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	defer s.cleanup()

	s.log.Info("session starting", "week", s.seq.Week())
	s.setState(StateGreeting)
	if err := s.speak(ctx, s.selector.Pick(content.RespGreeting), false, true); err != nil {
		return s.fatal(err)
	}

	s.sessionTimer = time.AfterFunc(s.deps.Cfg.Limits.SessionTimeout(), func() {
		s.post(event{kind: evSessionTimeout})
	})
	s.beginWait()

	for {
		select {
		case <-ctx.Done():
			s.log.Warn("session context cancelled, tearing down")
			s.recordEnd(EndExternal)
			return ctx.Err()
		case ev := <-s.events:
			if err := s.handle(ctx, ev); err != nil {
				return s.fatal(err)
			}
		}
		if s.State() == StateEnded {
			s.log.Info("session ended",
				"reason", s.Reason(),
				"questions_asked", s.seq.Asked(),
				"jokes_told", s.jokesTold,
				"distress_redirects", s.distressRedirects)
			return nil
		}
	}
}

// handle dispatches one serialized event.
func (s *Session) handle(ctx context.Context, ev event) error {
	switch ev.kind {
	case evUtterance:
		return s.handleUtterance(ctx, ev.utt)
	case evSilence, evRecSilence:
		return s.handleRecordingSilence(ctx)
	case evWaitTimeout:
		return s.handleWaitTimeout(ctx, ev.gen)
	case evSessionTimeout:
		s.log.Info("session timeout reached")
		return s.end(ctx, EndTimeout)
	case evEndSignal:
		return s.end(ctx, EndExternal)
	}
	return nil
}

// fatal records the abort and wraps err for the caller.
func (s *Session) fatal(err error) error {
	s.recordEnd(EndExternal)
	return fmt.Errorf("conversation: session %s aborted: %w", s.id, err)
}

// speak sends text to the speech output with current pacing parameters. A
// single retry is attempted; a second failure is fatal to the session. When
// record is true the text becomes the replay target for the repeat intent.
func (s *Session) speak(ctx context.Context, text string, isQuestion, record bool) error {
	s.setState(StateSpeaking)
	p := s.pace.Params()
	req := speech.Request{
		Text:            text,
		Rate:            p.Rate,
		Volume:          p.Volume,
		SentencePauseMS: p.SentencePauseMS,
		QuestionPauseMS: p.QuestionPauseMS,
		IsQuestion:      isQuestion,
	}
	err := s.deps.Speaker.Speak(ctx, req)
	if err != nil {
		s.deps.Metrics.SpeakFailures.Add(ctx, 1)
		s.log.Warn("speech output failed, retrying once", "err", err)
		if err = s.deps.Speaker.Speak(ctx, req); err != nil {
			s.deps.Metrics.SpeakFailures.Add(ctx, 1)
			return fmt.Errorf("speech output unavailable: %w", err)
		}
	}
	if record {
		s.pace.RecordSpoken(text, isQuestion)
	}
	return nil
}

// beginWait enters AwaitingInput and arms the first response wait.
func (s *Session) beginWait() {
	s.mu.Lock()
	s.state = StateAwaitingInput
	s.waitStage = 0
	s.waitGen++
	gen := s.waitGen
	s.stopWaitTimerLocked()
	s.waitTimer = time.AfterFunc(s.deps.Cfg.Speech.WaitForResponse(), func() {
		s.post(event{kind: evWaitTimeout, gen: gen})
	})
	s.mu.Unlock()
}

// handleWaitTimeout escalates an unanswered wait: first a wait prompt, then a
// gentle check followed by an unhurried session end.
func (s *Session) handleWaitTimeout(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	// A wait timer only runs in AwaitingInput or, for the continuation
	// prompt, in Recording while the capture is paused. Anything else is a
	// stale expiry.
	continuing := s.rec.Phase() == recording.PhaseContinuing
	ok := s.state == StateAwaitingInput || (s.state == StateRecording && continuing)
	if gen != s.waitGen || !ok {
		s.mu.Unlock()
		return nil
	}
	stage := s.waitStage
	s.mu.Unlock()

	if continuing {
		// No answer to the continuation prompt: finalize what we have.
		res, err := s.rec.Decline()
		if err == nil && res != nil {
			s.saveStory(ctx, res)
		}
		return s.afterCapture(ctx)
	}

	switch stage {
	case 0:
		s.log.Debug("no response, re-prompting")
		if err := s.speak(ctx, s.selector.Pick(content.RespWaitPrompt), false, false); err != nil {
			return err
		}
		s.mu.Lock()
		s.state = StateAwaitingInput
		s.waitStage = 1
		s.waitGen++
		gen := s.waitGen
		s.stopWaitTimerLocked()
		s.waitTimer = time.AfterFunc(s.deps.Cfg.Speech.MaxWaitBeforePrompt(), func() {
			s.post(event{kind: evWaitTimeout, gen: gen})
		})
		s.mu.Unlock()
		return nil
	default:
		s.log.Info("resident unresponsive, winding down gently")
		if err := s.speak(ctx, s.selector.Pick(content.RespEncouragement), false, false); err != nil {
			return err
		}
		return s.end(ctx, EndUnresponsive)
	}
}

// end transitions to Ending: closes any capture, speaks the farewell, and
// starts the cooldown window. Farewell failures are logged, not fatal.
func (s *Session) end(ctx context.Context, reason EndReason) error {
	s.mu.Lock()
	if s.state == StateEnding || s.state == StateEnded {
		s.mu.Unlock()
		return nil
	}
	s.state = StateEnding
	s.stopWaitTimerLocked()
	s.mu.Unlock()

	if outcome, res := s.rec.EndNow(); outcome == recording.OutcomeFinalized && res != nil {
		s.saveStory(ctx, res)
	} else if outcome == recording.OutcomeDiscarded {
		s.deps.Metrics.StoriesDiscarded.Add(ctx, 1)
	}

	cat := content.RespGoodbye
	if s.deps.Cfg.Limits.GentleSessionEnd {
		switch reason {
		case EndTimeout, EndExhausted, EndUnresponsive:
			cat = content.RespSessionEnd
		}
	}
	if err := s.speak(ctx, s.selector.Pick(cat), false, false); err != nil {
		s.log.Warn("farewell could not be spoken", "err", err)
	}

	s.recordEnd(reason)
	return nil
}

// recordEnd marks the session ended and starts the resident's cooldown.
func (s *Session) recordEnd(reason EndReason) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateEnded
	s.endReason = reason
	s.mu.Unlock()
	s.deps.Ledger.RecordSessionEnd(s.residentID)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) stopWaitTimerLocked() {
	if s.waitTimer != nil {
		s.waitTimer.Stop()
		s.waitTimer = nil
	}
}

// cleanup stops timers and discards any half-open capture.
func (s *Session) cleanup() {
	s.mu.Lock()
	s.stopWaitTimerLocked()
	if s.sessionTimer != nil {
		s.sessionTimer.Stop()
		s.sessionTimer = nil
	}
	s.mu.Unlock()
	s.rec.EndNow()
}
