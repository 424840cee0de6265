package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pollyconnect/polly/internal/content"
	"github.com/pollyconnect/polly/internal/notify"
	"github.com/pollyconnect/polly/internal/recording"
	"github.com/pollyconnect/polly/internal/sequencer"
	"github.com/pollyconnect/polly/internal/speech"
	"github.com/pollyconnect/polly/internal/storage"
)

// substantiveWords is the minimum word count for an utterance to start a
// story capture. Shorter replies are encouraged rather than recorded.
const substantiveWords = 3

// continuationDeclines are normalized phrases that decline a continuation
// prompt.
var continuationDeclines = []string{
	"no", "no thank you", "no thanks", "thats all", "thats it",
	"im done", "im finished", "nothing else", "the end",
}

// handleUtterance processes one recognised utterance: distress first, then
// intent, then the mapped action.
func (s *Session) handleUtterance(ctx context.Context, u speech.Utterance) error {
	start := time.Now()
	s.setState(StateProcessing)
	s.mu.Lock()
	// Bump the generation as well as stopping the timer: a timeout that
	// fired in the same instant may already sit in the event queue, and it
	// must not outlive the turn that answered it.
	s.waitGen++
	s.stopWaitTimerLocked()
	s.mu.Unlock()
	defer func() {
		s.deps.Metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}()

	norm := content.Normalize(u.Text)
	if norm == "" {
		// Unrecognised transcript: re-prompt, never fail.
		s.log.Debug("empty utterance, re-prompting")
		if err := s.speak(ctx, s.selector.Pick(content.RespWaitPrompt), false, false); err != nil {
			return err
		}
		s.beginWait()
		return nil
	}

	res := s.deps.Classifier.Classify(u.Text)
	s.mu.Lock()
	s.lastIntent = res.Intent
	s.mu.Unlock()
	if res.Intent != content.IntentNone {
		s.deps.Metrics.RecordIntent(ctx, string(res.Intent))
		s.log.Debug("intent classified",
			"intent", res.Intent, "phrase", res.Phrase, "confidence", res.Confidence)
	}

	keyword, distressed := "", false
	if s.deps.Cfg.MemoryCare.Enabled {
		keyword, distressed = s.deps.Distress.Scan(u.Text)
	}

	// The stop intent always wins, but a distress hit still notifies family.
	if res.Intent == content.IntentStop {
		if distressed {
			s.notifyDistress(keyword)
		}
		return s.end(ctx, EndStopIntent)
	}
	if distressed {
		return s.redirectDistress(ctx, keyword)
	}

	switch s.rec.Phase() {
	case recording.PhaseCapturing:
		return s.handleCaptureFragment(ctx, u, res.Intent)
	case recording.PhaseContinuing:
		return s.handleContinuationReply(ctx, u, res.Intent, norm)
	}

	switch res.Intent {
	case content.IntentRepeat:
		return s.replayLast(ctx)
	case content.IntentSlower:
		s.pace.Slower()
		if err := s.speak(ctx, s.selector.Pick(content.RespSlowerAck), false, false); err != nil {
			return err
		}
		s.beginWait()
		return nil
	case content.IntentSkip:
		s.clearPending()
		if err := s.speak(ctx, s.selector.Pick(content.RespSkipAck), false, false); err != nil {
			return err
		}
		return s.askNextQuestion(ctx)
	case content.IntentHelp:
		if err := s.speak(ctx, s.selector.Pick(content.RespConfusedHelp), false, false); err != nil {
			return err
		}
		s.beginWait()
		return nil
	case content.IntentTellJoke:
		return s.tellJoke(ctx)
	case content.IntentAskQuestion:
		return s.askNextQuestion(ctx)
	default:
		return s.handleFreeSpeech(ctx, u, norm)
	}
}

// handleFreeSpeech deals with an utterance that matched no trigger: either
// the beginning of a story answer, or ordinary chatter to encourage.
func (s *Session) handleFreeSpeech(ctx context.Context, u speech.Utterance, norm string) error {
	s.mu.Lock()
	pending := s.pendingQuestion
	s.mu.Unlock()

	if pending != nil && s.deps.Cfg.Recording.Enabled && len(strings.Fields(norm)) >= substantiveWords {
		if err := s.rec.Begin(*pending, u.Text); err != nil {
			s.log.Warn("could not start story capture", "err", err)
		} else {
			s.log.Info("story capture started", "question_id", pending.ID)
			s.setState(StateRecording)
			return nil
		}
	}

	if err := s.speak(ctx, s.selector.Pick(content.RespEncouragement), false, false); err != nil {
		return err
	}
	s.beginWait()
	return nil
}

// handleCaptureFragment folds a new fragment into the running capture. A
// skip abandons the capture; anything else extends it.
func (s *Session) handleCaptureFragment(ctx context.Context, u speech.Utterance, it content.Intent) error {
	if it == content.IntentSkip {
		s.rec.EndNow()
		s.deps.Metrics.StoriesDiscarded.Add(ctx, 1)
		s.clearPending()
		if err := s.speak(ctx, s.selector.Pick(content.RespSkipAck), false, false); err != nil {
			return err
		}
		return s.askNextQuestion(ctx)
	}
	outcome, res := s.rec.Fragment(u.Text)
	if outcome == recording.OutcomeFinalized && res != nil {
		s.log.Info("story capture reached maximum length", "question_id", res.QuestionID)
		s.saveStory(ctx, res)
		return s.afterCapture(ctx)
	}
	s.setState(StateRecording)
	return nil
}

// handleContinuationReply interprets the resident's answer to a
// continuation prompt.
func (s *Session) handleContinuationReply(ctx context.Context, u speech.Utterance, it content.Intent, norm string) error {
	decline := it == content.IntentSkip
	padded := " " + norm + " "
	for _, d := range continuationDeclines {
		if norm == d || strings.Contains(padded, " "+d+" ") {
			decline = true
			break
		}
	}
	if decline {
		res, err := s.rec.Decline()
		if err == nil && res != nil {
			s.saveStory(ctx, res)
		}
		return s.afterCapture(ctx)
	}

	if err := s.rec.ContinueCapture(u.Text); err != nil {
		s.log.Warn("could not resume story capture", "err", err)
		return s.afterCapture(ctx)
	}
	s.setState(StateRecording)
	return nil
}

// handleRecordingSilence reacts to the capture silence timer (or a
// device-side silence event while recording).
func (s *Session) handleRecordingSilence(ctx context.Context) error {
	outcome, res := s.rec.SilenceElapsed()
	switch outcome {
	case recording.OutcomeDiscarded:
		s.deps.Metrics.StoriesDiscarded.Add(ctx, 1)
		s.log.Debug("story capture below minimum length, discarded")
		if err := s.speak(ctx, s.selector.Pick(content.RespEncouragement), false, false); err != nil {
			return err
		}
		s.beginWait()
		return nil
	case recording.OutcomeContinuationOffered:
		if err := s.speak(ctx, s.selector.Pick(content.RespContinuationPrompt), true, false); err != nil {
			return err
		}
		s.armContinuationWait()
		return nil
	case recording.OutcomeFinalized:
		if res != nil {
			s.saveStory(ctx, res)
		}
		return s.afterCapture(ctx)
	}
	return nil
}

// armContinuationWait waits for the continuation answer while staying in the
// recording state; a timeout finalizes the capture as-is.
func (s *Session) armContinuationWait() {
	s.mu.Lock()
	s.state = StateRecording
	s.waitGen++
	gen := s.waitGen
	s.stopWaitTimerLocked()
	s.waitTimer = time.AfterFunc(s.deps.Cfg.Speech.WaitForResponse(), func() {
		s.post(event{kind: evWaitTimeout, gen: gen})
	})
	s.mu.Unlock()
}

// afterCapture thanks the resident and resumes the turn loop.
func (s *Session) afterCapture(ctx context.Context) error {
	if err := s.speak(ctx, s.selector.Pick(content.RespEncouragement), false, false); err != nil {
		return err
	}
	s.beginWait()
	return nil
}

// replayLast serves the repeat intent verbatim from the pacing controller,
// with the same question pacing the original delivery had.
func (s *Session) replayLast(ctx context.Context) error {
	last, wasQuestion := s.pace.LastSpoken()
	if last == "" {
		if err := s.speak(ctx, s.selector.Pick(content.RespConfusedHelp), false, false); err != nil {
			return err
		}
		s.beginWait()
		return nil
	}
	if err := s.speak(ctx, s.selector.Pick(content.RespRepeatAck), false, false); err != nil {
		return err
	}
	if err := s.speak(ctx, last, wasQuestion, false); err != nil {
		return err
	}
	s.beginWait()
	return nil
}

// tellJoke serves the tell_joke intent within the per-session cap; past the
// cap it politely steers toward another activity.
func (s *Session) tellJoke(ctx context.Context) error {
	s.mu.Lock()
	capped := s.jokesTold >= s.deps.Cfg.Limits.MaxJokesPerSession
	if !capped {
		s.jokesTold++
	}
	s.mu.Unlock()

	if capped {
		s.log.Debug("joke cap reached, declining")
		if err := s.speak(ctx, s.selector.Pick(content.RespGentleRedirect), false, false); err != nil {
			return err
		}
		return s.endIfExhausted(ctx)
	}
	if err := s.speak(ctx, s.selector.Pick(content.RespJoke), false, true); err != nil {
		return err
	}
	s.beginWait()
	return nil
}

// askNextQuestion advances the sequencer and poses the next life-story
// question.
func (s *Session) askNextQuestion(ctx context.Context) error {
	q, err := s.seq.Next()
	if err != nil {
		if errors.Is(err, sequencer.ErrExhausted) {
			s.log.Debug("question cap reached, declining")
			if err := s.speak(ctx, s.selector.Pick(content.RespGentleRedirect), false, false); err != nil {
				return err
			}
			return s.endIfExhausted(ctx)
		}
		return err
	}
	s.mu.Lock()
	s.pendingQuestion = &q
	s.mu.Unlock()
	s.log.Info("posing question", "question_id", q.ID, "theme", q.Theme, "type", q.Type)
	if err := s.speak(ctx, q.Text, true, true); err != nil {
		return err
	}
	s.beginWait()
	return nil
}

// endIfExhausted winds the session down once both activity caps are spent;
// otherwise it keeps listening.
func (s *Session) endIfExhausted(ctx context.Context) error {
	s.mu.Lock()
	jokesDone := s.jokesTold >= s.deps.Cfg.Limits.MaxJokesPerSession
	s.mu.Unlock()
	if jokesDone && s.seq.Asked() >= s.deps.Cfg.Limits.MaxQuestionsPerSession {
		s.log.Info("activity caps exhausted, ending session")
		return s.end(ctx, EndExhausted)
	}
	s.beginWait()
	return nil
}

// redirectDistress swaps the pending action for a gentle redirect and
// notifies family. A capture in progress is closed first so the distressing
// topic is not recorded further.
func (s *Session) redirectDistress(ctx context.Context, keyword string) error {
	s.mu.Lock()
	s.distressRedirects++
	s.mu.Unlock()
	s.deps.Metrics.DistressRedirects.Add(ctx, 1)
	s.log.Info("distressing keyword detected, redirecting", "keyword", keyword)

	if outcome, res := s.rec.EndNow(); outcome == recording.OutcomeFinalized && res != nil {
		s.saveStory(ctx, res)
	} else if outcome == recording.OutcomeDiscarded {
		s.deps.Metrics.StoriesDiscarded.Add(ctx, 1)
	}
	s.clearPending()

	s.notifyDistress(keyword)
	if err := s.speak(ctx, s.selector.Pick(content.RespGentleRedirect), false, true); err != nil {
		return err
	}
	s.beginWait()
	return nil
}

func (s *Session) notifyDistress(keyword string) {
	s.deps.Notify.Enqueue(notify.Event{
		Kind:       notify.KindDistressKeyword,
		ResidentID: s.residentID,
		SessionID:  s.id,
		OccurredAt: s.deps.Clock.Now(),
		Detail:     map[string]string{"keyword": keyword},
	})
}

// saveStory hands a finalized capture to the story store asynchronously and
// notifies family. Storage failures are logged and never block the turn.
func (s *Session) saveStory(ctx context.Context, res *recording.Result) {
	story := storage.Story{
		ID:           res.ID,
		ResidentID:   s.residentID,
		SessionID:    s.id,
		QuestionID:   res.QuestionID,
		QuestionText: res.QuestionText,
		Theme:        res.Theme,
		Transcript:   res.Transcript,
		Duration:     res.Duration,
		RecordedAt:   res.RecordedAt,
	}
	s.deps.Metrics.StoriesRecorded.Add(ctx, 1)
	s.log.Info("story finalized",
		"story_id", story.ID, "question_id", story.QuestionID, "duration", story.Duration)

	go func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), storySaveTimeout)
		defer cancel()
		if err := s.deps.Store.SaveStory(saveCtx, story); err != nil {
			s.log.Error("story store write failed", "story_id", story.ID, "err", err)
		}
	}()

	s.deps.Notify.Enqueue(notify.Event{
		Kind:       notify.KindNewStory,
		ResidentID: s.residentID,
		SessionID:  s.id,
		OccurredAt: s.deps.Clock.Now(),
		Detail: map[string]string{
			"story_id":    story.ID,
			"question_id": story.QuestionID,
			"theme":       story.Theme,
			"duration":    story.Duration.String(),
		},
	})
	s.clearPending()
}

func (s *Session) clearPending() {
	s.mu.Lock()
	s.pendingQuestion = nil
	s.mu.Unlock()
}
