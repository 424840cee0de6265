package recording_test

import (
	"errors"
	"testing"
	"time"

	"github.com/pollyconnect/polly/internal/clock"
	"github.com/pollyconnect/polly/internal/config"
	"github.com/pollyconnect/polly/internal/content"
	"github.com/pollyconnect/polly/internal/recording"
)

var testQuestion = content.Question{
	ID:    "week-1-where",
	Text:  "Where did you grow up?",
	Theme: "childhood",
	Week:  1,
	Type:  content.TypeWhere,
}

func newCoordinator(promptToContinue bool) (*recording.Coordinator, *clock.Fake) {
	clk := &clock.Fake{Current: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	cfg := config.RecordingConfig{
		Enabled:                       true,
		MinResponseLengthSeconds:      2,
		MaxResponseLengthSeconds:      300,
		SilenceThresholdToStopSeconds: 5,
		PromptToContinue:              promptToContinue,
	}
	// nil onSilence: tests drive silence through SilenceElapsed directly.
	return recording.NewCoordinator(cfg, clk, nil), clk
}

func TestBeginRejectsSecondCapture(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(false)
	if err := c.Begin(testQuestion, "i grew up on a farm"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := c.Phase(); got != recording.PhaseCapturing {
		t.Fatalf("phase after Begin = %q", got)
	}
	if err := c.Begin(testQuestion, "again"); err == nil {
		t.Fatal("second Begin succeeded, want error")
	}
}

func TestSilenceDiscardsBelowMinimum(t *testing.T) {
	t.Parallel()
	c, clk := newCoordinator(false)
	if err := c.Begin(testQuestion, "a farm"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	clk.Advance(1 * time.Second)

	outcome, res := c.SilenceElapsed()
	if outcome != recording.OutcomeDiscarded {
		t.Fatalf("outcome = %q, want discarded", outcome)
	}
	if res != nil {
		t.Fatalf("discard returned result %+v", res)
	}
	if got := c.Phase(); got != recording.PhaseIdle {
		t.Errorf("phase after discard = %q, want idle", got)
	}
}

func TestSilenceFinalizesWithoutContinuationPrompt(t *testing.T) {
	t.Parallel()
	c, clk := newCoordinator(false)
	started := clk.Current
	if err := c.Begin(testQuestion, "i grew up on a farm in kansas"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	clk.Advance(8 * time.Second)
	if outcome, _ := c.Fragment("we had three horses"); outcome != recording.OutcomeNone {
		t.Fatalf("mid-capture fragment outcome = %q", outcome)
	}
	clk.Advance(4 * time.Second)

	outcome, res := c.SilenceElapsed()
	if outcome != recording.OutcomeFinalized {
		t.Fatalf("outcome = %q, want finalized", outcome)
	}
	if res == nil {
		t.Fatal("finalized with nil result")
	}
	if res.Transcript != "i grew up on a farm in kansas we had three horses" {
		t.Errorf("transcript = %q", res.Transcript)
	}
	if res.Duration != 12*time.Second {
		t.Errorf("duration = %v, want 12s", res.Duration)
	}
	if res.QuestionID != testQuestion.ID || res.Theme != "childhood" {
		t.Errorf("question fields = %q/%q", res.QuestionID, res.Theme)
	}
	if !res.RecordedAt.Equal(started) {
		t.Errorf("RecordedAt = %v, want capture start %v", res.RecordedAt, started)
	}
	if res.ID == "" {
		t.Error("result has empty ID")
	}
}

func TestSilenceOffersContinuationThenResumes(t *testing.T) {
	t.Parallel()
	c, clk := newCoordinator(true)
	if err := c.Begin(testQuestion, "my mother taught school"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	clk.Advance(10 * time.Second)

	outcome, res := c.SilenceElapsed()
	if outcome != recording.OutcomeContinuationOffered || res != nil {
		t.Fatalf("outcome = %q res = %v, want continuation with nil result", outcome, res)
	}
	if got := c.Phase(); got != recording.PhaseContinuing {
		t.Fatalf("phase = %q, want continuing", got)
	}
	if got := c.Prompts(); got != 1 {
		t.Errorf("Prompts = %d, want 1", got)
	}

	// Silence between the pause and the resumed speech does not count.
	clk.Advance(30 * time.Second)
	if err := c.ContinueCapture("and my father drove the bus"); err != nil {
		t.Fatalf("ContinueCapture: %v", err)
	}
	clk.Advance(5 * time.Second)

	outcome, res = c.SilenceElapsed()
	if outcome != recording.OutcomeContinuationOffered {
		t.Fatalf("second pause outcome = %q", outcome)
	}
	res, err := c.Decline()
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if res.Duration != 15*time.Second {
		t.Errorf("duration = %v, want 15s of speech (pause excluded)", res.Duration)
	}
	if res.Transcript != "my mother taught school and my father drove the bus" {
		t.Errorf("transcript = %q", res.Transcript)
	}
}

func TestDeclineRequiresPausedCapture(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(true)
	if _, err := c.Decline(); !errors.Is(err, recording.ErrNotCapturing) {
		t.Fatalf("Decline while idle = %v, want ErrNotCapturing", err)
	}
	if err := c.ContinueCapture("more"); !errors.Is(err, recording.ErrNotCapturing) {
		t.Fatalf("ContinueCapture while idle = %v, want ErrNotCapturing", err)
	}
}

func TestFragmentForceStopsAtMaximum(t *testing.T) {
	t.Parallel()
	c, clk := newCoordinator(true)
	if err := c.Begin(testQuestion, "it is a long story"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	clk.Advance(301 * time.Second)

	outcome, res := c.Fragment("and then some")
	if outcome != recording.OutcomeFinalized {
		t.Fatalf("outcome = %q, want finalized at max length", outcome)
	}
	if res.Duration != 300*time.Second {
		t.Errorf("duration = %v, want clamped to 300s", res.Duration)
	}
	if got := c.Phase(); got != recording.PhaseIdle {
		t.Errorf("phase = %q, want idle", got)
	}
}

func TestFragmentIgnoredWhenIdle(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(false)
	outcome, res := c.Fragment("stray speech")
	if outcome != recording.OutcomeNone || res != nil {
		t.Fatalf("Fragment while idle = %q/%v", outcome, res)
	}
	outcome, res = c.SilenceElapsed()
	if outcome != recording.OutcomeNone || res != nil {
		t.Fatalf("SilenceElapsed while idle = %q/%v", outcome, res)
	}
}

func TestEndNow(t *testing.T) {
	t.Parallel()
	t.Run("finalizes a long enough capture", func(t *testing.T) {
		c, clk := newCoordinator(false)
		if err := c.Begin(testQuestion, "we moved to town in nineteen fifty"); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		clk.Advance(6 * time.Second)
		outcome, res := c.EndNow()
		if outcome != recording.OutcomeFinalized || res == nil {
			t.Fatalf("EndNow = %q/%v, want finalized result", outcome, res)
		}
		if res.Duration != 6*time.Second {
			t.Errorf("duration = %v, want 6s", res.Duration)
		}
	})

	t.Run("discards a short capture", func(t *testing.T) {
		c, clk := newCoordinator(false)
		if err := c.Begin(testQuestion, "well"); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		clk.Advance(500 * time.Millisecond)
		outcome, res := c.EndNow()
		if outcome != recording.OutcomeDiscarded || res != nil {
			t.Fatalf("EndNow = %q/%v, want discard", outcome, res)
		}
	})

	t.Run("finalizes a paused capture", func(t *testing.T) {
		c, clk := newCoordinator(true)
		if err := c.Begin(testQuestion, "the war years were hard on everyone"); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		clk.Advance(20 * time.Second)
		if outcome, _ := c.SilenceElapsed(); outcome != recording.OutcomeContinuationOffered {
			t.Fatalf("expected continuation pause, got %q", outcome)
		}
		outcome, res := c.EndNow()
		if outcome != recording.OutcomeFinalized || res == nil {
			t.Fatalf("EndNow on paused capture = %q/%v", outcome, res)
		}
		if res.Duration != 20*time.Second {
			t.Errorf("duration = %v, want 20s", res.Duration)
		}
	})

	t.Run("no-op when idle", func(t *testing.T) {
		c, _ := newCoordinator(false)
		if outcome, res := c.EndNow(); outcome != recording.OutcomeNone || res != nil {
			t.Fatalf("EndNow while idle = %q/%v", outcome, res)
		}
	})
}

func TestCaptureCanRestartAfterDiscard(t *testing.T) {
	t.Parallel()
	c, clk := newCoordinator(false)
	if err := c.Begin(testQuestion, "hm"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	clk.Advance(1 * time.Second)
	if outcome, _ := c.SilenceElapsed(); outcome != recording.OutcomeDiscarded {
		t.Fatal("expected discard")
	}

	if err := c.Begin(testQuestion, "let me try again properly"); err != nil {
		t.Fatalf("Begin after discard: %v", err)
	}
	clk.Advance(5 * time.Second)
	outcome, res := c.SilenceElapsed()
	if outcome != recording.OutcomeFinalized {
		t.Fatalf("outcome = %q", outcome)
	}
	if res.Transcript != "let me try again properly" {
		t.Errorf("transcript carried stale fragments: %q", res.Transcript)
	}
}
