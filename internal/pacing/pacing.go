// Package pacing computes per-turn speech delivery parameters and remembers
// the last fully-spoken utterance so "repeat" can replay it verbatim.
package pacing

import (
	"sync"

	"github.com/pollyconnect/polly/internal/config"
)

// Tier is the current speech rate tier. The tier only ever moves downward
// within a session; it resets to [TierDefault] when a new session starts.
type Tier string

const (
	TierDefault  Tier = "default"
	TierSlow     Tier = "slow"
	TierVerySlow Tier = "very_slow"
)

// Params are the delivery parameters handed to the speech output
// collaborator alongside the utterance text.
type Params struct {
	// Rate is the speed multiplier for the active tier.
	Rate float64

	// Volume is the playback volume in (0, 1].
	Volume float64

	// SentencePauseMS and QuestionPauseMS are inserted between sentences
	// and after a posed question respectively.
	SentencePauseMS int
	QuestionPauseMS int
}

// Controller owns one session's pacing state. All methods are safe for
// concurrent use, though the session processes turns one at a time anyway.
type Controller struct {
	mu           sync.Mutex
	cfg          config.SpeechConfig
	tier         Tier
	last         string
	lastQuestion bool
}

// NewController creates a Controller at the default tier.
func NewController(cfg config.SpeechConfig) *Controller {
	return &Controller{cfg: cfg, tier: TierDefault}
}

// Tier returns the active rate tier.
func (c *Controller) Tier() Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

// Params returns the delivery parameters for the active tier.
func (c *Controller) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paramsLocked()
}

func (c *Controller) paramsLocked() Params {
	rate := c.cfg.DefaultRate
	switch c.tier {
	case TierSlow:
		rate = c.cfg.SlowRate
	case TierVerySlow:
		rate = c.cfg.VerySlowRate
	}
	return Params{
		Rate:            rate,
		Volume:          c.cfg.DefaultVolume,
		SentencePauseMS: c.cfg.PauseBetweenSentencesMS,
		QuestionPauseMS: c.cfg.PauseAfterQuestionMS,
	}
}

// Slower moves the tier one step down (default → slow → very_slow) and
// returns the new parameters. At the floor it is a no-op; the caller still
// acknowledges the request either way.
func (c *Controller) Slower() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.tier {
	case TierDefault:
		c.tier = TierSlow
	case TierSlow:
		c.tier = TierVerySlow
	}
	return c.paramsLocked()
}

// RecordSpoken remembers text as the most recent fully-spoken utterance,
// along with whether it was delivered as a question. Call it only after the
// speech output reports completion, so "repeat" never replays something that
// was cut off.
func (c *Controller) RecordSpoken(text string, isQuestion bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = text
	c.lastQuestion = isQuestion
}

// LastSpoken returns the most recent fully-spoken utterance and whether it
// was a question, or "" if nothing has been spoken yet this session. A
// replayed question keeps its original question pacing.
func (c *Controller) LastSpoken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.lastQuestion
}
