// Package intent classifies recognized utterances against the configured
// trigger-phrase sets.
//
// Matching is case and punctuation insensitive (both sides pass through
// [content.Normalize]) and works on word-aligned containment: a phrase
// matches when it appears in the utterance as a contiguous word sequence,
// or — for short utterances of at most three words, to tolerate partial
// recognition — when the utterance appears inside the phrase.
//
// When containment finds nothing and phonetic assist is enabled, short
// utterances get a second pass scoring each phrase with Double Metaphone
// code overlap plus Jaro-Winkler similarity, so a recognizer artifact like
// "stopp" still classifies as "stop".
//
// Classification is a pure function over the immutable trigger sets; a
// Classifier is safe for concurrent use by any number of sessions.
package intent

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/pollyconnect/polly/internal/content"
)

// Priority orders intent categories for tie-breaking when an utterance
// matches more than one trigger set. Safety and control intents outrank
// content intents.
var Priority = []content.Intent{
	content.IntentStop,
	content.IntentHelp,
	content.IntentRepeat,
	content.IntentSlower,
	content.IntentSkip,
	content.IntentTellJoke,
	content.IntentAskQuestion,
}

// shortUtteranceWords is the maximum word count for which reverse
// containment (utterance inside phrase) is attempted.
const shortUtteranceWords = 3

// Result describes one classification outcome.
type Result struct {
	// Intent is the matched category, or [content.IntentNone].
	Intent content.Intent

	// Phrase is the trigger phrase that matched, in its configured form.
	// Empty when Intent is IntentNone.
	Phrase string

	// Confidence is 1.0 for containment matches and the similarity score
	// for phonetic matches. Zero when Intent is IntentNone.
	Confidence float64
}

// Option configures a [Classifier] during construction.
type Option func(*Classifier)

// WithPhoneticAssist enables the phonetic fallback pass with the given
// minimum similarity score in (0, 1].
func WithPhoneticAssist(threshold float64) Option {
	return func(c *Classifier) {
		c.phonetic = true
		c.threshold = threshold
	}
}

// Classifier matches normalized utterances against trigger-phrase sets.
// Construct with [NewClassifier]; read-only after construction.
type Classifier struct {
	phrases   map[content.Intent][]phrase
	phonetic  bool
	threshold float64
}

type phrase struct {
	raw    string
	norm   string
	padded string // " " + norm + " " for word-aligned containment
	tokens []phraseToken
}

type phraseToken struct {
	text  string
	codes map[string]struct{}
}

// NewClassifier builds a Classifier over the trigger sets in lib.
func NewClassifier(lib *content.Library, opts ...Option) *Classifier {
	c := &Classifier{
		phrases: make(map[content.Intent][]phrase, len(content.Intents)),
	}
	for _, o := range opts {
		o(c)
	}

	for _, in := range content.Intents {
		for _, p := range lib.TriggerPhrases(in) {
			norm := content.Normalize(p)
			if norm == "" {
				continue
			}
			ph := phrase{
				raw:    p,
				norm:   norm,
				padded: " " + norm + " ",
			}
			if c.phonetic {
				for _, t := range strings.Fields(norm) {
					ph.tokens = append(ph.tokens, phraseToken{
						text:  t,
						codes: metaphoneCodes(t),
					})
				}
			}
			c.phrases[in] = append(c.phrases[in], ph)
		}
	}
	return c
}

// Classify returns the best-matching intent for the raw utterance text.
// Empty or unrecognizable utterances yield [content.IntentNone]; callers
// treat that as "re-prompt", never as an error.
func (c *Classifier) Classify(utterance string) Result {
	norm := content.Normalize(utterance)
	if norm == "" {
		return Result{Intent: content.IntentNone}
	}

	padded := " " + norm + " "
	short := len(strings.Fields(norm)) <= shortUtteranceWords

	// Exact pass first, so "what" hits the repeat trigger "what" rather
	// than reverse-matching into "what do i do".
	for _, in := range Priority {
		for _, ph := range c.phrases[in] {
			if ph.norm == norm {
				return Result{Intent: in, Phrase: ph.raw, Confidence: 1}
			}
		}
	}

	// Containment pass, in priority order: first category with any hit wins.
	for _, in := range Priority {
		for _, ph := range c.phrases[in] {
			if strings.Contains(padded, ph.padded) || (short && strings.Contains(ph.padded, padded)) {
				return Result{Intent: in, Phrase: ph.raw, Confidence: 1}
			}
		}
	}

	// Phonetic fallback, short utterances only: long free speech (a story
	// answer) must never drift into an intent on near-sounding words.
	if c.phonetic && short {
		return c.classifyPhonetic(norm)
	}
	return Result{Intent: content.IntentNone}
}

// classifyPhonetic scores every phrase against the normalized utterance and
// returns the highest-scoring phrase. Score ties are resolved by [Priority]
// (the earlier category keeps the match).
//
// A phrase only matches when every one of its tokens finds an utterance
// token that shares a Double Metaphone code and scores at least the
// Jaro-Winkler threshold. Requiring full phrase coverage keeps free speech
// ("we lived on a farm") from drifting into an intent on the strength of a
// single near-sounding word.
func (c *Classifier) classifyPhonetic(norm string) Result {
	tokens := strings.Fields(norm)
	utt := make([]phraseToken, len(tokens))
	for i, t := range tokens {
		utt[i] = phraseToken{text: t, codes: metaphoneCodes(t)}
	}

	best := Result{Intent: content.IntentNone}
	for _, in := range Priority {
		for _, ph := range c.phrases[in] {
			score, ok := c.phraseScore(utt, ph)
			if ok && score > best.Confidence {
				best = Result{Intent: in, Phrase: ph.raw, Confidence: score}
			}
		}
	}
	return best
}

// phraseScore returns the mean per-token similarity, or ok=false when any
// phrase token goes unmatched.
func (c *Classifier) phraseScore(utt []phraseToken, ph phrase) (float64, bool) {
	var sum float64
	for _, pt := range ph.tokens {
		best := 0.0
		for _, ut := range utt {
			if !codesOverlap(pt.codes, ut.codes) {
				continue
			}
			if s := matchr.JaroWinkler(ut.text, pt.text, false); s > best {
				best = s
			}
		}
		if best < c.threshold {
			return 0, false
		}
		sum += best
	}
	return sum / float64(len(ph.tokens)), true
}

// metaphoneCodes returns the Double Metaphone codes for one token. Empty
// codes are excluded.
func metaphoneCodes(token string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(token)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
