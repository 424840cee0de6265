package intent_test

import (
	"testing"

	"github.com/pollyconnect/polly/internal/content"
	"github.com/pollyconnect/polly/internal/intent"
)

func newLib(t *testing.T) *content.Library {
	t.Helper()
	lib, err := content.LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	return lib
}

func TestClassifyContainment(t *testing.T) {
	t.Parallel()
	c := intent.NewClassifier(newLib(t))

	cases := []struct {
		utterance string
		want      content.Intent
	}{
		{"stop", content.IntentStop},
		{"please stop now", content.IntentStop},
		{"I'm tired", content.IntentStop},
		{"That's enough for now, dear", content.IntentStop},
		{"could you say that again", content.IntentRepeat},
		{"WHAT?", content.IntentRepeat},
		{"you talk too fast for me", content.IntentSlower},
		{"slow down please", content.IntentSlower},
		{"skip this one please", content.IntentSkip},
		{"i don't know", content.IntentSkip},
		{"tell me a joke", content.IntentTellJoke},
		{"oh please make me laugh", content.IntentTellJoke},
		{"ask me a question", content.IntentAskQuestion},
		{"i want to share something", content.IntentAskQuestion},
		{"help me", content.IntentHelp},
		{"i'm confused", content.IntentHelp},
		{"we lived on a farm with three cows", content.IntentNone},
		{"", content.IntentNone},
		{"!!!", content.IntentNone},
	}

	for _, tc := range cases {
		res := c.Classify(tc.utterance)
		if res.Intent != tc.want {
			t.Errorf("Classify(%q) = %q (phrase %q), want %q", tc.utterance, res.Intent, res.Phrase, tc.want)
		}
		if tc.want != content.IntentNone && res.Confidence != 1 {
			t.Errorf("Classify(%q) confidence = %v, want 1", tc.utterance, res.Confidence)
		}
	}
}

// Control intents must win over content intents when both trigger sets
// match the same utterance.
func TestClassifyPriority(t *testing.T) {
	t.Parallel()
	c := intent.NewClassifier(newLib(t))

	cases := []struct {
		utterance string
		want      content.Intent
	}{
		{"stop, no more jokes, tell me a joke later", content.IntentStop},
		{"help me skip this one", content.IntentHelp},
		{"say that again but slower", content.IntentRepeat},
	}
	for _, tc := range cases {
		if res := c.Classify(tc.utterance); res.Intent != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.utterance, res.Intent, tc.want)
		}
	}
}

// Short utterances match when they appear inside a longer trigger phrase,
// tolerating partially recognized speech.
func TestClassifyShortUtteranceReverseContainment(t *testing.T) {
	t.Parallel()
	c := intent.NewClassifier(newLib(t))

	// "slow down" is itself a trigger; "you repeat that" is a fragment of
	// "can you repeat that".
	if res := c.Classify("you repeat that"); res.Intent != content.IntentRepeat {
		t.Errorf("Classify(%q) = %q, want repeat", "you repeat that", res.Intent)
	}
	// Reverse containment must not apply to long utterances: a fragment
	// buried in free speech stays unmatched unless word-aligned.
	if res := c.Classify("grandma would always say time heals everything"); res.Intent != content.IntentNone {
		t.Errorf("free speech classified as %q", res.Intent)
	}
}

func TestClassifyEveryTriggerPhraseRoundTrips(t *testing.T) {
	t.Parallel()
	lib := newLib(t)
	c := intent.NewClassifier(lib)

	for _, in := range content.Intents {
		for _, phrase := range lib.TriggerPhrases(in) {
			res := c.Classify(phrase)
			if res.Intent != in {
				t.Errorf("phrase %q classified as %q, want %q", phrase, res.Intent, in)
			}
		}
	}
}

func TestClassifyPhoneticAssist(t *testing.T) {
	t.Parallel()
	lib := newLib(t)
	fuzzy := intent.NewClassifier(lib, intent.WithPhoneticAssist(0.7))
	strict := intent.NewClassifier(lib)

	// "stopp" is a recognizer artifact of "stop": containment misses it,
	// the phonetic pass catches it.
	if res := strict.Classify("stopp"); res.Intent != content.IntentNone {
		t.Fatalf("strict Classify(stopp) = %q, want none", res.Intent)
	}
	res := fuzzy.Classify("stopp")
	if res.Intent != content.IntentStop {
		t.Fatalf("fuzzy Classify(stopp) = %q, want stop", res.Intent)
	}
	if res.Confidence < 0.7 || res.Confidence > 1 {
		t.Errorf("phonetic confidence = %v, want within [0.7, 1]", res.Confidence)
	}

	// Free speech must not drift into an intent through near-sounding
	// single words.
	for _, utterance := range []string{
		"we lived on a farm with three cows",
		"my grandson visits me on sundays",
	} {
		if res := fuzzy.Classify(utterance); res.Intent != content.IntentNone {
			t.Errorf("fuzzy Classify(%q) = %q (phrase %q), want none", utterance, res.Intent, res.Phrase)
		}
	}
}
