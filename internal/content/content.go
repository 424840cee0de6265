// Package content holds Polly's static conversational content: trigger
// phrases per intent category, spoken response banks, and the 52-week life
// story question bank.
//
// Content is loaded once at startup (defaults are embedded in the binary),
// validated fatally, and immutable thereafter. A [Library] is safe for
// concurrent use by any number of sessions.
package content

import (
	"strings"
	"unicode"
)

// Intent is a classified user goal detected from free speech.
type Intent string

const (
	IntentRepeat      Intent = "repeat"
	IntentSlower      Intent = "slower"
	IntentSkip        Intent = "skip"
	IntentStop        Intent = "stop"
	IntentHelp        Intent = "help"
	IntentTellJoke    Intent = "tell_joke"
	IntentAskQuestion Intent = "ask_question"

	// IntentNone means no trigger set matched the utterance.
	IntentNone Intent = "none"
)

// Intents lists every trigger-bearing intent category. IntentNone is not a
// category: it is the classifier's "unrecognized" result.
var Intents = []Intent{
	IntentRepeat, IntentSlower, IntentSkip, IntentStop,
	IntentHelp, IntentTellJoke, IntentAskQuestion,
}

// IsValid reports whether i is a recognised trigger-bearing intent.
func (i Intent) IsValid() bool {
	switch i {
	case IntentRepeat, IntentSlower, IntentSkip, IntentStop,
		IntentHelp, IntentTellJoke, IntentAskQuestion:
		return true
	}
	return false
}

// ResponseCategory names a bank of spoken response variants.
type ResponseCategory string

const (
	RespGreeting           ResponseCategory = "greeting"
	RespGoodbye            ResponseCategory = "goodbye"
	RespWaitPrompt         ResponseCategory = "wait_prompt"
	RespRepeatAck          ResponseCategory = "repeat_acknowledgment"
	RespSlowerAck          ResponseCategory = "slower_acknowledgment"
	RespSkipAck            ResponseCategory = "skip_acknowledgment"
	RespEncouragement      ResponseCategory = "encouragement"
	RespConfusedHelp       ResponseCategory = "confused_help"
	RespJoke               ResponseCategory = "joke"
	RespContinuationPrompt ResponseCategory = "continuation_prompt"
	RespGentleRedirect     ResponseCategory = "gentle_redirect"
	RespSessionEnd         ResponseCategory = "session_end"
)

// ResponseCategories lists every category a [Library] must provide.
var ResponseCategories = []ResponseCategory{
	RespGreeting, RespGoodbye, RespWaitPrompt, RespRepeatAck,
	RespSlowerAck, RespSkipAck, RespEncouragement, RespConfusedHelp,
	RespJoke, RespContinuationPrompt, RespGentleRedirect, RespSessionEnd,
}

// QuestionType is the interrogative tag on a life story question. Each week
// carries exactly one question of each type.
type QuestionType string

const (
	TypeWhere QuestionType = "where"
	TypeWho   QuestionType = "who"
	TypeWhat  QuestionType = "what"
	TypeWhen  QuestionType = "when"
	TypeWhy   QuestionType = "why"
	TypeHow   QuestionType = "how"
)

// QuestionTypeOrder is the fixed order in which a week's questions are posed.
var QuestionTypeOrder = []QuestionType{
	TypeWhere, TypeWho, TypeWhat, TypeWhen, TypeWhy, TypeHow,
}

// IsValid reports whether t is one of the six interrogative tags.
func (t QuestionType) IsValid() bool {
	switch t {
	case TypeWhere, TypeWho, TypeWhat, TypeWhen, TypeWhy, TypeHow:
		return true
	}
	return false
}

// Question is a single life story prompt.
type Question struct {
	// ID uniquely identifies the question across the whole bank.
	ID string

	// Week is the 1-based week number the question belongs to.
	Week int

	// Theme is the week's thematic grouping (e.g., "early_childhood").
	Theme string

	// Type is the interrogative tag.
	Type QuestionType

	// Text is the spoken question.
	Text string
}

// Week groups the six questions presented together under one theme.
type Week struct {
	Number    int
	Theme     string
	Questions []Question
}

// Library is the immutable content store: trigger sets, response banks, and
// the question bank. Construct one with [Load] or [LoadDefaults]; all
// accessors return copies so callers cannot mutate shared state.
type Library struct {
	triggers  map[Intent][]string
	responses map[ResponseCategory][]string
	weeks     []Week
}

// TriggerPhrases returns the configured trigger phrases for the given intent
// category, in configuration order. The result is a copy.
func (l *Library) TriggerPhrases(i Intent) []string {
	phrases := l.triggers[i]
	out := make([]string, len(phrases))
	copy(out, phrases)
	return out
}

// Responses returns the response variants for the given category, in
// configuration order. The result is a copy.
func (l *Library) Responses(c ResponseCategory) []string {
	variants := l.responses[c]
	out := make([]string, len(variants))
	copy(out, variants)
	return out
}

// NumWeeks returns the number of weeks in the question bank.
func (l *Library) NumWeeks() int { return len(l.weeks) }

// WeekQuestions returns the six questions of the given 1-based week, ordered
// by [QuestionTypeOrder]. Returns nil if the week number is out of range.
func (l *Library) WeekQuestions(week int) []Question {
	if week < 1 || week > len(l.weeks) {
		return nil
	}
	qs := l.weeks[week-1].Questions
	out := make([]Question, len(qs))
	copy(out, qs)
	return out
}

// WeekTheme returns the theme of the given 1-based week, or "" if out of range.
func (l *Library) WeekTheme(week int) string {
	if week < 1 || week > len(l.weeks) {
		return ""
	}
	return l.weeks[week-1].Theme
}

// Normalize lowercases s, strips punctuation, and collapses runs of
// whitespace to single spaces. Apostrophes are removed outright so that
// "didn't" and "didnt" normalize identically (speech recognizers are
// inconsistent about contractions). Both trigger phrases and recognized
// utterances pass through Normalize before any matching, so matching is
// case and punctuation insensitive by construction.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
			// dropped, no space inserted
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}
