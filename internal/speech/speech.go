// Package speech defines the boundaries to the external speech collaborators.
//
// The conversation core neither recognizes nor synthesizes audio. Recognized
// utterances and silence events arrive as [Utterance] / [SilenceEvent]
// values (typically via the device gateway), and spoken output leaves
// through a [Speaker]. Implementations of Speaker must be safe for
// concurrent use; sessions for different residents speak independently.
package speech

import (
	"context"
	"time"
)

// Utterance is one recognized chunk of user speech.
type Utterance struct {
	// Text is the recognized transcript, possibly empty or partial.
	Text string

	// Confidence is the recognizer's confidence in [0, 1], 0 when unknown.
	Confidence float64

	// Timestamp is when recognition completed.
	Timestamp time.Time
}

// SilenceEvent signals that the recognizer detected no speech for the
// device-side silence window.
type SilenceEvent struct {
	// Duration is how long the silence has lasted.
	Duration time.Duration

	// Timestamp is when the event was raised.
	Timestamp time.Time
}

// Request carries one utterance to synthesize together with its delivery
// parameters.
type Request struct {
	// Text is the utterance to speak.
	Text string

	// Rate is the speed multiplier (1.0 = the voice's natural rate).
	Rate float64

	// Volume is the playback volume in (0, 1].
	Volume float64

	// SentencePauseMS is inserted between sentences.
	SentencePauseMS int

	// QuestionPauseMS is appended after the utterance when IsQuestion is
	// set, giving the listener time before the response window opens.
	QuestionPauseMS int

	// IsQuestion marks the utterance as a posed question.
	IsQuestion bool
}

// Speaker is the speech output collaborator.
type Speaker interface {
	// Speak synthesizes and plays req, returning once playback has fully
	// completed or failed. A non-nil error means the utterance was not
	// fully delivered; callers treat persistent failure as fatal to the
	// session (the core cannot converse without a voice).
	Speak(ctx context.Context, req Request) error
}
