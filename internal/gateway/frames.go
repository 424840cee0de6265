package gateway

// FrameType discriminates the JSON messages exchanged with a device.
type FrameType string

const (
	// Device to server.
	FrameUtterance FrameType = "utterance"
	FrameSilence   FrameType = "silence"
	FrameEnd       FrameType = "end"
	FrameSpoken    FrameType = "spoken"

	// Server to device.
	FrameSpeak        FrameType = "speak"
	FrameSessionEnded FrameType = "session_ended"
	FrameError        FrameType = "error"
)

// Frame is the wire message for the device websocket. Fields are populated
// according to Type; unused fields are omitted.
type Frame struct {
	Type FrameType `json:"type"`

	// Utterance fields. Confidence is the recognizer's score in [0,1].
	Text        string  `json:"text,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	TimestampMS int64   `json:"timestamp_ms,omitempty"`

	// Silence fields.
	DurationMS int64 `json:"duration_ms,omitempty"`

	// Speak command fields. The device answers with a spoken frame carrying
	// the same SpeakID once playback completes or fails.
	SpeakID         string  `json:"speak_id,omitempty"`
	Rate            float64 `json:"rate,omitempty"`
	Volume          float64 `json:"volume,omitempty"`
	SentencePauseMS int     `json:"sentence_pause_ms,omitempty"`
	QuestionPauseMS int     `json:"question_pause_ms,omitempty"`
	IsQuestion      bool    `json:"is_question,omitempty"`

	// Spoken ack fields.
	OK bool `json:"ok,omitempty"`

	// Session end / error fields.
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}
