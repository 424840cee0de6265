// Package config provides the configuration schema and loader for the Polly
// conversation server.
package config

import "time"

// LogLevel controls log verbosity for the Polly server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Polly.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Speech        SpeechConfig        `yaml:"speech"`
	Recording     RecordingConfig     `yaml:"story_recording"`
	MemoryCare    MemoryCareConfig    `yaml:"memory_care"`
	Limits        LimitsConfig        `yaml:"limits"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Storage       StorageConfig       `yaml:"storage"`
	Content       ContentConfig       `yaml:"content"`
	Intent        IntentConfig        `yaml:"intent"`
}

// ServerConfig holds network and logging settings for the Polly server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	// The address serves the device websocket gateway, /healthz, and /metrics.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// SpeechConfig holds pacing parameters for synthesized speech. Rates are
// speed multipliers in (0, 1.5]; volume is in (0, 1].
type SpeechConfig struct {
	DefaultRate  float64 `yaml:"default_rate"`
	SlowRate     float64 `yaml:"slow_rate"`
	VerySlowRate float64 `yaml:"very_slow_rate"`

	DefaultVolume float64 `yaml:"default_volume"`

	// PauseBetweenSentencesMS and PauseAfterQuestionMS are passed to the
	// speech output collaborator verbatim.
	PauseBetweenSentencesMS int `yaml:"pause_between_sentences_ms"`
	PauseAfterQuestionMS    int `yaml:"pause_after_question_ms"`

	// WaitForResponseMS bounds how long Polly waits for input after
	// speaking before re-prompting once with a wait prompt.
	WaitForResponseMS int `yaml:"wait_for_response_ms"`

	// MaxWaitBeforePromptMS bounds the second wait, after the wait prompt,
	// before the session escalates to a gentle check and winds down.
	MaxWaitBeforePromptMS int `yaml:"max_wait_before_prompt_ms"`
}

// WaitForResponse returns WaitForResponseMS as a duration.
func (s SpeechConfig) WaitForResponse() time.Duration {
	return time.Duration(s.WaitForResponseMS) * time.Millisecond
}

// MaxWaitBeforePrompt returns MaxWaitBeforePromptMS as a duration.
func (s SpeechConfig) MaxWaitBeforePrompt() time.Duration {
	return time.Duration(s.MaxWaitBeforePromptMS) * time.Millisecond
}

// RecordingConfig governs story capture.
type RecordingConfig struct {
	// Enabled turns story capture on. When false, answers to questions are
	// acknowledged but not recorded.
	Enabled bool `yaml:"enabled"`

	// MinResponseLengthSeconds: recordings shorter than this are discarded.
	MinResponseLengthSeconds int `yaml:"min_response_length_seconds"`

	// MaxResponseLengthSeconds: reaching this forces a stop.
	MaxResponseLengthSeconds int `yaml:"max_response_length_seconds"`

	// SilenceThresholdToStopSeconds of silence ends the capture.
	SilenceThresholdToStopSeconds int `yaml:"silence_threshold_to_stop_seconds"`

	// PromptToContinue offers a continuation prompt after a silence stop.
	PromptToContinue bool `yaml:"prompt_to_continue"`
}

// MinResponseLength returns MinResponseLengthSeconds as a duration.
func (r RecordingConfig) MinResponseLength() time.Duration {
	return time.Duration(r.MinResponseLengthSeconds) * time.Second
}

// MaxResponseLength returns MaxResponseLengthSeconds as a duration.
func (r RecordingConfig) MaxResponseLength() time.Duration {
	return time.Duration(r.MaxResponseLengthSeconds) * time.Second
}

// SilenceThreshold returns SilenceThresholdToStopSeconds as a duration.
func (r RecordingConfig) SilenceThreshold() time.Duration {
	return time.Duration(r.SilenceThresholdToStopSeconds) * time.Second
}

// MemoryCareConfig holds the safety mode for cognitively vulnerable users.
type MemoryCareConfig struct {
	// Enabled turns on distress redirection and familiar-name substitution.
	Enabled bool `yaml:"enabled"`

	// DistressingKeywords are matched as whole words against utterances.
	DistressingKeywords []string `yaml:"distressing_keywords"`

	// FamiliarNameEnabled substitutes FamiliarName for the {name}
	// placeholder in responses when set.
	FamiliarNameEnabled bool   `yaml:"familiar_name_enabled"`
	FamiliarName        string `yaml:"familiar_name"`
}

// LimitsConfig caps per-session activity and enforces rest between sessions.
type LimitsConfig struct {
	MaxJokesPerSession     int `yaml:"max_jokes_per_session"`
	MaxQuestionsPerSession int `yaml:"max_questions_per_session"`

	SessionTimeoutMinutes          int `yaml:"session_timeout_minutes"`
	CooldownBetweenSessionsMinutes int `yaml:"cooldown_between_sessions_minutes"`

	// GentleSessionEnd uses the session_end response bank (rather than a
	// plain goodbye) when a session ends because limits were reached.
	GentleSessionEnd bool `yaml:"gentle_session_end"`
}

// SessionTimeout returns SessionTimeoutMinutes as a duration.
func (l LimitsConfig) SessionTimeout() time.Duration {
	return time.Duration(l.SessionTimeoutMinutes) * time.Minute
}

// Cooldown returns CooldownBetweenSessionsMinutes as a duration.
func (l LimitsConfig) Cooldown() time.Duration {
	return time.Duration(l.CooldownBetweenSessionsMinutes) * time.Minute
}

// NotificationsConfig selects which family notification events are emitted.
// Delivery is fire-and-forget; a failing webhook never blocks a conversation.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`

	// WebhookURL receives notification events as JSON POSTs. Empty means
	// events are logged but not delivered.
	WebhookURL string `yaml:"webhook_url"`

	NotifyOnNewStory         bool `yaml:"notify_on_new_story"`
	NotifyOnDistressKeywords bool `yaml:"notify_on_distress_keywords"`
	DailySummary             bool `yaml:"daily_summary"`
	WeeklyDigest             bool `yaml:"weekly_digest"`
}

// StorageConfig selects the story store backend.
type StorageConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the story store.
	// Empty means stories are kept in memory only (useful for development).
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ContentConfig points at the conversational content documents.
type ContentConfig struct {
	// Dir optionally overrides the embedded triggers/responses/questions
	// documents with files from a directory.
	Dir string `yaml:"dir"`

	// WeekOverride pins the question sequencer to a fixed week (1-based).
	// Zero derives the week from StartDate and the clock.
	WeekOverride int `yaml:"week_override"`

	// StartDate anchors week derivation, format "2006-01-02". Empty with a
	// zero WeekOverride means every session uses week 1.
	StartDate string `yaml:"start_date"`
}

// IntentConfig tunes the intent classifier.
type IntentConfig struct {
	// PhoneticAssist enables the Double Metaphone / Jaro-Winkler pass when
	// exact containment matching finds nothing.
	PhoneticAssist bool `yaml:"phonetic_assist"`

	// PhoneticThreshold is the minimum similarity score for a phonetic
	// match to be accepted. Default: 0.7.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
}

// Default returns a Config populated with the defaults that ship with Polly
// devices. A loaded YAML file overlays these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Speech: SpeechConfig{
			DefaultRate:             0.85,
			SlowRate:                0.65,
			VerySlowRate:            0.5,
			DefaultVolume:           0.8,
			PauseBetweenSentencesMS: 1500,
			PauseAfterQuestionMS:    3000,
			WaitForResponseMS:       15000,
			MaxWaitBeforePromptMS:   30000,
		},
		Recording: RecordingConfig{
			Enabled:                       true,
			MinResponseLengthSeconds:      2,
			MaxResponseLengthSeconds:      300,
			SilenceThresholdToStopSeconds: 5,
			PromptToContinue:              true,
		},
		MemoryCare: MemoryCareConfig{
			Enabled: true,
			DistressingKeywords: []string{
				"death", "died", "funeral", "hospital",
				"sick", "cancer", "war", "accident",
			},
			FamiliarNameEnabled: true,
		},
		Limits: LimitsConfig{
			MaxJokesPerSession:             10,
			MaxQuestionsPerSession:         6,
			SessionTimeoutMinutes:          30,
			CooldownBetweenSessionsMinutes: 60,
			GentleSessionEnd:               true,
		},
		Notifications: NotificationsConfig{
			Enabled:                  true,
			NotifyOnNewStory:         true,
			NotifyOnDistressKeywords: true,
			DailySummary:             true,
			WeeklyDigest:             true,
		},
		Intent: IntentConfig{
			PhoneticAssist:    true,
			PhoneticThreshold: 0.7,
		},
	}
}
