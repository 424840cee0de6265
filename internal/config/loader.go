package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the [Default] values and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	// Speech rates must be positive and strictly decreasing across tiers so
	// that "slower" always slows down.
	sp := cfg.Speech
	for _, rate := range []struct {
		name string
		val  float64
	}{
		{"speech.default_rate", sp.DefaultRate},
		{"speech.slow_rate", sp.SlowRate},
		{"speech.very_slow_rate", sp.VerySlowRate},
	} {
		if rate.val <= 0 || rate.val > 1.5 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range (0, 1.5]", rate.name, rate.val))
		}
	}
	if !(sp.DefaultRate > sp.SlowRate && sp.SlowRate > sp.VerySlowRate) {
		errs = append(errs, fmt.Errorf("speech rates must strictly decrease: default %.2f > slow %.2f > very_slow %.2f",
			sp.DefaultRate, sp.SlowRate, sp.VerySlowRate))
	}
	if sp.DefaultVolume <= 0 || sp.DefaultVolume > 1 {
		errs = append(errs, fmt.Errorf("speech.default_volume %.2f is out of range (0, 1]", sp.DefaultVolume))
	}
	if sp.WaitForResponseMS <= 0 {
		errs = append(errs, errors.New("speech.wait_for_response_ms must be positive"))
	}
	if sp.MaxWaitBeforePromptMS <= 0 {
		errs = append(errs, errors.New("speech.max_wait_before_prompt_ms must be positive"))
	}

	rec := cfg.Recording
	if rec.Enabled {
		if rec.MinResponseLengthSeconds < 0 {
			errs = append(errs, errors.New("story_recording.min_response_length_seconds must not be negative"))
		}
		if rec.MaxResponseLengthSeconds <= 0 {
			errs = append(errs, errors.New("story_recording.max_response_length_seconds must be positive"))
		}
		if rec.MinResponseLengthSeconds >= rec.MaxResponseLengthSeconds {
			errs = append(errs, fmt.Errorf("story_recording.min_response_length_seconds %d must be below max_response_length_seconds %d",
				rec.MinResponseLengthSeconds, rec.MaxResponseLengthSeconds))
		}
		if rec.SilenceThresholdToStopSeconds <= 0 {
			errs = append(errs, errors.New("story_recording.silence_threshold_to_stop_seconds must be positive"))
		}
	}

	if cfg.MemoryCare.Enabled && len(cfg.MemoryCare.DistressingKeywords) == 0 {
		errs = append(errs, errors.New("memory_care.distressing_keywords must not be empty when memory_care.enabled is true"))
	}

	lim := cfg.Limits
	if lim.MaxJokesPerSession < 0 || lim.MaxQuestionsPerSession < 0 {
		errs = append(errs, errors.New("limits caps must not be negative"))
	}
	if lim.SessionTimeoutMinutes <= 0 {
		errs = append(errs, errors.New("limits.session_timeout_minutes must be positive"))
	}
	if lim.CooldownBetweenSessionsMinutes < 0 {
		errs = append(errs, errors.New("limits.cooldown_between_sessions_minutes must not be negative"))
	}

	if cfg.Intent.PhoneticAssist {
		if cfg.Intent.PhoneticThreshold <= 0 || cfg.Intent.PhoneticThreshold > 1 {
			errs = append(errs, fmt.Errorf("intent.phonetic_threshold %.2f is out of range (0, 1]", cfg.Intent.PhoneticThreshold))
		}
	}

	if cfg.Content.WeekOverride < 0 {
		errs = append(errs, errors.New("content.week_override must not be negative"))
	}
	if cfg.Content.StartDate != "" {
		if _, err := time.Parse("2006-01-02", cfg.Content.StartDate); err != nil {
			errs = append(errs, fmt.Errorf("content.start_date %q is not a valid date (want YYYY-MM-DD)", cfg.Content.StartDate))
		}
	}

	return errors.Join(errs...)
}
