package voice

import (
	"errors"
	"time"
)

// Provider identifies the runtime implementation.
type Provider string

const (
	// ProviderRealtime uses the OpenAI Realtime API (speech in, speech out).
	ProviderRealtime Provider = "realtime"

	// ProviderConsole uses chat completions over a text terminal.
	ProviderConsole Provider = "console"

	// ProviderMock is the in-process runtime used in tests.
	ProviderMock Provider = "mock"
)

// Config holds the tunable parameters of a runtime.
type Config struct {
	Provider Provider

	// API access
	APIKey  string
	BaseURL string // chat completions base URL (console)
	URL     string // realtime websocket URL

	// Audio settings
	InputSampleRate  int // default: 24000
	OutputSampleRate int // default: 24000

	// VAD (server-side turn detection)
	VADThreshold       float64       // 0.0-1.0 (default: 0.5)
	VADPrefixPadding   time.Duration // default: 300ms
	VADSilenceDuration time.Duration // default: 500ms

	// ASR
	ASRModel string // default: whisper-1

	// LLM
	Model          string  // chat model (console)
	RealtimeModel  string  // realtime model
	LLMTemperature float64 // 0.6-1.2 for realtime (default: 0.8)

	// TTS
	Voice string // default: alloy

	Debug bool
}

// Defaults.
const (
	DefaultRealtimeURL   = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel = "gpt-4o-realtime-preview"
	DefaultModel         = "gpt-4o-mini"
	DefaultVoice         = "alloy"
	DefaultASRModel      = "whisper-1"
)

// DefaultConfig returns a Config with sensible defaults for the realtime runtime.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderRealtime,
		URL:      DefaultRealtimeURL,

		InputSampleRate:  24000,
		OutputSampleRate: 24000,

		VADThreshold:       0.5,
		VADPrefixPadding:   300 * time.Millisecond,
		VADSilenceDuration: 500 * time.Millisecond,

		ASRModel: DefaultASRModel,

		Model:          DefaultModel,
		RealtimeModel:  DefaultRealtimeModel,
		LLMTemperature: 0.8,

		Voice: DefaultVoice,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderRealtime, ProviderConsole:
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
	case ProviderMock:
	default:
		return errors.New("voice: unknown provider: " + string(c.Provider))
	}

	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		return errors.New("voice: VAD threshold must be between 0 and 1")
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return errors.New("voice: LLM temperature must be between 0 and 2")
	}

	return nil
}

// WithProvider returns a copy with the provider set.
func (c Config) WithProvider(p Provider) Config {
	c.Provider = p
	return c
}

// WithVoice returns a copy with the voice set.
func (c Config) WithVoice(voice string) Config {
	c.Voice = voice
	return c
}

// WithVAD returns a copy with VAD settings.
func (c Config) WithVAD(threshold float64, silenceDuration time.Duration) Config {
	c.VADThreshold = threshold
	c.VADSilenceDuration = silenceDuration
	return c
}

// WithDebug returns a copy with debug enabled.
func (c Config) WithDebug(debug bool) Config {
	c.Debug = debug
	return c
}
