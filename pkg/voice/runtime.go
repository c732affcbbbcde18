package voice

import (
	"context"
	"errors"
)

// Common errors returned by runtimes.
var (
	ErrNotConnected     = errors.New("voice: runtime not connected")
	ErrAlreadyStarted   = errors.New("voice: runtime already started")
	ErrMissingAPIKey    = errors.New("voice: missing API key")
	ErrUnknownTool      = errors.New("voice: unknown tool")
	ErrToolFailed       = errors.New("voice: tool failed")
	ErrAudioUnsupported = errors.New("voice: runtime does not accept audio")
)

// Runtime is the managed voice pipeline a session runs on. Speech
// recognition, synthesis, turn detection and the model itself live behind it.
type Runtime interface {
	// RegisterTool adds a tool the model can invoke. Must be called before Start.
	RegisterTool(tool Tool)

	// Start connects and begins the conversation. It returns once the
	// session is running; Done is closed when it ends.
	Start(ctx context.Context, opts SessionOptions) error

	// Done is closed when the session has ended.
	Done() <-chan struct{}

	// OnMetrics registers a callback for usage and latency metrics.
	OnMetrics(fn func(MetricsEvent))

	// Close ends the session.
	Close() error
}

// AudioInput is implemented by runtimes that take participant audio.
type AudioInput interface {
	// SendAudio sends PCM16 mono audio at the configured input rate.
	SendAudio(pcm16 []byte) error
}

// TextInput is implemented by runtimes that take typed user messages.
type TextInput interface {
	SendText(ctx context.Context, text string) error
}

// SessionOptions configures one conversation.
type SessionOptions struct {
	// Instructions is the system prompt.
	Instructions string

	// Greeting, when set, asks the model to speak first with this guidance.
	Greeting string

	// Voice overrides the configured voice.
	Voice string

	// OnAudio receives PCM16 audio produced by the model.
	OnAudio func(pcm16 []byte)

	// OnTranscript receives user ("user") and model ("assistant") text.
	OnTranscript func(role, text string, final bool)

	// OnToolResult is called after every tool call.
	OnToolResult func(call ToolCall, result ToolResult)
}

// Factory creates a runtime for one session.
type Factory func(cfg Config) (Runtime, error)
