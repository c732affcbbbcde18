package voice

import (
	"log/slog"
	"sync"
	"time"
)

// MetricsKind tells which stage of the pipeline produced a MetricsEvent.
type MetricsKind string

const (
	MetricsLLM      MetricsKind = "llm"
	MetricsRealtime MetricsKind = "realtime"
	MetricsSTT      MetricsKind = "stt"
	MetricsTTS      MetricsKind = "tts"
)

// MetricsEvent is emitted by a runtime after each model response.
type MetricsEvent struct {
	Kind  MetricsKind `json:"kind"`
	Model string      `json:"model,omitempty"`

	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	CachedTokens      int `json:"cached_tokens,omitempty"`
	AudioInputTokens  int `json:"audio_input_tokens,omitempty"`
	AudioOutputTokens int `json:"audio_output_tokens,omitempty"`

	// Latencies measured from the end of user speech, when known.
	FirstAudio time.Duration `json:"first_audio,omitempty"`
	Total      time.Duration `json:"total,omitempty"`

	// Duration is the wall time of the request (console runtime).
	Duration time.Duration `json:"duration,omitempty"`

	At time.Time `json:"at"`
}

// UsageSummary aggregates every MetricsEvent of a session.
type UsageSummary struct {
	Responses         int `json:"responses"`
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	CachedTokens      int `json:"cached_tokens"`
	AudioInputTokens  int `json:"audio_input_tokens"`
	AudioOutputTokens int `json:"audio_output_tokens"`

	AvgFirstAudio time.Duration `json:"avg_first_audio"`
}

// UsageCollector accumulates usage across a session.
// It is goroutine-safe and can be used from multiple callbacks.
type UsageCollector struct {
	mu      sync.Mutex
	summary UsageSummary

	firstAudioSum time.Duration
	firstAudioN   int
}

// NewUsageCollector creates an empty collector.
func NewUsageCollector() *UsageCollector {
	return &UsageCollector{}
}

// Collect adds an event to the summary.
func (u *UsageCollector) Collect(ev MetricsEvent) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.summary.Responses++
	u.summary.InputTokens += ev.InputTokens
	u.summary.OutputTokens += ev.OutputTokens
	u.summary.CachedTokens += ev.CachedTokens
	u.summary.AudioInputTokens += ev.AudioInputTokens
	u.summary.AudioOutputTokens += ev.AudioOutputTokens

	if ev.FirstAudio > 0 {
		u.firstAudioSum += ev.FirstAudio
		u.firstAudioN++
		u.summary.AvgFirstAudio = u.firstAudioSum / time.Duration(u.firstAudioN)
	}
}

// Summary returns the aggregate so far.
func (u *UsageCollector) Summary() UsageSummary {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.summary
}

// LogValue implements slog.LogValuer.
func (s UsageSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("responses", s.Responses),
		slog.Int("input_tokens", s.InputTokens),
		slog.Int("output_tokens", s.OutputTokens),
		slog.Int("cached_tokens", s.CachedTokens),
		slog.Int("audio_input_tokens", s.AudioInputTokens),
		slog.Int("audio_output_tokens", s.AudioOutputTokens),
		slog.String("avg_first_audio", formatDuration(s.AvgFirstAudio)),
	)
}

// LogMetrics writes one event at debug level.
func LogMetrics(logger *slog.Logger, ev MetricsEvent) {
	logger.Debug("metrics collected",
		"kind", ev.Kind,
		"model", ev.Model,
		"input_tokens", ev.InputTokens,
		"output_tokens", ev.OutputTokens,
		"first_audio", formatDuration(ev.FirstAudio),
		"total", formatDuration(ev.Total),
	)
}

// LatencyTracker measures per-turn latency from the moment the user stops
// speaking. It is goroutine-safe.
type LatencyTracker struct {
	mu         sync.Mutex
	speechEnd  time.Time
	firstAudio time.Duration
	now        func() time.Time
}

// NewLatencyTracker creates a tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{now: time.Now}
}

// MarkSpeechEnd records when the user stopped speaking and starts a new turn.
func (l *LatencyTracker) MarkSpeechEnd() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.speechEnd = l.now()
	l.firstAudio = 0
}

// MarkFirstAudio records the first audio chunk of the response. Later calls
// in the same turn are ignored.
func (l *LatencyTracker) MarkFirstAudio() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.firstAudio == 0 && !l.speechEnd.IsZero() {
		l.firstAudio = l.now().Sub(l.speechEnd)
	}
}

// MarkResponseDone closes the turn and returns its latencies.
func (l *LatencyTracker) MarkResponseDone() (firstAudio, total time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.speechEnd.IsZero() {
		return 0, 0
	}
	firstAudio, total = l.firstAudio, l.now().Sub(l.speechEnd)
	l.speechEnd = time.Time{}
	l.firstAudio = 0
	return firstAudio, total
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
