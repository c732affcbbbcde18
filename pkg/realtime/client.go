// Package realtime runs a voice session on OpenAI's Realtime API for
// low-latency speech-to-speech conversations with tool use.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-voiceform/pkg/voice"
)

const (
	readTimeout  = 120 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Client manages the WebSocket connection to the Realtime API and
// implements voice.Runtime.
type Client struct {
	cfg    voice.Config
	logger *slog.Logger
	dialer *websocket.Dialer

	tools *voice.Toolset

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu        sync.RWMutex
	opts      voice.SessionOptions
	onMetrics []func(voice.MetricsEvent)
	started   bool
	ready     bool
	cancel    context.CancelFunc

	latency   *voice.LatencyTracker
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New creates a client. It does not connect until Start.
func New(cfg voice.Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, voice.ErrMissingAPIKey
	}
	if cfg.URL == "" {
		cfg.URL = voice.DefaultRealtimeURL
	}
	if cfg.RealtimeModel == "" {
		cfg.RealtimeModel = voice.DefaultRealtimeModel
	}

	c := &Client{
		cfg:     cfg,
		logger:  slog.Default(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		tools:   voice.NewToolset(),
		latency: voice.NewLatencyTracker(),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewRuntime is a voice.Factory for the realtime runtime.
func NewRuntime(cfg voice.Config) (voice.Runtime, error) {
	return New(cfg)
}

// RegisterTool implements voice.Runtime.
func (c *Client) RegisterTool(tool voice.Tool) {
	c.tools.Add(tool)
}

// OnMetrics implements voice.Runtime.
func (c *Client) OnMetrics(fn func(voice.MetricsEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMetrics = append(c.onMetrics, fn)
}

// Done implements voice.Runtime.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Start connects, configures the session and starts the read loop.
func (c *Client) Start(ctx context.Context, opts voice.SessionOptions) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return voice.ErrAlreadyStarted
	}
	c.started = true
	c.opts = opts
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%s?model=%s", c.cfg.URL, url.QueryEscape(c.cfg.RealtimeModel))
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, _, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("realtime: connect: %w", err)
	}

	ws.SetPingHandler(func(appData string) error {
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()

	if err := c.configureSession(opts); err != nil {
		c.Close()
		return fmt.Errorf("realtime: configure session: %w", err)
	}

	if opts.Greeting != "" {
		if err := c.sendJSON(map[string]any{
			"type":     "response.create",
			"response": map[string]any{"instructions": opts.Greeting},
		}); err != nil {
			c.Close()
			return fmt.Errorf("realtime: greeting: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(runCtx)
	go c.keepAlive(runCtx)
	go func() {
		select {
		case <-runCtx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	return nil
}

// configureSession sends session.update with voice, instructions and tools.
func (c *Client) configureSession(opts voice.SessionOptions) error {
	voiceName := opts.Voice
	if voiceName == "" {
		voiceName = c.cfg.Voice
	}
	if voiceName == "" {
		voiceName = voice.DefaultVoice
	}

	tools := c.tools.List()
	apiTools := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		apiTools = append(apiTools, map[string]any{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Schema(),
		})
	}

	asr := c.cfg.ASRModel
	if asr == "" {
		asr = voice.DefaultASRModel
	}

	session := map[string]any{
		"modalities":          []string{"text", "audio"},
		"instructions":        opts.Instructions,
		"voice":               voiceName,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"input_audio_transcription": map[string]any{
			"model": asr,
		},
		"turn_detection": map[string]any{
			"type":                "server_vad",
			"threshold":           c.cfg.VADThreshold,
			"prefix_padding_ms":   c.cfg.VADPrefixPadding.Milliseconds(),
			"silence_duration_ms": c.cfg.VADSilenceDuration.Milliseconds(),
		},
		"tools":       apiTools,
		"tool_choice": "auto",
	}
	if c.cfg.LLMTemperature > 0 {
		session["temperature"] = c.cfg.LLMTemperature
	}

	return c.sendJSON(map[string]any{
		"type":    "session.update",
		"session": session,
	})
}

// SendAudio implements voice.AudioInput.
func (c *Client) SendAudio(pcm16 []byte) error {
	return c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm16),
	})
}

// SendText implements voice.TextInput.
func (c *Client) SendText(ctx context.Context, text string) error {
	msg := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}
	if err := c.sendJSON(msg); err != nil {
		return err
	}
	return c.sendJSON(map[string]string{"type": "response.create"})
}

// CancelResponse interrupts the current response.
func (c *Client) CancelResponse() error {
	return c.sendJSON(map[string]string{"type": "response.cancel"})
}

// IsReady reports whether the server has confirmed the session.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Close implements voice.Runtime. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		c.wsMu.Lock()
		if c.ws != nil {
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.ws.Close()
		}
		c.wsMu.Unlock()

		close(c.done)
	})
	return nil
}

func (c *Client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.wsMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// serverEvent is the subset of Realtime server events the client handles.
type serverEvent struct {
	Type       string        `json:"type"`
	Delta      string        `json:"delta"`
	Transcript string        `json:"transcript"`
	Name       string        `json:"name"`
	CallID     string        `json:"call_id"`
	Arguments  string        `json:"arguments"`
	Response   *responseBody `json:"response"`
	Error      *apiError     `json:"error"`
}

type responseBody struct {
	Status string `json:"status"`
	Usage  *usage `json:"usage"`
}

type usage struct {
	TotalTokens       int `json:"total_tokens"`
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	InputTokenDetails struct {
		CachedTokens int `json:"cached_tokens"`
		TextTokens   int `json:"text_tokens"`
		AudioTokens  int `json:"audio_tokens"`
	} `json:"input_token_details"`
	OutputTokenDetails struct {
		TextTokens  int `json:"text_tokens"`
		AudioTokens int `json:"audio_tokens"`
	} `json:"output_token_details"`
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.Close()

	for {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("realtime connection closed", "error", err)
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("realtime: bad event", "error", err)
			continue
		}
		c.handleEvent(ctx, ev)
	}
}

func (c *Client) handleEvent(ctx context.Context, ev serverEvent) {
	c.mu.RLock()
	opts := c.opts
	c.mu.RUnlock()

	switch ev.Type {
	case "session.created", "session.updated":
		c.mu.Lock()
		c.ready = true
		c.mu.Unlock()

	case "input_audio_buffer.speech_stopped":
		c.latency.MarkSpeechEnd()

	case "conversation.item.input_audio_transcription.completed":
		if opts.OnTranscript != nil {
			opts.OnTranscript("user", ev.Transcript, true)
		}

	case "response.audio.delta":
		c.latency.MarkFirstAudio()
		if opts.OnAudio == nil {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			c.logger.Debug("realtime: bad audio delta", "error", err)
			return
		}
		opts.OnAudio(pcm)

	case "response.audio_transcript.delta":
		if opts.OnTranscript != nil {
			opts.OnTranscript("assistant", ev.Delta, false)
		}

	case "response.audio_transcript.done":
		if opts.OnTranscript != nil {
			opts.OnTranscript("assistant", ev.Transcript, true)
		}

	case "response.function_call_arguments.done":
		c.handleFunctionCall(ctx, ev, opts)

	case "response.done":
		c.emitUsage(ev)

	case "error":
		if ev.Error != nil {
			c.logger.Error("realtime API error", "code", ev.Error.Code, "message", ev.Error.Message)
		}
	}
}

// handleFunctionCall runs the tool on the read goroutine, so calls within a
// session never overlap, then sends the result back and asks for a response.
func (c *Client) handleFunctionCall(ctx context.Context, ev serverEvent, opts voice.SessionOptions) {
	var args map[string]any
	if ev.Arguments != "" {
		if err := json.Unmarshal([]byte(ev.Arguments), &args); err != nil {
			c.logger.Warn("realtime: bad tool arguments", "tool", ev.Name, "error", err)
		}
	}

	call := voice.ToolCall{ID: ev.CallID, Name: ev.Name, Arguments: args}
	res := c.tools.Dispatch(ctx, call)
	if res.Error != nil {
		c.logger.Warn("tool call failed", "tool", ev.Name, "error", res.Error)
	}
	if opts.OnToolResult != nil {
		opts.OnToolResult(call, res)
	}

	if err := c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": ev.CallID,
			"output":  res.Result,
		},
	}); err != nil {
		c.logger.Warn("realtime: send tool result", "error", err)
		return
	}
	if err := c.sendJSON(map[string]string{"type": "response.create"}); err != nil {
		c.logger.Warn("realtime: request response", "error", err)
	}
}

func (c *Client) emitUsage(ev serverEvent) {
	firstAudio, total := c.latency.MarkResponseDone()

	m := voice.MetricsEvent{
		Kind:       voice.MetricsRealtime,
		Model:      c.cfg.RealtimeModel,
		FirstAudio: firstAudio,
		Total:      total,
		At:         time.Now(),
	}
	if ev.Response != nil && ev.Response.Usage != nil {
		u := ev.Response.Usage
		m.InputTokens = u.InputTokens
		m.OutputTokens = u.OutputTokens
		m.CachedTokens = u.InputTokenDetails.CachedTokens
		m.AudioInputTokens = u.InputTokenDetails.AudioTokens
		m.AudioOutputTokens = u.OutputTokenDetails.AudioTokens
	}

	c.mu.RLock()
	fns := append([]func(voice.MetricsEvent){}, c.onMetrics...)
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(m)
	}
}

// sendJSON sends a JSON message over the websocket.
func (c *Client) sendJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws == nil {
		return voice.ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

var (
	_ voice.Runtime    = (*Client)(nil)
	_ voice.AudioInput = (*Client)(nil)
	_ voice.TextInput  = (*Client)(nil)
)
