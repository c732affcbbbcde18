// Package openai runs a text session on OpenAI chat completions. It is the
// console counterpart of the realtime runtime: the user types, the model
// replies in text, and tool calls go through the same voice.Toolset.
package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"github.com/teslashibe/go-voiceform/internal/httpc"
	"github.com/teslashibe/go-voiceform/pkg/voice"
)

// MaxToolRounds bounds how many consecutive tool-call rounds one user turn
// may take before the model must answer.
const MaxToolRounds = 8

// ErrEmptyChoices is returned when the model answers with no choices.
var ErrEmptyChoices = errors.New("openai: empty choices")

// Client is a voice.Runtime backed by chat completions.
type Client struct {
	cfg    voice.Config
	api    openaigo.Client
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	tools *voice.Toolset

	mu        sync.RWMutex
	opts      voice.SessionOptions
	onMetrics []func(voice.MetricsEvent)
	started   bool

	turnMu   sync.Mutex
	messages []openaigo.ChatCompletionMessageParamUnion

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
	in         io.Reader
	out        io.Writer
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithIO sets where user lines are read from and replies are written to.
// A nil reader disables the input loop; use SendText instead.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *clientOptions) {
		o.in = in
		o.out = out
	}
}

// New creates a console client. It defaults to stdin and stdout.
func New(cfg voice.Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, voice.ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = voice.DefaultModel
	}

	o := clientOptions{
		httpClient: httpc.Client,
		logger:     slog.Default(),
		in:         os.Stdin,
		out:        os.Stdout,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.out == nil {
		o.out = io.Discard
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(2),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}

	return &Client{
		cfg:    cfg,
		api:    openaigo.NewClient(reqOpts...),
		logger: o.logger,
		in:     o.in,
		out:    o.out,
		tools:  voice.NewToolset(),
		done:   make(chan struct{}),
	}, nil
}

// NewRuntime is a voice.Factory for the console runtime.
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

// Close implements voice.Runtime.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Start seeds the conversation with the instructions, speaks the greeting if
// one is set, and starts reading user lines. The session ends at EOF.
func (c *Client) Start(ctx context.Context, opts voice.SessionOptions) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return voice.ErrAlreadyStarted
	}
	c.started = true
	c.opts = opts
	c.mu.Unlock()

	c.turnMu.Lock()
	c.messages = []openaigo.ChatCompletionMessageParamUnion{
		openaigo.SystemMessage(opts.Instructions),
	}
	c.turnMu.Unlock()

	if opts.Greeting != "" {
		c.turnMu.Lock()
		c.messages = append(c.messages, openaigo.SystemMessage(opts.Greeting))
		err := c.respond(ctx)
		c.turnMu.Unlock()
		if err != nil {
			return fmt.Errorf("openai: greeting: %w", err)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	if c.in != nil {
		go c.readLoop(ctx)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.Close()

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.SendText(ctx, line); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("console turn failed", "error", err)
			fmt.Fprintf(c.out, "(error: %v)\n", err)
		}
	}
}

// SendText implements voice.TextInput. It runs one user turn, including any
// tool calls, and writes the reply.
func (c *Client) SendText(ctx context.Context, text string) error {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if !started {
		return voice.ErrNotConnected
	}

	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	c.transcript("user", text)
	c.messages = append(c.messages, openaigo.UserMessage(text))
	return c.respond(ctx)
}

// respond must be called with turnMu held.
func (c *Client) respond(ctx context.Context) error {
	tools := toolParams(c.tools.List())

	for round := 0; round <= MaxToolRounds; round++ {
		params := openaigo.ChatCompletionNewParams{
			Model:    openaigo.ChatModel(c.cfg.Model),
			Messages: c.messages,
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		start := time.Now()
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("openai: chat completion: %w", err)
		}
		c.emitUsage(resp, time.Since(start))

		if len(resp.Choices) == 0 {
			return ErrEmptyChoices
		}
		msg := resp.Choices[0].Message
		c.messages = append(c.messages, msg.ToParam())

		if len(msg.ToolCalls) == 0 {
			c.transcript("assistant", msg.Content)
			fmt.Fprintf(c.out, "%s\n", strings.TrimSpace(msg.Content))
			return nil
		}

		for _, tc := range msg.ToolCalls {
			if tc.Type != "function" {
				c.messages = append(c.messages, openaigo.ToolMessage("unsupported tool type", tc.ID))
				continue
			}
			fn := tc.AsFunction()

			var args map[string]any
			if err := json.Unmarshal([]byte(fn.Function.Arguments), &args); err != nil {
				c.logger.Warn("bad tool arguments", "tool", fn.Function.Name, "error", err)
			}

			call := voice.ToolCall{ID: tc.ID, Name: fn.Function.Name, Arguments: args}
			res := c.tools.Dispatch(ctx, call)
			if res.Error != nil {
				c.logger.Warn("tool call failed", "tool", call.Name, "error", res.Error)
			}
			c.toolResult(call, res)
			c.messages = append(c.messages, openaigo.ToolMessage(res.Result, tc.ID))
		}
	}
	return fmt.Errorf("openai: more than %d tool rounds in one turn", MaxToolRounds)
}

func (c *Client) transcript(role, text string) {
	c.mu.RLock()
	fn := c.opts.OnTranscript
	c.mu.RUnlock()
	if fn != nil {
		fn(role, text, true)
	}
}

func (c *Client) toolResult(call voice.ToolCall, res voice.ToolResult) {
	c.mu.RLock()
	fn := c.opts.OnToolResult
	c.mu.RUnlock()
	if fn != nil {
		fn(call, res)
	}
}

func (c *Client) emitUsage(resp *openaigo.ChatCompletion, d time.Duration) {
	ev := voice.MetricsEvent{
		Kind:         voice.MetricsLLM,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		CachedTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
		Duration:     d,
		At:           time.Now(),
	}

	c.mu.RLock()
	fns := append([]func(voice.MetricsEvent){}, c.onMetrics...)
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func toolParams(tools []voice.Tool) []openaigo.ChatCompletionToolUnionParam {
	out := make([]openaigo.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openaigo.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: param.NewOpt(t.Description),
			Parameters:  shared.FunctionParameters(t.Schema()),
		}))
	}
	return out
}

var (
	_ voice.Runtime   = (*Client)(nil)
	_ voice.TextInput = (*Client)(nil)
)
