package voice

import (
	"context"
	"sync"
)

// Mock is an in-process Runtime for tests. Tool calls are driven with
// SimulateToolCall and dispatched through the registered tools exactly as a
// real runtime would.
type Mock struct {
	mu sync.RWMutex

	tools     *Toolset
	started   bool
	done      chan struct{}
	closeOnce sync.Once
	onMetrics []func(MetricsEvent)

	// Configurable behavior
	StartFunc     func(ctx context.Context, opts SessionOptions) error
	SendAudioFunc func(pcm16 []byte) error

	// Captured calls for assertions
	SessionOptions *SessionOptions
	AudioSent      [][]byte
	TextSent       []string
	ToolResults    map[string]string
}

// NewMock creates a new Mock runtime.
func NewMock() *Mock {
	return &Mock{
		tools:       NewToolset(),
		done:        make(chan struct{}),
		ToolResults: make(map[string]string),
	}
}

// RegisterTool implements Runtime.
func (m *Mock) RegisterTool(tool Tool) {
	m.tools.Add(tool)
}

// Start implements Runtime.
func (m *Mock) Start(ctx context.Context, opts SessionOptions) error {
	if m.StartFunc != nil {
		if err := m.StartFunc(ctx, opts); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.SessionOptions = &opts
	return nil
}

// Done implements Runtime.
func (m *Mock) Done() <-chan struct{} {
	return m.done
}

// OnMetrics implements Runtime.
func (m *Mock) OnMetrics(fn func(MetricsEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMetrics = append(m.onMetrics, fn)
}

// Close implements Runtime.
func (m *Mock) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// SendAudio implements AudioInput.
func (m *Mock) SendAudio(pcm16 []byte) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(pcm16)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotConnected
	}
	m.AudioSent = append(m.AudioSent, pcm16)
	return nil
}

// SendText implements TextInput.
func (m *Mock) SendText(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotConnected
	}
	m.TextSent = append(m.TextSent, text)
	return nil
}

// Started reports whether Start succeeded.
func (m *Mock) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Tools returns the registered tools.
func (m *Mock) Tools() []Tool {
	return m.tools.List()
}

// Test helpers

// SimulateToolCall dispatches a tool call as if the model had made it.
func (m *Mock) SimulateToolCall(ctx context.Context, id, name string, args map[string]any) ToolResult {
	call := ToolCall{ID: id, Name: name, Arguments: args}
	res := m.tools.Dispatch(ctx, call)

	m.mu.Lock()
	m.ToolResults[id] = res.Result
	var onResult func(ToolCall, ToolResult)
	if m.SessionOptions != nil {
		onResult = m.SessionOptions.OnToolResult
	}
	m.mu.Unlock()

	if onResult != nil {
		onResult(call, res)
	}
	return res
}

// SimulateMetrics delivers ev to every OnMetrics callback.
func (m *Mock) SimulateMetrics(ev MetricsEvent) {
	m.mu.RLock()
	fns := append([]func(MetricsEvent){}, m.onMetrics...)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SimulateAudio delivers model audio to the session's OnAudio callback.
func (m *Mock) SimulateAudio(pcm16 []byte) {
	m.mu.RLock()
	var fn func([]byte)
	if m.SessionOptions != nil {
		fn = m.SessionOptions.OnAudio
	}
	m.mu.RUnlock()
	if fn != nil {
		fn(pcm16)
	}
}

// Ensure Mock implements the runtime interfaces.
var (
	_ Runtime    = (*Mock)(nil)
	_ AudioInput = (*Mock)(nil)
	_ TextInput  = (*Mock)(nil)
)
