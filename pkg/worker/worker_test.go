package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceform/internal/log"
	"github.com/teslashibe/go-voiceform/pkg/agent"
	"github.com/teslashibe/go-voiceform/pkg/agent/barista"
	"github.com/teslashibe/go-voiceform/pkg/broadcast"
	"github.com/teslashibe/go-voiceform/pkg/hub"
	"github.com/teslashibe/go-voiceform/pkg/protocol"
	"github.com/teslashibe/go-voiceform/pkg/room"
	"github.com/teslashibe/go-voiceform/pkg/store"
	"github.com/teslashibe/go-voiceform/pkg/voice"
)

type browser struct {
	id string

	mu   sync.Mutex
	msgs []*protocol.Message
}

func (b *browser) Identity() string { return b.id }
func (b *browser) Kind() room.Kind  { return room.KindTest }
func (b *browser) Close() error     { return nil }

func (b *browser) Send(msg *protocol.Message) error {
	b.mu.Lock()
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
	return nil
}

func (b *browser) data(topic string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, m := range b.msgs {
		if m.Type != protocol.TypeData {
			continue
		}
		pkt, err := m.GetDataPacket()
		if err != nil || pkt.Topic != topic {
			continue
		}
		var env map[string]any
		json.Unmarshal(pkt.Payload, &env)
		out = append(out, env)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRequiresEntrypoint(t *testing.T) {
	if _, err := New(Options{}, nil); err == nil {
		t.Error("New without entrypoint should fail")
	}
}

func TestRunJobs(t *testing.T) {
	var (
		mu       sync.Mutex
		prewarms int
		order    []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	w, err := New(Options{
		Agent: "test",
		Prewarm: func(proc *Process) error {
			prewarms++
			proc.Set("greeting", "hello")
			return nil
		},
		Entrypoint: func(ctx context.Context, jc *JobContext) error {
			v, _ := jc.Proc.Get("greeting")
			record(jc.ID + ":start:" + v.(string))
			jc.AddShutdownCallback(func(context.Context) { record(jc.ID + ":first") })
			jc.AddShutdownCallback(func(context.Context) { record(jc.ID + ":second") })
			return nil
		},
	}, log.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	jobs := make(chan Job, 1)
	done := make(chan struct{})
	jobs <- Job{ID: "job-1", Done: done}
	close(jobs)

	result := make(chan error, 1)
	go func() { result <- w.Run(context.Background(), jobs) }()

	waitFor(t, "job to start", func() bool { return len(w.Jobs()) == 1 })
	close(done)

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the job ended")
	}

	if prewarms != 1 {
		t.Errorf("prewarms = %d, want 1", prewarms)
	}
	want := "job-1:start:hello,job-1:second,job-1:first"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
	if len(w.Jobs()) != 0 {
		t.Error("job should be gone after it ended")
	}
}

func TestRunStopsOnClose(t *testing.T) {
	stopped := make(chan struct{})
	w, _ := New(Options{
		Entrypoint: func(ctx context.Context, jc *JobContext) error {
			jc.AddShutdownCallback(func(context.Context) { close(stopped) })
			return nil
		},
	}, log.Discard())

	jobs := make(chan Job, 1)
	jobs <- Job{}
	result := make(chan error, 1)
	go func() { result <- w.Run(context.Background(), jobs) }()

	waitFor(t, "job to start", func() bool { return len(w.Jobs()) == 1 })
	if id := w.Jobs()[0].ID; !strings.HasPrefix(id, "job-") {
		t.Errorf("generated job ID = %q", id)
	}
	w.Close()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not end the running job")
	}
	if err := <-result; err != nil {
		t.Errorf("Run: %v", err)
	}
	if err := w.Run(context.Background(), jobs); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close = %v, want ErrClosed", err)
	}
}

func TestPrewarmError(t *testing.T) {
	w, _ := New(Options{
		Prewarm:    func(*Process) error { return errors.New("no model") },
		Entrypoint: func(context.Context, *JobContext) error { return nil },
	}, log.Discard())

	err := w.Run(context.Background(), make(chan Job))
	if err == nil || !strings.Contains(err.Error(), "no model") {
		t.Errorf("Run = %v, want prewarm error", err)
	}
}

func TestEntrypointFailureEndsJob(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, *JobContext) error
	}{
		{"error", func(context.Context, *JobContext) error { return errors.New("boom") }},
		{"panic", func(context.Context, *JobContext) error { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := New(Options{Entrypoint: tt.fn}, log.Discard())
			jobs := make(chan Job, 1)
			jobs <- Job{ID: "job-1", Done: make(chan struct{})}
			close(jobs)

			result := make(chan error, 1)
			go func() { result <- w.Run(context.Background(), jobs) }()
			select {
			case err := <-result:
				if err != nil {
					t.Errorf("Run: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("failed entrypoint should end the job")
			}
		})
	}
}

func TestSessionBootstrap(t *testing.T) {
	m := room.NewManager(log.Discard())
	dispatcher := NewDispatcher(m)
	events := hub.New(log.Discard(), 0)
	sessions := NewSessions()
	orders := store.NewOrderStore(t.TempDir())

	var (
		mu   sync.Mutex
		mock *voice.Mock
	)
	runtime := func(voice.Config) (voice.Runtime, error) {
		mu.Lock()
		defer mu.Unlock()
		mock = voice.NewMock()
		return mock, nil
	}
	current := func() *voice.Mock {
		mu.Lock()
		defer mu.Unlock()
		return mock
	}

	w, _ := New(Options{
		Agent: barista.Name,
		Prewarm: func(proc *Process) error {
			proc.Set("orders", orders)
			return nil
		},
		Entrypoint: SessionEntrypoint(SessionConfig{
			Definition: func(jc *JobContext) (agent.Definition, error) {
				v, _ := jc.Proc.Get("orders")
				return barista.Definition(barista.Options{Orders: v.(*store.OrderStore)}), nil
			},
			Runtime:  runtime,
			Hub:      events,
			Sessions: sessions,
		}),
	}, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, dispatcher.Jobs())

	b := &browser{id: "web-1"}
	r, err := m.Join("cafe", b)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	waitFor(t, "session", func() bool {
		_, err := sessions.Get("cafe")
		return err == nil
	})

	mk := current()
	if !strings.Contains(mk.SessionOptions.Instructions, barista.DefaultShop) {
		t.Error("instructions should name the shop")
	}
	if len(mk.Tools()) != 7 {
		t.Errorf("registered tools = %d, want 7", len(mk.Tools()))
	}

	res := mk.SimulateToolCall(ctx, "c1", "set_size", map[string]any{"size": "Large"})
	if res.Result != "Perfect! A large drink. What would you like to drink?" {
		t.Errorf("result = %q", res.Result)
	}

	updates := b.data(broadcast.TopicOrder)
	if len(updates) != 1 || updates[0]["type"] != broadcast.TypeOrderUpdate {
		t.Fatalf("updates = %v", updates)
	}
	if order := updates[0]["order"].(map[string]any); order["size"] != "large" {
		t.Errorf("order = %v", order)
	}

	// Typed messages reach the runtime.
	r.HandleText("web-1", "oat milk please")
	if len(mk.TextSent) != 1 {
		t.Errorf("TextSent = %v", mk.TextSent)
	}

	mk.SimulateMetrics(voice.MetricsEvent{Kind: voice.MetricsLLM, InputTokens: 10, OutputTokens: 5})

	var types []string
	for _, e := range events.Recent(0) {
		types = append(types, string(e.Type))
	}
	got := strings.Join(types, ",")
	for _, want := range []string{"session_started", "broadcast", "tool_result", "usage"} {
		if !strings.Contains(got, want) {
			t.Errorf("events %s missing %s", got, want)
		}
	}

	// The room emptying ends the job.
	m.Leave(r, "web-1")
	waitFor(t, "job to end", func() bool { return len(w.Jobs()) == 0 })

	select {
	case <-mk.Done():
	default:
		t.Error("runtime should be closed")
	}
	if _, err := sessions.Get("cafe"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Get after end = %v, want ErrNoSession", err)
	}
	last := events.Recent(1)[0]
	if last.Type != hub.EventSessionEnded {
		t.Errorf("last event = %s, want session_ended", last.Type)
	}
}

func TestSessionEndsWithRuntime(t *testing.T) {
	m := room.NewManager(log.Discard())
	dispatcher := NewDispatcher(m)
	mk := voice.NewMock()

	w, _ := New(Options{
		Entrypoint: SessionEntrypoint(SessionConfig{
			Definition: func(*JobContext) (agent.Definition, error) {
				return barista.Definition(barista.Options{Orders: store.NewOrderStore(t.TempDir())}), nil
			},
			Runtime: func(voice.Config) (voice.Runtime, error) { return mk, nil },
		}),
	}, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, dispatcher.Jobs())

	m.Join("cafe", &browser{id: "web-1"})
	waitFor(t, "job to start", func() bool { return mk.Started() })

	mk.Close()
	waitFor(t, "job to end", func() bool { return len(w.Jobs()) == 0 })
}
