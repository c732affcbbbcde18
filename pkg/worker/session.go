package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/teslashibe/go-voiceform/pkg/agent"
	"github.com/teslashibe/go-voiceform/pkg/broadcast"
	"github.com/teslashibe/go-voiceform/pkg/hub"
	"github.com/teslashibe/go-voiceform/pkg/voice"
)

// ErrNoSession is returned when a room has no running session.
var ErrNoSession = errors.New("worker: no session for room")

// Sessions tracks the agent session of every running job by room name.
type Sessions struct {
	mu sync.RWMutex
	m  map[string]*agent.Session
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{m: make(map[string]*agent.Session)}
}

// Add registers sess as the session serving room.
func (s *Sessions) Add(room string, sess *agent.Session) {
	s.mu.Lock()
	s.m[room] = sess
	s.mu.Unlock()
}

// Remove unregisters sess if it still serves room.
func (s *Sessions) Remove(room string, sess *agent.Session) {
	s.mu.Lock()
	if cur, ok := s.m[room]; ok && cur == sess {
		delete(s.m, room)
	}
	s.mu.Unlock()
}

// Get returns the session serving room.
func (s *Sessions) Get(room string) (*agent.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.m[room]
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

// Rooms returns the rooms with a running session, sorted.
func (s *Sessions) Rooms() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.m))
	for name := range s.m {
		out = append(out, name)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// SessionConfig wires an agent to a voice runtime for every job.
type SessionConfig struct {
	// Definition builds the agent for one job, typically from resources the
	// prewarm hook stored on jc.Proc.
	Definition func(jc *JobContext) (agent.Definition, error)

	// Runtime creates the voice pipeline.
	Runtime voice.Factory
	Voice   voice.Config

	// Hub receives operator events. Optional.
	Hub *hub.Hub

	// Sessions registers the running session by room. Optional.
	Sessions *Sessions
}

// SessionEntrypoint returns an entrypoint that bootstraps one agent session
// per job: a fresh record, the sink bound to the job's room, the tools
// registered on a new runtime and a shutdown hook that logs usage.
func SessionEntrypoint(cfg SessionConfig) func(ctx context.Context, jc *JobContext) error {
	return func(ctx context.Context, jc *JobContext) error {
		if cfg.Definition == nil || cfg.Runtime == nil {
			return errors.New("worker: session config needs a definition and a runtime")
		}
		def, err := cfg.Definition(jc)
		if err != nil {
			return fmt.Errorf("worker: building agent: %w", err)
		}
		if err := def.Validate(); err != nil {
			return err
		}

		sess := agent.NewSession(def, jc.Logger)
		sess.Reset()

		roomName := ""
		if jc.Room != nil {
			roomName = jc.Room.Name()
			sess.Sink.Bind(jc.Room.LocalParticipant())
		}
		emit := func(typ hub.EventType, data any) {
			if cfg.Hub != nil {
				cfg.Hub.Publish(hub.Event{Type: typ, Session: sess.ID, Agent: def.Name, Room: roomName, Data: data})
			}
		}
		sess.Sink.OnResult(func(res broadcast.Result) {
			emit(hub.EventBroadcast, res)
		})

		rt, err := cfg.Runtime(cfg.Voice)
		if err != nil {
			return fmt.Errorf("worker: creating runtime: %w", err)
		}
		// Tools run through the session's toolset, serialized with manual triggers.
		for _, t := range sess.Tools() {
			name := t.Name
			t.Handler = func(ctx context.Context, args map[string]any) (string, error) {
				return sess.Dispatch(ctx, voice.ToolCall{Name: name, Arguments: args}).Result, nil
			}
			rt.RegisterTool(t)
		}

		usage := voice.NewUsageCollector()
		rt.OnMetrics(func(ev voice.MetricsEvent) {
			usage.Collect(ev)
			voice.LogMetrics(sess.Logger, ev)
			emit(hub.EventUsage, ev)
		})

		jc.AddShutdownCallback(func(context.Context) {
			summary := usage.Summary()
			sess.Logger.Info("usage", "summary", summary)
			emit(hub.EventSessionEnded, summary)
		})
		jc.AddShutdownCallback(func(context.Context) {
			if err := rt.Close(); err != nil {
				sess.Logger.Debug("runtime close", "error", err)
			}
		})

		opts := voice.SessionOptions{
			Instructions: sess.Instructions(ctx),
			Greeting:     def.Greeting,
			OnTranscript: func(role, text string, final bool) {
				if jc.Room != nil {
					jc.Room.LocalParticipant().PublishTranscript(role, text, final)
				}
				if final {
					emit(hub.EventTranscript, hub.TranscriptData{Role: role, Text: text})
				}
			},
			OnToolResult: func(call voice.ToolCall, res voice.ToolResult) {
				emit(hub.EventToolResult, hub.ToolResultData{Tool: call.Name, Args: call.Arguments, Result: res.Result})
			},
		}

		if jc.Room != nil {
			opts.OnAudio = func(pcm16 []byte) {
				if err := jc.Room.LocalParticipant().PublishAudio(pcm16); err != nil {
					sess.Logger.Debug("publish audio", "error", err)
				}
			}
			if in, ok := rt.(voice.AudioInput); ok {
				jc.Room.OnAudio(func(from string, pcm16 []byte) {
					if err := in.SendAudio(pcm16); err != nil {
						sess.Logger.Debug("send audio", "from", from, "error", err)
					}
				})
			}
			if in, ok := rt.(voice.TextInput); ok {
				jc.Room.OnText(func(from, text string) {
					if err := in.SendText(ctx, text); err != nil {
						sess.Logger.Warn("send text", "from", from, "error", err)
					}
				})
			}
		}

		if err := rt.Start(ctx, opts); err != nil {
			rt.Close()
			return fmt.Errorf("worker: starting runtime: %w", err)
		}

		if cfg.Sessions != nil && roomName != "" {
			cfg.Sessions.Add(roomName, sess)
			jc.AddShutdownCallback(func(context.Context) { cfg.Sessions.Remove(roomName, sess) })
		}

		go func() {
			select {
			case <-rt.Done():
				jc.Shutdown("runtime ended")
			case <-ctx.Done():
			}
		}()

		sess.Logger.Info("session started", "tools", len(sess.Tools()))
		emit(hub.EventSessionStarted, map[string]any{"tools": len(sess.Tools())})
		return nil
	}
}
