// Package agent runs the tool side of a form-filling conversation.
//
// A Definition describes one agent: its record schema, the topic its state is
// mirrored on, its instructions and its tools. A Session holds the state of
// one conversation with that agent. Nothing here is package-global, so any
// number of sessions can run in the same process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-voiceform/pkg/broadcast"
	"github.com/teslashibe/go-voiceform/pkg/form"
	"github.com/teslashibe/go-voiceform/pkg/voice"
)

// Definition describes an agent.
type Definition struct {
	// Name identifies the agent, e.g. "barista".
	Name string

	// Topic is the data channel topic state is mirrored on.
	Topic string

	// RecordKey is the envelope key holding the record, e.g. "order".
	RecordKey string

	// UpdateType and CompleteType are the envelope types for mutations and
	// for completion.
	UpdateType   string
	CompleteType string

	Schema form.Schema

	// WithHistory includes the session's completed records in every envelope.
	WithHistory bool

	// Greeting asks the model to speak first. Optional.
	Greeting string

	// Instructions builds the system prompt at session start.
	Instructions func(ctx context.Context) string

	// Tools returns the tools bound to one session.
	Tools func(s *Session) []voice.Tool

	// FollowUp asks for the next field after a successful update. next is
	// the record's first unset field; pending is false once nothing is left
	// to prompt for. Optional.
	FollowUp func(s *Session, next form.Field, pending bool) string
}

// Validate checks that the definition can start a session.
func (d Definition) Validate() error {
	switch {
	case d.Name == "":
		return errors.New("agent: definition has no name")
	case d.Topic == "":
		return fmt.Errorf("agent: %s: no topic", d.Name)
	case d.RecordKey == "":
		return fmt.Errorf("agent: %s: no record key", d.Name)
	case d.Tools == nil:
		return fmt.Errorf("agent: %s: no tools", d.Name)
	case len(d.Schema.Fields) == 0:
		return fmt.Errorf("agent: %s: empty schema", d.Name)
	}
	return nil
}

// Session is one conversation: the record being filled, the completed
// records so far and the sink that mirrors them.
type Session struct {
	ID     string
	Def    Definition
	Record *form.Record
	Sink   *broadcast.Sink
	Logger *slog.Logger

	// Now is the clock used to stamp completed records.
	Now func() time.Time

	tools *voice.Toolset

	mu      sync.Mutex
	history []any
}

// NewSession creates a session with an all-unset record. The sink starts
// unbound; bind it once the room is known.
func NewSession(def Definition, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	logger = logger.With("agent", def.Name, "session", id)

	s := &Session{
		ID:     id,
		Def:    def,
		Record: form.New(def.Schema),
		Sink:   broadcast.NewSink(def.Topic, logger),
		Logger: logger,
		Now:    time.Now,
	}
	s.tools = voice.NewToolset(def.Tools(s)...)
	return s
}

// Tools returns the session's tools in registration order.
func (s *Session) Tools() []voice.Tool {
	return s.tools.List()
}

// Dispatch runs a tool call against this session.
func (s *Session) Dispatch(ctx context.Context, call voice.ToolCall) voice.ToolResult {
	return s.tools.Dispatch(ctx, call)
}

// Instructions returns the system prompt for this session.
func (s *Session) Instructions(ctx context.Context) string {
	if s.Def.Instructions == nil {
		return ""
	}
	return s.Def.Instructions(ctx)
}

// Reset clears the record and the history.
func (s *Session) Reset() {
	s.Record.Reset()
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// AppendHistory records a completed record.
func (s *Session) AppendHistory(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, v)
}

// History returns the completed records, oldest first. Never nil.
func (s *Session) History() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.history))
	copy(out, s.history)
	return out
}

// Envelope wraps record for the session's topic.
func (s *Session) Envelope(typ string, record any) broadcast.Envelope {
	env := broadcast.Envelope{Type: typ, Key: s.Def.RecordKey, Record: record}
	if s.Def.WithHistory {
		env.History = s.History()
	}
	return env
}

// Broadcast publishes the current record.
func (s *Session) Broadcast(ctx context.Context, typ string) broadcast.Result {
	return s.Sink.Publish(ctx, s.Envelope(typ, s.Record))
}

// BroadcastRecord publishes record in place of the current one.
func (s *Session) BroadcastRecord(ctx context.Context, typ string, record any) broadcast.Result {
	return s.Sink.Publish(ctx, s.Envelope(typ, record))
}

// Set stores one scalar field and broadcasts the update.
func (s *Session) Set(ctx context.Context, field, raw string) (string, error) {
	v, err := s.Record.Set(field, raw)
	if err != nil {
		s.Logger.Info("field rejected", "field", field, "value", raw, "error", err)
		return "", err
	}
	s.Logger.Info("field set", "field", field, "value", v)
	s.Broadcast(ctx, s.Def.UpdateType)
	return v, nil
}

// Add appends to a list field unless already present and broadcasts the
// update either way.
func (s *Session) Add(ctx context.Context, field, raw string) (bool, error) {
	added, err := s.Record.Add(field, raw)
	if err != nil {
		s.Logger.Info("item rejected", "field", field, "value", raw, "error", err)
		return false, err
	}
	s.Logger.Info("item added", "field", field, "value", strings.TrimSpace(raw), "added", added, "items", s.Record.List(field))
	s.Broadcast(ctx, s.Def.UpdateType)
	return added, nil
}

// FollowUp returns the prompt for the next unset field, or "" when the
// definition has none.
func (s *Session) FollowUp() string {
	if s.Def.FollowUp == nil {
		return ""
	}
	next, pending := s.Record.NextUnset()
	return s.Def.FollowUp(s, next, pending)
}

// withFollowUp appends the follow-up prompt to an acknowledgement.
func (s *Session) withFollowUp(ack string) string {
	if q := s.FollowUp(); q != "" {
		return ack + " " + q
	}
	return ack
}

// MissingReply asks for the required fields that are still unset.
func MissingReply(labels []string) string {
	return fmt.Sprintf("I still need to know: %s. Can you provide that information?", strings.Join(labels, ", "))
}

// RejectReply asks the user to repeat a value that could not be stored.
func RejectReply(f form.Field, err error) string {
	if errors.Is(err, form.ErrNotAllowed) {
		if c, ok := f.Validator.(form.Choice); ok {
			return fmt.Sprintf("Sorry, that's not an option for the %s. Please choose %s.", f.Label, c.Describe())
		}
	}
	return fmt.Sprintf("Sorry, I didn't catch the %s. Could you say that again?", f.Label)
}
