package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher delivers a payload to every subscriber of topic in a room.
type Publisher interface {
	PublishData(ctx context.Context, topic string, payload []byte) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic string, payload []byte) error

// PublishData calls f.
func (f PublisherFunc) PublishData(ctx context.Context, topic string, payload []byte) error {
	return f(ctx, topic, payload)
}

// Result is the outcome of one publish.
type Result struct {
	Topic     string    `json:"topic"`
	Type      string    `json:"type"`
	Delivered bool      `json:"delivered"`
	Skipped   bool      `json:"skipped"`
	Bytes     int       `json:"bytes"`
	Err       error     `json:"-"`
	At        time.Time `json:"at"`
}

// Failed reports whether the publish was attempted and did not go through.
func (r Result) Failed() bool {
	return r.Err != nil
}

// MarshalJSON adds the error text under "error".
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Stats counts publish outcomes.
type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
}

// Sink publishes envelopes to a single topic of the bound room.
// It is safe for concurrent use.
type Sink struct {
	topic  string
	logger *slog.Logger

	mu        sync.RWMutex
	pub       Publisher
	observers []func(Result)

	published atomic.Uint64
	delivered atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// NewSink creates an unbound sink for topic.
func NewSink(topic string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		topic:  topic,
		logger: logger.With("topic", topic),
	}
}

// Topic returns the topic the sink publishes to.
func (s *Sink) Topic() string {
	return s.topic
}

// Bind attaches the room publisher. A nil publisher unbinds the sink.
func (s *Sink) Bind(p Publisher) {
	s.mu.Lock()
	s.pub = p
	s.mu.Unlock()
}

// Bound reports whether a publisher is attached.
func (s *Sink) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pub != nil
}

// OnResult registers an observer called after every publish.
func (s *Sink) OnResult(fn func(Result)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Publish encodes env and hands it to the bound publisher. When no room is
// bound the publish is skipped. Errors are logged at warn level and reported
// in the Result; they are never returned.
func (s *Sink) Publish(ctx context.Context, env Envelope) Result {
	res := Result{Topic: s.topic, Type: env.Type, At: time.Now()}

	s.mu.RLock()
	pub := s.pub
	observers := s.observers
	s.mu.RUnlock()

	s.published.Add(1)

	switch {
	case pub == nil:
		res.Skipped = true
		s.skipped.Add(1)
		s.logger.Debug("no room bound, skipping publish", "type", env.Type)

	default:
		payload, err := json.Marshal(env)
		if err == nil {
			res.Bytes = len(payload)
			err = safePublish(ctx, pub, s.topic, payload)
		}
		if err != nil {
			res.Err = err
			s.failed.Add(1)
			s.logger.Warn("failed to publish", "type", env.Type, "error", err)
		} else {
			res.Delivered = true
			s.delivered.Add(1)
		}
	}

	for _, fn := range observers {
		fn(res)
	}
	return res
}

// Stats returns the publish counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Published: s.published.Load(),
		Delivered: s.delivered.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
	}
}

func safePublish(ctx context.Context, pub Publisher, topic string, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broadcast: publisher panic: %v", r)
		}
	}()
	return pub.PublishData(ctx, topic, payload)
}
