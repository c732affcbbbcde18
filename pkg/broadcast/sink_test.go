package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/teslashibe/go-voiceform/internal/log"
	"github.com/teslashibe/go-voiceform/pkg/form"
)

type recorder struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (r *recorder) PublishData(ctx context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return nil
}

func TestEnvelopeMarshal(t *testing.T) {
	rec := form.New(form.OrderSchema)
	rec.Set(form.FieldDrinkType, "latte")

	data, err := json.Marshal(Envelope{
		Type:    TypeOrderUpdate,
		Key:     "order",
		Record:  rec,
		History: []string{},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	want := `{"type":"order_update","order":{"drinkType":"latte","size":null,"milk":null,"extras":[],"name":null},"history":[]}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func TestEnvelopeWithoutHistory(t *testing.T) {
	data, _ := json.Marshal(Envelope{Type: TypeCheckInUpdate, Key: "checkin", Record: form.New(form.CheckInSchema)})
	if strings.Contains(string(data), "history") {
		t.Errorf("check-in envelope should not carry history: %s", data)
	}
	if !strings.HasPrefix(string(data), `{"type":"checkin_update","checkin":{`) {
		t.Errorf("unexpected envelope: %s", data)
	}
}

func TestPublishUnboundIsSkipped(t *testing.T) {
	s := NewSink(TopicOrder, log.Discard())

	res := s.Publish(context.Background(), Envelope{Type: TypeOrderUpdate, Key: "order"})
	if !res.Skipped || res.Delivered || res.Failed() {
		t.Errorf("unexpected result %+v", res)
	}
	if st := s.Stats(); st.Skipped != 1 || st.Published != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestPublishDelivers(t *testing.T) {
	r := &recorder{}
	s := NewSink(TopicCheckIn, log.Discard())
	s.Bind(r)

	res := s.Publish(context.Background(), Envelope{Type: TypeCheckInUpdate, Key: "checkin", Record: map[string]string{"mood": "good"}})
	if !res.Delivered || res.Bytes == 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(r.topics) != 1 || r.topics[0] != TopicCheckIn {
		t.Errorf("topics = %v", r.topics)
	}

	var got map[string]any
	if err := json.Unmarshal(r.payloads[0], &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["type"] != TypeCheckInUpdate {
		t.Errorf("type = %v", got["type"])
	}
}

func TestPublishErrorIsSwallowed(t *testing.T) {
	s := NewSink(TopicOrder, log.Discard())
	s.Bind(&recorder{err: errors.New("room closed")})

	var observed []Result
	s.OnResult(func(r Result) { observed = append(observed, r) })

	res := s.Publish(context.Background(), Envelope{Type: TypeOrderComplete, Key: "order"})
	if !res.Failed() || res.Delivered {
		t.Fatalf("expected failure, got %+v", res)
	}
	if len(observed) != 1 || observed[0].Err == nil {
		t.Errorf("observer should see the failure, got %+v", observed)
	}
	if st := s.Stats(); st.Failed != 1 {
		t.Errorf("stats = %+v", st)
	}

	data, _ := json.Marshal(res)
	if !strings.Contains(string(data), `"error":"room closed"`) {
		t.Errorf("result JSON should carry the error: %s", data)
	}
}

func TestPublishRecoversFromPanic(t *testing.T) {
	s := NewSink(TopicOrder, log.Discard())
	s.Bind(PublisherFunc(func(ctx context.Context, topic string, payload []byte) error {
		panic("boom")
	}))

	res := s.Publish(context.Background(), Envelope{Type: TypeOrderUpdate, Key: "order"})
	if !res.Failed() {
		t.Error("a panicking publisher should be reported as a failure")
	}
}

func TestUnbind(t *testing.T) {
	s := NewSink(TopicOrder, log.Discard())
	s.Bind(&recorder{})
	if !s.Bound() {
		t.Fatal("expected bound")
	}
	s.Bind(nil)
	if s.Bound() {
		t.Error("expected unbound")
	}
}
