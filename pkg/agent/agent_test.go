package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/teslashibe/go-voiceform/internal/log"
	"github.com/teslashibe/go-voiceform/pkg/broadcast"
	"github.com/teslashibe/go-voiceform/pkg/form"
	"github.com/teslashibe/go-voiceform/pkg/voice"
)

var pizzaSchema = form.Schema{
	Name: "pizza",
	Fields: []form.Field{
		{Name: "crust", Label: "crust", Kind: form.Scalar, Required: true,
			Validator: form.Choice{Values: []string{"thin", "thick"}, Strict: true, Lower: true}},
		{Name: "toppings", Label: "toppings", Kind: form.List},
	},
}

func pizzaDefinition() Definition {
	return Definition{
		Name:        "pizza",
		Topic:       "pizza-order",
		RecordKey:   "pizza",
		UpdateType:  "pizza_update",
		WithHistory: true,
		Schema:      pizzaSchema,
		Tools: func(s *Session) []voice.Tool {
			return []voice.Tool{
				s.Setter(SetterSpec{
					Tool: "set_crust", Param: "crust", ParamDescription: "thin or thick", Field: "crust",
					Reply: func(v string) string { return "crust " + v },
				}),
				s.Adder(AdderSpec{
					Tool: "add_topping", Param: "topping", Field: "toppings",
					Reply: func(item string, added bool) string { return fmt.Sprintf("%s %v", item, added) },
				}),
				s.Action("done", "finish", func(ctx context.Context) string {
					if missing := s.Record.MissingLabels(); len(missing) > 0 {
						return MissingReply(missing)
					}
					return "ok"
				}),
			}
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Definition)
		wantErr bool
	}{
		{name: "valid", mutate: func(d *Definition) {}},
		{name: "no name", mutate: func(d *Definition) { d.Name = "" }, wantErr: true},
		{name: "no topic", mutate: func(d *Definition) { d.Topic = "" }, wantErr: true},
		{name: "no record key", mutate: func(d *Definition) { d.RecordKey = "" }, wantErr: true},
		{name: "no tools", mutate: func(d *Definition) { d.Tools = nil }, wantErr: true},
		{name: "empty schema", mutate: func(d *Definition) { d.Schema = form.Schema{} }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := pizzaDefinition()
			tt.mutate(&d)
			if err := d.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func dispatch(s *Session, name string, args map[string]any) string {
	return s.Dispatch(context.Background(), voice.ToolCall{Name: name, Arguments: args}).Result
}

func TestSetterAndAdder(t *testing.T) {
	s := NewSession(pizzaDefinition(), log.Discard())

	if got := dispatch(s, "set_crust", map[string]any{"crust": "THIN"}); got != "crust thin" {
		t.Errorf("set_crust = %q", got)
	}
	if got := dispatch(s, "set_crust", map[string]any{"crust": "stuffed"}); got != "Sorry, that's not an option for the crust. Please choose thin or thick." {
		t.Errorf("strict reject = %q", got)
	}
	if got := dispatch(s, "set_crust", map[string]any{}); !strings.Contains(got, "didn't catch the crust") {
		t.Errorf("missing arg = %q", got)
	}
	if s.Record.Value("crust") != "thin" {
		t.Error("rejected values must not change the record")
	}

	if got := dispatch(s, "add_topping", map[string]any{"topping": " basil "}); got != "basil true" {
		t.Errorf("add = %q", got)
	}
	if got := dispatch(s, "add_topping", map[string]any{"topping": "basil"}); got != "basil false" {
		t.Errorf("duplicate add = %q", got)
	}
}

func TestMissingReply(t *testing.T) {
	s := NewSession(pizzaDefinition(), log.Discard())
	if got := dispatch(s, "done", nil); got != "I still need to know: crust. Can you provide that information?" {
		t.Errorf("done = %q", got)
	}
}

func TestBroadcastOnMutation(t *testing.T) {
	s := NewSession(pizzaDefinition(), log.Discard())

	var got []string
	s.Sink.Bind(broadcast.PublisherFunc(func(ctx context.Context, topic string, payload []byte) error {
		got = append(got, string(payload))
		return nil
	}))

	dispatch(s, "set_crust", map[string]any{"crust": "thick"})
	dispatch(s, "set_crust", map[string]any{"crust": ""})

	if len(got) != 1 {
		t.Fatalf("rejected values should not broadcast, got %d payloads", len(got))
	}
	want := `{"type":"pizza_update","pizza":{"crust":"thick","toppings":[]},"history":[]}`
	if got[0] != want {
		t.Errorf("payload = %s", got[0])
	}
}

func TestBroadcastFailureIsObservable(t *testing.T) {
	s := NewSession(pizzaDefinition(), log.Discard())
	s.Sink.Bind(broadcast.PublisherFunc(func(ctx context.Context, topic string, payload []byte) error {
		return errors.New("room closed")
	}))

	var results []broadcast.Result
	s.Sink.OnResult(func(r broadcast.Result) { results = append(results, r) })

	if got := dispatch(s, "set_crust", map[string]any{"crust": "thin"}); got != "crust thin" {
		t.Errorf("tool should succeed despite broadcast failure, got %q", got)
	}
	if len(results) != 1 || !results[0].Failed() {
		t.Errorf("results = %+v", results)
	}
	if s.Sink.Stats().Failed != 1 {
		t.Errorf("stats = %+v", s.Sink.Stats())
	}
}

func TestHistoryAndReset(t *testing.T) {
	s := NewSession(pizzaDefinition(), log.Discard())

	if h := s.History(); h == nil || len(h) != 0 {
		t.Errorf("History() = %v", h)
	}
	s.AppendHistory("first")
	dispatch(s, "set_crust", map[string]any{"crust": "thin"})

	s.Reset()
	if len(s.History()) != 0 || !s.Record.IsEmpty() {
		t.Error("Reset should clear the record and the history")
	}
}

func TestConcurrentSessions(t *testing.T) {
	def := pizzaDefinition()
	var wg sync.WaitGroup
	sessions := make([]*Session, 10)
	for i := range sessions {
		sessions[i] = NewSession(def, log.Discard())
	}
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				dispatch(s, "add_topping", map[string]any{"topping": fmt.Sprintf("t%d", i)})
			}
		}(i, s)
	}
	wg.Wait()

	for i, s := range sessions {
		got := s.Record.List("toppings")
		if len(got) != 1 || got[0] != fmt.Sprintf("t%d", i) {
			t.Errorf("session %d toppings = %v", i, got)
		}
	}
}
