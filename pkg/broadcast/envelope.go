// Package broadcast mirrors session state to the frontend over a pub/sub
// data channel.
//
// Publishing is best-effort: a Sink never returns an error to its caller.
// The outcome of every publish is reported as a Result instead.
package broadcast

import (
	"github.com/teslashibe/go-voiceform/pkg/form"
)

// Topics used by the bundled agents.
const (
	TopicOrder   = "coffee-order"
	TopicCheckIn = "wellness-checkin"
)

// Envelope types.
const (
	TypeOrderUpdate     = "order_update"
	TypeOrderComplete   = "order_complete"
	TypeCheckInUpdate   = "checkin_update"
	TypeCheckInComplete = "checkin_complete"
)

// Envelope is the JSON message published on a topic:
//
//	{"type": "order_update", "order": {...}, "history": [...]}
//
// The record is stored under Key. History is omitted when nil.
type Envelope struct {
	Type    string
	Key     string
	Record  any
	History any
}

// MarshalJSON encodes the envelope with type first, then the record, then
// the history.
func (e Envelope) MarshalJSON() ([]byte, error) {
	pairs := []form.KV{
		{Key: "type", Value: e.Type},
		{Key: e.Key, Value: e.Record},
	}
	if e.History != nil {
		pairs = append(pairs, form.KV{Key: "history", Value: e.History})
	}
	return form.MarshalKV(pairs)
}
