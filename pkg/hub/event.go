package hub

import (
	"encoding/json"
	"time"
)

// EventType names an operator feed event.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"
	EventToolResult     EventType = "tool_result"
	EventBroadcast      EventType = "broadcast"
	EventTranscript     EventType = "transcript"
	EventUsage          EventType = "usage"
	EventJournal        EventType = "journal"
)

// Event is one line of the operator feed.
type Event struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	Session string    `json:"session,omitempty"`
	Agent   string    `json:"agent,omitempty"`
	Room    string    `json:"room,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// ToolResultData is the payload of EventToolResult.
type ToolResultData struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Result string         `json:"result"`
}

// TranscriptData is the payload of EventTranscript.
type TranscriptData struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// frame is an encoded event queued for a client.
type frame []byte

func encode(e Event) (frame, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return json.Marshal(e)
}
