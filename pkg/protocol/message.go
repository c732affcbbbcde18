// Package protocol defines the messages exchanged between the server and room
// participants. The same JSON messages travel over websockets and over WebRTC
// data channels.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Participant → server
	TypeJoin  MessageType = "join"  // Identity announcement
	TypeAudio MessageType = "audio" // Microphone audio, when binary frames are unavailable
	TypeText  MessageType = "text"  // Typed user message

	// Server → participant
	TypeWelcome    MessageType = "welcome"    // Room membership after joining
	TypeSpeak      MessageType = "speak"      // Agent audio
	TypeTranscript MessageType = "transcript" // User or agent transcript
	TypeError      MessageType = "error"

	// Bidirectional
	TypeData MessageType = "data" // Pub/sub packet on a topic
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Participant → Server Message Types
// =============================================================================

// JoinData announces who a participant is
type JoinData struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
}

// AudioData contains participant or agent audio
type AudioData struct {
	Format     string `json:"format"`      // "pcm16"
	SampleRate int    `json:"sample_rate"` // e.g., 24000
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
}

// TextData contains a typed user message
type TextData struct {
	Text string `json:"text"`
}

// =============================================================================
// Server → Participant Message Types
// =============================================================================

// WelcomeData tells a participant which room it joined and who else is there
type WelcomeData struct {
	Room         string   `json:"room"`
	Identity     string   `json:"identity"`
	Participants []string `json:"participants"`
}

// TranscriptData carries a line of the conversation
type TranscriptData struct {
	Role  string `json:"role"` // "user" or "assistant"
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// ErrorData reports a problem with a participant's message
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// DataPacket is a pub/sub message. Payload must be valid JSON.
type DataPacket struct {
	Topic   string          `json:"topic"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
