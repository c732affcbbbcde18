package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "text message",
			msgType: TypeText,
			data:    TextData{Text: "a large latte please"},
		},
		{
			name:    "join message",
			msgType: TypeJoin,
			data:    JoinData{Identity: "web-1"},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unencodable data",
			msgType: TypeData,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr bool
	}{
		{name: "ping", input: `{"type":"ping","ts":1}`, want: TypePing},
		{name: "missing type", input: `{"ts":1}`, wantErr: true},
		{name: "not json", input: `hello`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && msg.Type != tt.want {
				t.Errorf("Type = %v, want %v", msg.Type, tt.want)
			}
		})
	}
}

func TestDataMessage(t *testing.T) {
	payload := []byte(`{"type":"order_update","order":{"drinkType":"latte"}}`)

	msg, err := NewDataMessage("coffee-order", "agent", payload)
	if err != nil {
		t.Fatalf("NewDataMessage() error = %v", err)
	}

	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	pkt, err := parsed.GetDataPacket()
	if err != nil {
		t.Fatalf("GetDataPacket() error = %v", err)
	}
	if pkt.Topic != "coffee-order" || pkt.From != "agent" {
		t.Errorf("packet = %+v", pkt)
	}

	// The payload is embedded as JSON, not as an escaped string.
	var env map[string]any
	if err := json.Unmarshal(pkt.Payload, &env); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if env["type"] != "order_update" {
		t.Errorf("payload type = %v", env["type"])
	}

	if _, err := NewDataMessage("coffee-order", "agent", []byte("not json")); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("invalid payload error = %v", err)
	}
}

func TestAudioMessages(t *testing.T) {
	pcm := make([]byte, 960)
	for i := range pcm {
		pcm[i] = byte(i % 256)
	}

	for _, tt := range []struct {
		name string
		new  func([]byte, int) (*Message, error)
		typ  MessageType
	}{
		{"audio", NewAudioMessage, TypeAudio},
		{"speak", NewSpeakMessage, TypeSpeak},
	} {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := tt.new(pcm, 24000)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if msg.Type != tt.typ {
				t.Errorf("Type = %v, want %v", msg.Type, tt.typ)
			}
			audio, err := msg.GetAudioData()
			if err != nil {
				t.Fatalf("GetAudioData() error = %v", err)
			}
			if audio.SampleRate != 24000 || audio.Format != "pcm16" || audio.Channels != 1 {
				t.Errorf("audio = %+v", audio)
			}
			decoded, err := audio.Decode()
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(decoded) != len(pcm) {
				t.Errorf("Decoded length = %v, want %v", len(decoded), len(pcm))
			}
		})
	}
}

func TestWelcomeMessage(t *testing.T) {
	msg, err := NewWelcomeMessage("cafe", "web-1", nil)
	if err != nil {
		t.Fatalf("NewWelcomeMessage() error = %v", err)
	}
	w, err := msg.GetWelcomeData()
	if err != nil {
		t.Fatalf("GetWelcomeData() error = %v", err)
	}
	if w.Room != "cafe" || w.Identity != "web-1" || w.Participants == nil {
		t.Errorf("welcome = %+v", w)
	}
}

func TestTranscriptAndText(t *testing.T) {
	msg, _ := NewTranscriptMessage("assistant", "What size?", true)
	tr, err := msg.GetTranscriptData()
	if err != nil || tr.Role != "assistant" || !tr.Final {
		t.Errorf("transcript = %+v, %v", tr, err)
	}

	msg, _ = NewTextMessage("oat milk")
	txt, err := msg.GetTextData()
	if err != nil || txt.Text != "oat milk" {
		t.Errorf("text = %+v, %v", txt, err)
	}

	msg, _ = NewJoinMessage("web-1", "Sam")
	join, err := msg.GetJoinData()
	if err != nil || join.Identity != "web-1" || join.Name != "Sam" {
		t.Errorf("join = %+v, %v", join, err)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	// Create pong response
	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseDataNil(t *testing.T) {
	msg := &Message{Type: TypePing}
	var v PingData
	if err := msg.ParseData(&v); err != nil {
		t.Errorf("ParseData on empty data = %v", err)
	}
}
