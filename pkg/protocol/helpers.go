package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ErrInvalidPayload is returned when a data packet payload is not JSON.
var ErrInvalidPayload = errors.New("protocol: data payload is not valid JSON")

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewDataMessage creates a pub/sub data message
func NewDataMessage(topic, from string, payload []byte) (*Message, error) {
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}
	return NewMessage(TypeData, DataPacket{
		Topic:   topic,
		From:    from,
		Payload: json.RawMessage(payload),
	})
}

// NewAudioMessage creates a microphone audio message
func NewAudioMessage(pcmData []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeAudio, AudioData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
	})
}

// NewSpeakMessage creates a speak message with agent audio
func NewSpeakMessage(pcmData []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeSpeak, AudioData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
	})
}

// NewTextMessage creates a typed user message
func NewTextMessage(text string) (*Message, error) {
	return NewMessage(TypeText, TextData{Text: text})
}

// NewJoinMessage creates a join message
func NewJoinMessage(identity, name string) (*Message, error) {
	return NewMessage(TypeJoin, JoinData{Identity: identity, Name: name})
}

// NewWelcomeMessage creates a welcome message
func NewWelcomeMessage(room, identity string, participants []string) (*Message, error) {
	if participants == nil {
		participants = []string{}
	}
	return NewMessage(TypeWelcome, WelcomeData{
		Room:         room,
		Identity:     identity,
		Participants: participants,
	})
}

// NewTranscriptMessage creates a transcript message
func NewTranscriptMessage(role, text string, final bool) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{Role: role, Text: text, Final: final})
}

// NewErrorMessage creates an error message
func NewErrorMessage(msg string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: msg})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetDataPacket extracts a data packet from a message
func (m *Message) GetDataPacket() (*DataPacket, error) {
	var data DataPacket
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAudioData extracts audio data from a message
func (m *Message) GetAudioData() (*AudioData, error) {
	var data AudioData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Decode decodes the base64 audio data
func (a *AudioData) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// GetTextData extracts a typed message
func (m *Message) GetTextData() (*TextData, error) {
	var data TextData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetJoinData extracts join data from a message
func (m *Message) GetJoinData() (*JoinData, error) {
	var data JoinData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetWelcomeData extracts welcome data from a message
func (m *Message) GetWelcomeData() (*WelcomeData, error) {
	var data WelcomeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTranscriptData extracts transcript data from a message
func (m *Message) GetTranscriptData() (*TranscriptData, error) {
	var data TranscriptData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
