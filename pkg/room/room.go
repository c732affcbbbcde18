// Package room groups participants into named rooms and moves data packets,
// audio and transcripts between them and the agent.
//
// Browsers join over a websocket (/ws/rooms/:room) or over a WebRTC data
// channel negotiated with POST /api/rooms/:room/rtc. The agent side of a room
// is its LocalParticipant, whose PublishData satisfies broadcast.Publisher.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voiceform/pkg/audioio"
	"github.com/teslashibe/go-voiceform/pkg/protocol"
)

// Errors returned by rooms.
var (
	ErrRoomNotFound  = errors.New("room: not found")
	ErrClosed        = errors.New("room: closed")
	ErrIdentityTaken = errors.New("room: identity already in room")
)

// AgentIdentity is the identity of every room's local participant.
const AgentIdentity = "agent"

// Kind is how a participant is connected.
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindRTC       Kind = "rtc"
	KindTest      Kind = "test"
)

// Participant is a remote member of a room.
type Participant interface {
	Identity() string
	Kind() Kind
	Send(msg *protocol.Message) error
	Close() error
}

// ParticipantInfo describes a participant for the API.
type ParticipantInfo struct {
	Identity string    `json:"identity"`
	Kind     Kind      `json:"kind"`
	Joined   time.Time `json:"joined"`
}

// Info describes a room for the API.
type Info struct {
	Name            string            `json:"name"`
	Created         time.Time         `json:"created"`
	Participants    []ParticipantInfo `json:"participants"`
	PacketsSent     uint64            `json:"packets_sent"`
	PacketsReceived uint64            `json:"packets_received"`
}

type member struct {
	p      Participant
	joined time.Time
}

// Room is a named set of participants plus the agent.
type Room struct {
	name    string
	created time.Time
	logger  *slog.Logger
	local   *LocalParticipant

	mu           sync.RWMutex
	members      map[string]member
	closed       bool
	onAudio      []func(from string, pcm16 []byte)
	onText       []func(from, text string)
	sampleRate   int
	packetsSent  atomic.Uint64
	packetsRecvd atomic.Uint64
}

func newRoom(name string, logger *slog.Logger) *Room {
	r := &Room{
		name:       name,
		created:    time.Now(),
		logger:     logger.With("room", name),
		members:    make(map[string]member),
		sampleRate: 24000,
	}
	r.local = &LocalParticipant{room: r}
	return r
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// LocalParticipant returns the agent's handle on the room.
func (r *Room) LocalParticipant() *LocalParticipant {
	return r.local
}

// Len returns the number of remote participants.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Closed reports whether the room has been closed.
func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Participants returns the remote participants, oldest first.
func (r *Room) Participants() []ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ParticipantInfo, 0, len(r.members))
	for id, m := range r.members {
		out = append(out, ParticipantInfo{Identity: id, Kind: m.p.Kind(), Joined: m.joined})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Joined.Equal(out[j].Joined) {
			return out[i].Identity < out[j].Identity
		}
		return out[i].Joined.Before(out[j].Joined)
	})
	return out
}

// Info returns a snapshot of the room.
func (r *Room) Info() Info {
	return Info{
		Name:            r.name,
		Created:         r.created,
		Participants:    r.Participants(),
		PacketsSent:     r.packetsSent.Load(),
		PacketsReceived: r.packetsRecvd.Load(),
	}
}

// SetSampleRate sets the rate announced with agent audio. Participant audio
// messages at other rates are resampled to it; binary frames must already
// match.
func (r *Room) SetSampleRate(hz int) {
	r.mu.Lock()
	r.sampleRate = hz
	r.mu.Unlock()
}

// OnAudio registers a handler for participant audio.
func (r *Room) OnAudio(fn func(from string, pcm16 []byte)) {
	r.mu.Lock()
	r.onAudio = append(r.onAudio, fn)
	r.mu.Unlock()
}

// OnText registers a handler for typed participant messages.
func (r *Room) OnText(fn func(from, text string)) {
	r.mu.Lock()
	r.onText = append(r.onText, fn)
	r.mu.Unlock()
}

// join adds p and sends it the welcome message.
func (r *Room) join(p Participant) error {
	id := p.Identity()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if id == AgentIdentity {
		r.mu.Unlock()
		return ErrIdentityTaken
	}
	if _, ok := r.members[id]; ok {
		r.mu.Unlock()
		return ErrIdentityTaken
	}
	r.members[id] = member{p: p, joined: time.Now()}
	ids := make([]string, 0, len(r.members))
	for other := range r.members {
		ids = append(ids, other)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	r.logger.Info("participant joined", "identity", id, "kind", p.Kind(), "participants", len(ids))

	if msg, err := protocol.NewWelcomeMessage(r.name, id, ids); err == nil {
		if err := p.Send(msg); err != nil {
			r.logger.Warn("welcome failed", "identity", id, "error", err)
		}
	}
	return nil
}

// leave removes identity and returns how many participants remain.
func (r *Room) leave(identity string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[identity]; !ok {
		return len(r.members), false
	}
	delete(r.members, identity)
	r.logger.Info("participant left", "identity", identity, "participants", len(r.members))
	return len(r.members), true
}

// Publish sends a data packet to every participant except from and returns
// how many received it. Per-participant failures are joined into the error.
func (r *Room) Publish(ctx context.Context, topic, from string, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.Closed() {
		return 0, ErrClosed
	}
	msg, err := protocol.NewDataMessage(topic, from, payload)
	if err != nil {
		return 0, err
	}
	return r.sendAll(msg, from)
}

// Send delivers msg to every participant.
func (r *Room) Send(msg *protocol.Message) (int, error) {
	return r.sendAll(msg, "")
}

func (r *Room) sendAll(msg *protocol.Message, except string) (int, error) {
	r.mu.RLock()
	targets := make([]Participant, 0, len(r.members))
	for id, m := range r.members {
		if id != except {
			targets = append(targets, m.p)
		}
	}
	r.mu.RUnlock()

	var errs []error
	delivered := 0
	for _, p := range targets {
		if err := p.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("room: send to %s: %w", p.Identity(), err))
			continue
		}
		delivered++
		r.packetsSent.Add(1)
	}
	return delivered, errors.Join(errs...)
}

// HandleAudio passes participant audio to the audio handlers.
func (r *Room) HandleAudio(from string, pcm16 []byte) {
	r.mu.RLock()
	fns := r.onAudio
	r.mu.RUnlock()
	for _, fn := range fns {
		fn(from, pcm16)
	}
}

// HandleText passes a typed message to the text handlers.
func (r *Room) HandleText(from, text string) {
	r.mu.RLock()
	fns := r.onText
	r.mu.RUnlock()
	for _, fn := range fns {
		fn(from, text)
	}
}

// handleMessage processes a text frame from a participant.
func (r *Room) handleMessage(p Participant, data []byte) {
	r.packetsRecvd.Add(1)

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		r.logger.Debug("parse error", "identity", p.Identity(), "error", err)
		r.replyError(p, "invalid message")
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		pong, err := protocol.NewPongMessage("", msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			p.Send(pong)
		}

	case protocol.TypeAudio:
		audio, err := msg.GetAudioData()
		if err != nil {
			r.replyError(p, "invalid audio")
			return
		}
		pcm, err := audio.Decode()
		if err != nil {
			r.replyError(p, "invalid audio encoding")
			return
		}
		r.mu.RLock()
		rate := r.sampleRate
		r.mu.RUnlock()
		r.HandleAudio(p.Identity(), audioio.Normalize(pcm, audio.SampleRate, audio.Channels, rate))

	case protocol.TypeText:
		txt, err := msg.GetTextData()
		if err != nil || txt.Text == "" {
			r.replyError(p, "invalid text")
			return
		}
		r.HandleText(p.Identity(), txt.Text)

	case protocol.TypeData:
		pkt, err := msg.GetDataPacket()
		if err != nil || pkt.Topic == "" {
			r.replyError(p, "invalid data packet")
			return
		}
		if _, err := r.Publish(context.Background(), pkt.Topic, p.Identity(), pkt.Payload); err != nil {
			r.logger.Debug("relay failed", "identity", p.Identity(), "error", err)
		}

	case protocol.TypeJoin:
		// Identity is fixed at connect time.

	default:
		r.replyError(p, fmt.Sprintf("unsupported message type %q", msg.Type))
	}
}

func (r *Room) replyError(p Participant, text string) {
	if msg, err := protocol.NewErrorMessage(text); err == nil {
		p.Send(msg)
	}
}

// close disconnects every participant.
func (r *Room) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	members := r.members
	r.members = make(map[string]member)
	r.mu.Unlock()

	for _, m := range members {
		m.p.Close()
	}
}

// LocalParticipant is the agent's side of a room.
type LocalParticipant struct {
	room *Room
}

// Identity returns AgentIdentity.
func (l *LocalParticipant) Identity() string {
	return AgentIdentity
}

// PublishData sends payload on topic to every participant. It implements
// broadcast.Publisher.
func (l *LocalParticipant) PublishData(ctx context.Context, topic string, payload []byte) error {
	_, err := l.room.Publish(ctx, topic, AgentIdentity, payload)
	return err
}

// PublishAudio sends agent speech to every participant.
func (l *LocalParticipant) PublishAudio(pcm16 []byte) error {
	l.room.mu.RLock()
	rate := l.room.sampleRate
	l.room.mu.RUnlock()

	msg, err := protocol.NewSpeakMessage(pcm16, rate)
	if err != nil {
		return err
	}
	_, err = l.room.Send(msg)
	return err
}

// PublishTranscript sends a line of the conversation to every participant.
func (l *LocalParticipant) PublishTranscript(role, text string, final bool) error {
	msg, err := protocol.NewTranscriptMessage(role, text, final)
	if err != nil {
		return err
	}
	_, err = l.room.Send(msg)
	return err
}
