package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-voiceform/pkg/protocol"
)

// DataChannelLabel is the data channel RTC participants must open.
const DataChannelLabel = "data"

// ErrBadOffer is returned for a malformed SDP offer.
var ErrBadOffer = errors.New("room: bad offer")

// Offer is the body of POST /api/rooms/:room/rtc.
type Offer struct {
	Type     string `json:"type"`
	SDP      string `json:"sdp"`
	Identity string `json:"identity,omitempty"`
}

// Answer is the response to an Offer.
type Answer struct {
	Type     string `json:"type"`
	SDP      string `json:"sdp"`
	Identity string `json:"identity"`
}

// rtcParticipant is a participant connected over a WebRTC data channel.
// It joins the room when the channel opens.
type rtcParticipant struct {
	identity string
	pc       *webrtc.PeerConnection

	mu   sync.Mutex
	dc   *webrtc.DataChannel
	room *Room

	leaveOnce sync.Once
}

func (p *rtcParticipant) Identity() string { return p.identity }
func (p *rtcParticipant) Kind() Kind       { return KindRTC }

// Send writes msg as a text message on the data channel.
func (p *rtcParticipant) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil {
		return ErrClosed
	}
	return dc.SendText(string(data))
}

func (p *rtcParticipant) Close() error {
	return p.pc.Close()
}

func (p *rtcParticipant) joined() *Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

// Answer negotiates a peer connection for an RTC participant of the named
// room and returns the complete SDP answer. ICE candidates are gathered
// before returning, so no trickle signalling is needed.
func (m *Manager) Answer(ctx context.Context, roomName string, offer Offer) (Answer, error) {
	if offer.SDP == "" || (offer.Type != "" && offer.Type != "offer") {
		return Answer{}, ErrBadOffer
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers})
	if err != nil {
		return Answer{}, fmt.Errorf("room: creating peer connection: %w", err)
	}

	identity := offer.Identity
	if identity == "" {
		identity = "rtc-" + uuid.New().String()[:8]
	}
	p := &rtcParticipant{identity: identity, pc: pc}
	logger := m.logger.With("room", roomName, "identity", identity)

	leave := func() {
		p.leaveOnce.Do(func() {
			if r := p.joined(); r != nil {
				m.Leave(r, identity)
			}
			pc.Close()
		})
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}

		dc.OnOpen(func() {
			p.mu.Lock()
			p.dc = dc
			p.mu.Unlock()

			r, err := m.Join(roomName, p)
			if err != nil {
				logger.Warn("rtc join rejected", "error", err)
				if msg, merr := protocol.NewErrorMessage(err.Error()); merr == nil {
					p.Send(msg)
				}
				pc.Close()
				return
			}
			p.mu.Lock()
			p.room = r
			p.mu.Unlock()
		})

		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			r := p.joined()
			if r == nil {
				return
			}
			if msg.IsString {
				r.handleMessage(p, msg.Data)
				return
			}
			r.packetsRecvd.Add(1)
			r.HandleAudio(identity, msg.Data)
		})

		dc.OnClose(func() { go leave() })
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			go leave()
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		pc.Close()
		return Answer{}, fmt.Errorf("%w: %v", ErrBadOffer, err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return Answer{}, fmt.Errorf("room: creating answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return Answer{}, fmt.Errorf("room: setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(m.gatherTimeout):
		pc.Close()
		return Answer{}, fmt.Errorf("room: ICE gathering timed out after %s", m.gatherTimeout)
	case <-ctx.Done():
		pc.Close()
		return Answer{}, ctx.Err()
	}

	logger.Info("rtc offer answered")
	return Answer{
		Type:     "answer",
		SDP:      pc.LocalDescription().SDP,
		Identity: identity,
	}, nil
}

func (m *Manager) handleOffer(c *fiber.Ctx) error {
	var offer Offer
	if err := c.BodyParser(&offer); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	answer, err := m.Answer(c.UserContext(), c.Params("room"), offer)
	if errors.Is(err, ErrBadOffer) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(answer)
}
