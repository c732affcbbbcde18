package room

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-voiceform/pkg/protocol"
)

// wsParticipant is a participant connected over a websocket.
type wsParticipant struct {
	identity string
	conn     *websocket.Conn

	mu sync.Mutex
}

func (p *wsParticipant) Identity() string { return p.identity }
func (p *wsParticipant) Kind() Kind       { return KindWebSocket }

// Send writes msg as a text frame.
func (p *wsParticipant) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *wsParticipant) Close() error {
	return p.conn.Close()
}

// RegisterRoutes registers the participant websocket on a Fiber app.
func (m *Manager) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/rooms", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/rooms/:room", websocket.New(m.handleWebSocket))
}

// RegisterAPIRoutes registers room listing and RTC signalling routes.
func (m *Manager) RegisterAPIRoutes(api fiber.Router) {
	rooms := api.Group("/rooms")

	rooms.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"rooms": m.Rooms(),
			"stats": m.GetStats(),
		})
	})

	rooms.Get("/:room", func(c *fiber.Ctx) error {
		r, err := m.Get(c.Params("room"))
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(r.Info())
	})

	rooms.Post("/:room/rtc", m.handleOffer)
}

// handleWebSocket runs one websocket participant. Binary frames are PCM16
// audio; text frames are protocol messages.
func (m *Manager) handleWebSocket(c *websocket.Conn) {
	name := c.Params("room")
	identity := c.Query("identity")
	if identity == "" {
		identity = "web-" + uuid.New().String()[:8]
	}

	p := &wsParticipant{identity: identity, conn: c}
	r, err := m.Join(name, p)
	if err != nil {
		if msg, merr := protocol.NewErrorMessage(err.Error()); merr == nil {
			p.Send(msg)
		}
		m.logger.Warn("websocket join rejected", "room", name, "identity", identity, "error", err)
		return
	}
	defer m.Leave(r, identity)

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			m.logger.Debug("websocket read ended", "room", name, "identity", identity, "error", err)
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			r.packetsRecvd.Add(1)
			r.HandleAudio(identity, data)
		case websocket.TextMessage:
			r.handleMessage(p, data)
		}
	}
}
