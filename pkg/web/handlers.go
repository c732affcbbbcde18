package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-voiceform/internal/log"
	"github.com/teslashibe/go-voiceform/pkg/agent"
	"github.com/teslashibe/go-voiceform/pkg/hub"
	"github.com/teslashibe/go-voiceform/pkg/store"
	"github.com/teslashibe/go-voiceform/pkg/voice"
	"github.com/teslashibe/go-voiceform/pkg/worker"
)

// ToolInfo describes an available tool
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func notEnabled(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": what + " not enabled"})
}

// handleHealth reports liveness and a few counters
func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status": "ok",
		"agent":  s.deps.Agent.Name,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Rooms != nil {
		resp["rooms"] = s.deps.Rooms.Len()
	}
	if s.deps.Worker != nil {
		resp["jobs"] = len(s.deps.Worker.Jobs())
	}
	if s.deps.Journal != nil {
		resp["journal"] = s.deps.Journal.Connected()
	}
	return c.JSON(resp)
}

// handleListTools returns the tools of the configured agent
func (s *Server) handleListTools(c *fiber.Ctx) error {
	if s.deps.Agent.Tools == nil {
		return c.JSON([]ToolInfo{})
	}
	preview := agent.NewSession(s.deps.Agent, log.Discard())
	tools := preview.Tools()
	out := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolInfo{Name: t.Name, Description: t.Description, Parameters: t.Schema()})
	}
	return c.JSON(out)
}

func (s *Server) handleListOrders(c *fiber.Ctx) error {
	if s.deps.Orders == nil {
		return notEnabled(c, "orders")
	}
	orders, err := s.deps.Orders.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(orders)
}

func (s *Server) handleListCheckIns(c *fiber.Ctx) error {
	if s.deps.CheckIns == nil {
		return notEnabled(c, "check-ins")
	}
	entries, err := s.deps.CheckIns.Entries()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entries)
}

func (s *Server) handleLatestCheckIn(c *fiber.Ctx) error {
	if s.deps.CheckIns == nil {
		return notEnabled(c, "check-ins")
	}
	latest, err := s.deps.CheckIns.Latest()
	if errors.Is(err, store.ErrNoEntries) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(latest)
}

func (s *Server) handleListJobs(c *fiber.Ctx) error {
	if s.deps.Worker == nil {
		return c.JSON([]worker.JobInfo{})
	}
	return c.JSON(s.deps.Worker.Jobs())
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	if s.deps.Sessions == nil {
		return c.JSON([]string{})
	}
	return c.JSON(s.deps.Sessions.Rooms())
}

func (s *Server) session(c *fiber.Ctx) (*agent.Session, error) {
	if s.deps.Sessions == nil {
		return nil, worker.ErrNoSession
	}
	return s.deps.Sessions.Get(c.Params("room"))
}

// handleGetSession returns the record being filled in a room
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"id":      sess.ID,
		"agent":   sess.Def.Name,
		"record":  sess.Record,
		"missing": sess.Record.MissingLabels(),
		"history": sess.History(),
	})
}

// TriggerToolRequest is the request body for triggering a tool
type TriggerToolRequest struct {
	Args map[string]any `json:"args"`
}

// handleTriggerTool runs a tool against a room's session as if the model had
// called it
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}

	var req TriggerToolRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	name := c.Params("name")
	call := voice.ToolCall{ID: "manual-" + name, Name: name, Arguments: req.Args}
	res := sess.Dispatch(c.UserContext(), call)
	if errors.Is(res.Error, voice.ErrUnknownTool) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": res.Error.Error()})
	}

	s.logger.Info("manual tool call", "room", c.Params("room"), "tool", name)
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(hub.Event{
			Type:    hub.EventToolResult,
			Session: sess.ID,
			Agent:   sess.Def.Name,
			Room:    c.Params("room"),
			Data:    hub.ToolResultData{Tool: name, Args: req.Args, Result: res.Result},
		})
	}

	return c.JSON(fiber.Map{
		"tool":   name,
		"result": res.Result,
	})
}
