package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/samber/lo"

	"github.com/teslashibe/aegis/pkg/camera"
	"github.com/teslashibe/aegis/pkg/command"
	"github.com/teslashibe/aegis/pkg/hub"
	"github.com/teslashibe/aegis/pkg/listen"
	"github.com/teslashibe/aegis/pkg/session"
)

// handleStatus returns the session state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleObjects returns the targets of the latest frame
func (s *Server) handleObjects(c *fiber.Ctx) error {
	return c.JSON(s.targets())
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Text string `json:"text"`
}

// CommandResponse reports what a command did.
type CommandResponse struct {
	Actions []string      `json:"actions"`
	Spoken  []string      `json:"spoken"`
	State   session.State `json:"state"`
}

// handleCommand runs an operator text command through the interpreter
func (s *Server) handleCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	text := listen.Normalize(req.Text)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}
	if !s.session.Active() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "session is shut down"})
	}

	actions := s.session.Handle(text, s.interp)
	s.AddLog("command", text)

	return c.JSON(CommandResponse{
		Actions: lo.Map(actions, func(a command.Action, _ int) string { return a.String() }),
		Spoken: lo.FilterMap(actions, func(a command.Action, _ int) (string, bool) {
			return a.Text, a.Text != ""
		}),
		State: s.session.Snapshot(),
	})
}

// handleGetLogs returns recent events
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// CameraResponse is the body of GET /api/camera.
type CameraResponse struct {
	Config  camera.Config `json:"config"`
	Presets []string      `json:"presets"`
}

// handleGetCamera returns camera settings and presets
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(CameraResponse{
		Config:  s.camera.GetConfig(),
		Presets: camera.PresetNames(),
	})
}

// handleUpdateCamera applies a partial camera update, e.g. {"preset":"low"}
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return fiber.ErrNotFound
	}
	var params map[string]any
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	s.AddLog("info", "camera settings updated")
	return c.JSON(s.camera.GetConfig())
}

// handleStatusWS streams status, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	data, err := json.Marshal(s.status())
	if err != nil {
		return
	}
	hub.NewClient(s.statusHub, c, hub.NewJSONMessage(data)).Run()
}

// handleLogsWS streams events, starting with the recent backlog
func (s *Server) handleLogsWS(c *websocket.Conn) {
	s.logsMu.RLock()
	backlog := lo.FilterMap(lo.Subset(s.logs, -32, 32), func(e LogEntry, _ int) (hub.Message, bool) {
		data, err := json.Marshal(e)
		return hub.NewJSONMessage(data), err == nil
	})
	s.logsMu.RUnlock()

	hub.NewClient(s.logHub, c, backlog...).Run()
}

// handleCameraWS streams JPEG frames
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
