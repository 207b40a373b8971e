package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/parol-robotics/go-parol6/pkg/hub"
)

// handleHealthz reports liveness plus the loop frequency so a probe can
// tell a wedged control loop from a healthy one.
func (s *Server) handleHealthz(c *fiber.Ctx) error {
	st := s.state.Snapshot()
	return c.JSON(fiber.Map{
		"ok":      true,
		"phase":   string(st.Phase),
		"loop_hz": st.LoopHz,
	})
}

// handleState returns the full robot snapshot.
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.state.Snapshot())
}

// handleTopicWS subscribes the connection to its topic's hub.
func (s *Server) handleTopicWS(conn *websocket.Conn) {
	topic := conn.Params("topic")
	h, ok := s.hubs[topic]
	if !ok {
		conn.WriteMessage(websocket.CloseMessage, []byte{})
		conn.Close()
		return
	}
	client := hub.NewClient(h, conn)
	client.Run()
}
