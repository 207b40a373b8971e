// Package web serves the status feed: one websocket endpoint per topic
// plus JSON snapshot routes for the external bridge.
package web

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/parol-robotics/go-parol6/internal/log"
	"github.com/parol-robotics/go-parol6/pkg/executor"
	"github.com/parol-robotics/go-parol6/pkg/hub"
)

// Topics is the set of status feed topics, one hub each.
var Topics = []string{"status", "joints", "pose", "io", "gripper", "planning"}

// StateSource supplies the current robot snapshot for the REST routes.
type StateSource interface {
	Snapshot() executor.RobotState
}

// Server is the status-feed HTTP/websocket server.
type Server struct {
	app   *fiber.App
	addr  string
	state StateSource
	hubs  map[string]*hub.Hub
}

// NewServer builds the server. state may not be nil.
func NewServer(addr string, state StateSource) *Server {
	s := &Server{
		addr:  addr,
		state: state,
		hubs:  make(map[string]*hub.Hub, len(Topics)),
	}
	for _, topic := range Topics {
		s.hubs[topic] = hub.New(topic)
	}

	app := fiber.New(fiber.Config{
		AppName:               "parol6 status feed",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealthz)

	api := app.Group("/api")
	api.Get("/state", s.handleState)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:topic", websocket.New(s.handleTopicWS))

	s.app = app
	return s
}

// Run starts the hubs and serves until ctx is cancelled. Blocks.
func (s *Server) Run(ctx context.Context) error {
	for _, h := range s.hubs {
		go h.Run(ctx)
	}
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			log.Warn("web shutdown failed", "err", err)
		}
	}()
	log.Info("status feed listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Publish broadcasts a payload on the named topic. Unknown topics are
// dropped. Satisfies the commander's Publisher interface.
func (s *Server) Publish(topic string, v interface{}) {
	h, ok := s.hubs[topic]
	if !ok {
		return
	}
	if err := h.BroadcastJSON(v); err != nil {
		log.Warn("status encode failed", "topic", topic, "err", err)
	}
}

// Hub returns the hub for a topic, or nil.
func (s *Server) Hub(topic string) *hub.Hub {
	return s.hubs[topic]
}
