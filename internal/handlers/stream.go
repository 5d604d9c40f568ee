package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/queue"
)

// StreamHandler streams job events over WebSocket as JSON text frames
type StreamHandler struct {
	hub *queue.Hub
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(hub *queue.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Upgrade rejects plain HTTP requests on the WebSocket route
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle processes GET /ws/jobs. The optional record_id query parameter
// limits the stream to one record.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	filter := c.Query("record_id")
	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	log := logrus.WithField("record_id", filter)
	log.Info("WebSocket job stream opened")

	// Reads only detect the client going away; inbound frames are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filter != "" && ev.RecordID != filter {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.WithError(err).Error("Failed to encode job event")
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("WebSocket write error")
				return
			}
		case <-closed:
			log.Info("WebSocket job stream closed")
			return
		}
	}
}
