package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/bot-transcripts/internal/logging"
	"github.com/codebuildervaibhav/bot-transcripts/internal/queue"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles GET /health
func HealthHandler(workerPool *queue.WorkerPool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"version":   Version,
			"queued":    workerPool.QueueLength(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LogsHandler handles GET /logs
func LogsHandler(buffer *logging.LogBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": buffer.GetLogs(),
		})
	}
}
