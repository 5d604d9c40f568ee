package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/storage"
)

// TranscriptsHandler serves assembled documents
type TranscriptsHandler struct {
	store *storage.LocalStorage
}

// NewTranscriptsHandler creates a new transcripts handler
func NewTranscriptsHandler(store *storage.LocalStorage) *TranscriptsHandler {
	return &TranscriptsHandler{store: store}
}

// Get handles GET /transcripts/:id
func (h *TranscriptsHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := storage.ValidateID(id); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error(), "ERR_INVALID_ID")
	}

	doc, err := h.store.ReadOutput(id)
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Transcript not found", "ERR_NOT_FOUND")
	}
	if err != nil {
		logrus.WithError(err).WithField("record_id", id).Error("Failed to read transcript")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read transcript file", "ERR_READ_FAILED")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(doc)
}
