package handlers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/jsonsearch"
	"github.com/codebuildervaibhav/bot-transcripts/internal/queue"
	"github.com/codebuildervaibhav/bot-transcripts/internal/storage"
	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

// UploadHandler imports metadata documents sent as multipart uploads
type UploadHandler struct {
	workerPool *queue.WorkerPool
	store      *storage.LocalStorage
	maxSizeMB  int
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(workerPool *queue.WorkerPool, store *storage.LocalStorage, maxSizeMB int) *UploadHandler {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &UploadHandler{
		workerPool: workerPool,
		store:      store,
		maxSizeMB:  maxSizeMB,
	}
}

// Handle processes POST /records/upload. Form fields: file (the metadata
// document), id (defaults to the file name without extension) and phase
// (empty stores the document without enqueuing).
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "No file uploaded", "ERR_NO_FILE")
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB), "ERR_FILE_TOO_LARGE")
	}

	id := c.FormValue("id")
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(file.Filename), filepath.Ext(file.Filename))
	}

	f, err := file.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read upload", "ERR_READ_FAILED")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read upload", "ERR_READ_FAILED")
	}

	return importRecord(c, h.workerPool, h.store, id, data, c.FormValue("phase"), c.FormValue("force") == "true")
}

// importRecord stores a metadata document and optionally enqueues its job
func importRecord(c *fiber.Ctx, pool *queue.WorkerPool, store *storage.LocalStorage, id string, data []byte, phase string, force bool) error {
	if err := storage.ValidateID(id); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error(), "ERR_INVALID_ID")
	}
	if phase != "" && !types.ValidPhase(phase) {
		return errorJSON(c, fiber.StatusBadRequest, "phase must be transcribe, assemble or all", "ERR_INVALID_PHASE")
	}
	if _, err := jsonsearch.Decode(data); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Metadata is not valid JSON", "ERR_INVALID_JSON")
	}

	path, err := store.SaveMetadata(id, data)
	if err != nil {
		logrus.WithError(err).WithField("record_id", id).Error("Failed to save metadata")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to save file", "ERR_SAVE_FAILED")
	}
	log := logrus.WithFields(logrus.Fields{"record_id": id, "path": path})
	log.Info("Metadata imported")

	resp := fiber.Map{
		"record_id": id,
		"status":    "stored",
	}
	if phase != "" {
		job := queue.NewJob(id, phase, force)
		if err := pool.Enqueue(job); err != nil {
			log.WithError(err).Error("Failed to enqueue job")
			return errorJSON(c, fiber.StatusServiceUnavailable, "Worker pool is not accepting jobs", "ERR_POOL_CLOSED")
		}
		resp["job_id"] = job.ID
		resp["status"] = "queued"
	}
	return c.JSON(resp)
}
