package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/queue"
	"github.com/codebuildervaibhav/bot-transcripts/internal/storage"
	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

// maxBatch caps the ids accepted by one request
const maxBatch = 1000

// RecordsHandler enqueues pipeline jobs for record ids
type RecordsHandler struct {
	workerPool *queue.WorkerPool
	store      *storage.LocalStorage
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(workerPool *queue.WorkerPool, store *storage.LocalStorage) *RecordsHandler {
	return &RecordsHandler{workerPool: workerPool, store: store}
}

// RecordsRequest represents the request body
type RecordsRequest struct {
	IDs   []string `json:"ids"`
	Phase string   `json:"phase"`
	Force bool     `json:"force"`
}

// EnqueuedJob identifies one accepted job
type EnqueuedJob struct {
	JobID    string `json:"job_id"`
	RecordID string `json:"record_id"`
	Phase    string `json:"phase"`
}

// Enqueue handles POST /records
func (h *RecordsHandler) Enqueue(c *fiber.Ctx) error {
	var req RecordsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body", "ERR_INVALID_BODY")
	}

	if len(req.IDs) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "ids is required", "ERR_NO_IDS")
	}
	if len(req.IDs) > maxBatch {
		return errorJSON(c, fiber.StatusBadRequest, "Too many ids in one request", "ERR_TOO_MANY_IDS")
	}
	if req.Phase == "" {
		req.Phase = types.PhaseAll
	}
	if !types.ValidPhase(req.Phase) {
		return errorJSON(c, fiber.StatusBadRequest, "phase must be transcribe, assemble or all", "ERR_INVALID_PHASE")
	}
	for _, id := range req.IDs {
		if err := storage.ValidateID(id); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, err.Error(), "ERR_INVALID_ID")
		}
	}

	jobs := make([]EnqueuedJob, 0, len(req.IDs))
	for _, id := range req.IDs {
		job := queue.NewJob(id, req.Phase, req.Force)
		if err := h.workerPool.Enqueue(job); err != nil {
			logrus.WithError(err).WithField("record_id", id).Error("Failed to enqueue job")
			return errorJSON(c, fiber.StatusServiceUnavailable, "Worker pool is not accepting jobs", "ERR_POOL_CLOSED")
		}
		jobs = append(jobs, EnqueuedJob{JobID: job.ID, RecordID: id, Phase: req.Phase})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
		"jobs":   jobs,
	})
}

// List handles GET /records
func (h *RecordsHandler) List(c *fiber.Ctx) error {
	ids, err := h.store.ListRecordIDs()
	if err != nil {
		logrus.WithError(err).Error("Failed to list records")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list records", "ERR_LIST_FAILED")
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(fiber.Map{"records": ids})
}

func errorJSON(c *fiber.Ctx, status int, msg, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}
