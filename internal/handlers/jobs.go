package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/queue"
	"github.com/codebuildervaibhav/bot-transcripts/internal/storage"
)

// JobStore reads the persisted job ledger; *storage.MetadataDB implements it
type JobStore interface {
	GetJob(id string) (*storage.JobRecord, error)
	ListJobs(limit int) ([]storage.JobRecord, error)
}

// JobsHandler reports job status. Live jobs come from the pool; older ones
// from the ledger, when there is one.
type JobsHandler struct {
	workerPool *queue.WorkerPool
	ledger     JobStore
}

// NewJobsHandler creates a new jobs handler; ledger may be nil
func NewJobsHandler(workerPool *queue.WorkerPool, ledger JobStore) *JobsHandler {
	return &JobsHandler{workerPool: workerPool, ledger: ledger}
}

// List handles GET /jobs
func (h *JobsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	if h.ledger == nil {
		jobs := h.workerPool.Jobs()
		if len(jobs) > limit {
			jobs = jobs[len(jobs)-limit:]
		}
		return c.JSON(jobs)
	}

	jobs, err := h.ledger.ListJobs(limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to list jobs")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list jobs", "ERR_LIST_FAILED")
	}
	return c.JSON(jobs)
}

// Get handles GET /jobs/:id
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	if job, ok := h.workerPool.Get(id); ok {
		return c.JSON(job)
	}

	if h.ledger != nil {
		rec, err := h.ledger.GetJob(id)
		if err == nil {
			return c.JSON(rec)
		}
		if !errors.Is(err, storage.ErrJobNotFound) {
			logrus.WithError(err).WithField("job_id", id).Error("Failed to read job")
			return errorJSON(c, fiber.StatusInternalServerError, "Failed to read job", "ERR_READ_FAILED")
		}
	}

	return errorJSON(c, fiber.StatusNotFound, "Job not found", "ERR_NOT_FOUND")
}
