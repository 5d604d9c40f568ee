package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

// Job runs one pipeline phase (or both) for one record
type Job struct {
	ID           string    `json:"id"`
	RecordID     string    `json:"record_id"`
	Phase        string    `json:"phase"`
	Force        bool      `json:"force,omitempty"`
	Status       string    `json:"status"`
	BackendJobID string    `json:"backend_job_id,omitempty"`
	OutputPath   string    `json:"output_path,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewJob creates a queued job with a fresh id
func NewJob(recordID, phase string, force bool) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		RecordID:  recordID,
		Phase:     phase,
		Force:     force,
		Status:    types.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Done reports whether the job reached a final status
func (j Job) Done() bool {
	switch j.Status {
	case types.StatusCompleted, types.StatusFailed, types.StatusSkipped:
		return true
	}
	return false
}
