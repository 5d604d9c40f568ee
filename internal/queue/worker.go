package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

// ErrPoolClosed is returned by Enqueue after Stop
var ErrPoolClosed = errors.New("worker pool is stopped")

// Ledger persists job state; *storage.MetadataDB implements it
type Ledger interface {
	CreateJob(id, recordID, phase, status string) error
	UpdateStatus(id, status, errText string) error
	SetBackendJobID(id, backendJobID string) error
	SetOutputPath(id, path string) error
}

// WorkerPool manages a pool of workers processing record jobs. Distinct
// records run in parallel; jobs for the same record never overlap.
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	pipeline    *Pipeline
	ledger      Ledger
	hub         *Hub
	locks       *KeyedMutex
	log         logrus.FieldLogger

	sendMu sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	jobsMu sync.RWMutex
	jobs   map[string]*Job
	order  []string
}

// NewWorkerPool creates a new worker pool. ledger and hub may be nil.
func NewWorkerPool(workerCount int, pipeline *Pipeline, ledger Ledger, hub *Hub, log logrus.FieldLogger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WorkerPool{
		jobQueue:    make(chan *Job, 100),
		workerCount: workerCount,
		pipeline:    pipeline,
		ledger:      ledger,
		hub:         hub,
		locks:       NewKeyedMutex(),
		log:         log.WithField("component", "queue"),
		jobs:        make(map[string]*Job),
	}
}

// Start launches the workers. Cancelling ctx aborts in-flight backend polling;
// jobs still queued then fail without doing any work.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Infof("Starting worker pool with %d workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop closes the queue and waits for every queued job to finish
func (wp *WorkerPool) Stop() {
	wp.sendMu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.jobQueue)
	}
	wp.sendMu.Unlock()
	wp.wg.Wait()
	wp.log.Info("Worker pool stopped")
}

// Enqueue records the job and hands it to the workers. It blocks while the
// queue is full.
func (wp *WorkerPool) Enqueue(job *Job) error {
	if !types.ValidPhase(job.Phase) {
		return errors.Errorf("invalid phase %q", job.Phase)
	}

	wp.sendMu.RLock()
	defer wp.sendMu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	job.Status = types.StatusQueued
	job.UpdatedAt = time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	wp.jobsMu.Lock()
	wp.jobs[job.ID] = job
	wp.order = append(wp.order, job.ID)
	wp.jobsMu.Unlock()

	if wp.ledger != nil {
		if err := wp.ledger.CreateJob(job.ID, job.RecordID, job.Phase, job.Status); err != nil {
			wp.log.WithError(err).WithField("job_id", job.ID).Warn("Failed to record job")
		}
	}
	wp.publish(*job, "")

	wp.jobQueue <- job
	wp.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"record_id": job.RecordID,
		"phase":     job.Phase,
	}).Info("Job enqueued")
	return nil
}

// Get returns a snapshot of one job
func (wp *WorkerPool) Get(id string) (Job, bool) {
	wp.jobsMu.RLock()
	defer wp.jobsMu.RUnlock()
	j, ok := wp.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Jobs returns snapshots of every job in enqueue order
func (wp *WorkerPool) Jobs() []Job {
	wp.jobsMu.RLock()
	defer wp.jobsMu.RUnlock()
	out := make([]Job, 0, len(wp.order))
	for _, id := range wp.order {
		out = append(out, *wp.jobs[id])
	}
	return out
}

// QueueLength returns the number of jobs waiting for a worker
func (wp *WorkerPool) QueueLength() int {
	return len(wp.jobQueue)
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log := wp.log.WithField("worker", id)
	log.Debug("Worker started")

	for job := range wp.jobQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("job_id", job.ID).Errorf("PANIC processing job: %v\n%s", r, string(debug.Stack()))
					wp.finish(job, types.StatusFailed, "", fmt.Errorf("worker panic: %v", r))
				}
			}()

			wp.processJob(ctx, log, job)
		}()
	}
}

// processJob runs the job's phases under the record's lock
func (wp *WorkerPool) processJob(ctx context.Context, log logrus.FieldLogger, job *Job) {
	log = log.WithFields(logrus.Fields{"job_id": job.ID, "record_id": job.RecordID, "phase": job.Phase})

	if err := ctx.Err(); err != nil {
		wp.finish(job, types.StatusFailed, "", errors.Wrap(err, "not started"))
		return
	}

	unlock := wp.locks.Lock(job.RecordID)
	defer unlock()

	log.Info("Processing record")
	wp.setStatus(job, types.StatusProcessing, "")

	var (
		path string
		err  error
	)

	if job.Phase == types.PhaseTranscribe || job.Phase == types.PhaseAll {
		path, err = wp.pipeline.Transcribe(ctx, job.RecordID, job.Force, wp.backendObserver(job))
		switch {
		case errors.Is(err, ErrAlreadyTranscribed) && job.Phase == types.PhaseTranscribe:
			log.WithField("path", path).Info("Skipping record, raw transcription exists")
			wp.finish(job, types.StatusSkipped, path, err)
			return
		case errors.Is(err, ErrAlreadyTranscribed):
			log.WithField("path", path).Debug("Raw transcription exists, assembling")
		case err != nil:
			log.WithError(err).Error("Transcription failed")
			wp.finish(job, types.StatusFailed, "", err)
			return
		}
	}

	if job.Phase == types.PhaseAssemble || job.Phase == types.PhaseAll {
		path, err = wp.pipeline.Assemble(ctx, job.RecordID)
		if err != nil {
			log.WithError(err).Warn("Skipping record")
			wp.finish(job, types.StatusFailed, "", err)
			return
		}
	}

	wp.finish(job, types.StatusCompleted, path, nil)
	log.WithField("path", path).Info("Job completed")
}

// backendObserver forwards backend status changes to the ledger and hub
func (wp *WorkerPool) backendObserver(job *Job) func(backendJobID, status string) {
	return func(backendJobID, status string) {
		wp.jobsMu.Lock()
		changed := backendJobID != "" && job.BackendJobID != backendJobID
		if changed {
			job.BackendJobID = backendJobID
		}
		job.UpdatedAt = time.Now()
		snap := *job
		wp.jobsMu.Unlock()

		if changed && wp.ledger != nil {
			if err := wp.ledger.SetBackendJobID(job.ID, backendJobID); err != nil {
				wp.log.WithError(err).WithField("job_id", job.ID).Warn("Failed to record backend job id")
			}
		}
		wp.publish(snap, status)
	}
}

func (wp *WorkerPool) setStatus(job *Job, status, errText string) Job {
	wp.jobsMu.Lock()
	job.Status = status
	job.Error = errText
	job.UpdatedAt = time.Now()
	snap := *job
	wp.jobsMu.Unlock()

	if wp.ledger != nil {
		if err := wp.ledger.UpdateStatus(job.ID, status, errText); err != nil {
			wp.log.WithError(err).WithField("job_id", job.ID).Warn("Failed to record job status")
		}
	}
	wp.publish(snap, "")
	return snap
}

func (wp *WorkerPool) finish(job *Job, status, path string, cause error) {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	if path != "" {
		wp.jobsMu.Lock()
		job.OutputPath = path
		wp.jobsMu.Unlock()
		if wp.ledger != nil {
			if err := wp.ledger.SetOutputPath(job.ID, path); err != nil {
				wp.log.WithError(err).WithField("job_id", job.ID).Warn("Failed to record output path")
			}
		}
	}
	wp.setStatus(job, status, errText)
}

func (wp *WorkerPool) publish(j Job, backendStatus string) {
	if wp.hub == nil {
		return
	}
	wp.hub.Publish(types.JobEvent{
		JobID:         j.ID,
		RecordID:      j.RecordID,
		Phase:         j.Phase,
		Status:        j.Status,
		BackendJobID:  j.BackendJobID,
		BackendStatus: backendStatus,
		Error:         j.Error,
		Timestamp:     j.UpdatedAt,
	})
}
