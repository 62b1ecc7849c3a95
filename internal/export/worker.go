package export

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"itemcore/internal/blob"
	"itemcore/pkg/domain"
)

// Status describes the lifecycle stage of an export job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// DefaultQueueSize bounds the number of pending jobs.
const DefaultQueueSize = 32

// ErrQueueFull is returned by Enqueue when the worker is saturated.
var ErrQueueFull = errors.New("export queue full")

// Job tracks one asynchronous export.
type Job struct {
	ID          string        `json:"id"`
	ContainerID domain.ItemID `json:"container_id"`
	RequestedBy string        `json:"requested_by,omitempty"`
	Status      Status        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Artifact    *blob.Info    `json:"artifact,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

func (j Job) copy() Job {
	dup := j
	if j.Artifact != nil {
		a := *j.Artifact
		a.Metadata = maps.Clone(j.Artifact.Metadata)
		dup.Artifact = &a
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}

// Worker runs exports off the request path.
type Worker struct {
	exporter *Exporter

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker returns a stopped worker with a queue of queueSize (DefaultQueueSize when <= 0).
func NewWorker(exporter *Exporter, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		exporter: exporter,
		queue:    make(chan string, queueSize),
		jobs:     make(map[string]*Job),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing queued jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the worker and waits for the running job, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue schedules an export of containerID and returns the queued job.
func (w *Worker) Enqueue(containerID domain.ItemID, requestedBy string) (Job, error) {
	if containerID == 0 {
		return Job{}, domain.ValidationError{Op: "export", ItemID: containerID, Reason: "container id required"}
	}
	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		ContainerID: containerID,
		RequestedBy: requestedBy,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[job.ID] = job
	queued := job.copy()
	w.mu.Unlock()

	select {
	case w.queue <- job.ID:
	default:
		w.mu.Lock()
		delete(w.jobs, job.ID)
		w.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	w.exporter.logger.Info("export queued", "job_id", job.ID, "container_id", containerID)
	return queued, nil
}

// Get returns a snapshot of job id.
func (w *Worker) Get(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

func (w *Worker) process(id string) {
	w.mu.Lock()
	job, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now().UTC()
	containerID := job.ContainerID
	w.mu.Unlock()

	info, err := w.exporter.Export(w.ctx, containerID)

	now := time.Now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err != nil {
		job.Status = StatusFailed
		job.Error = fmt.Sprintf("export %d: %v", containerID, err)
		w.exporter.logger.Warn("export failed", "job_id", id, "container_id", containerID, "error", err)
		return
	}
	job.Status = StatusSucceeded
	job.Artifact = &info
}
