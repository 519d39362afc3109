package jobs

import (
	"sync"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// Tracker is the in-memory registry of ISO generation jobs. It is the sole
// owner of job state; pollers and the coordinator go through its accessors
// and never hold live references. Jobs accumulate for the session lifetime.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*models.GenerationJob
}

// NewTracker creates an empty job tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*models.GenerationJob)}
}

// Add registers a new job with status pending and zero progress. An existing
// job with the same id is overwritten; callers generate unique ids.
func (t *Tracker) Add(jobID, buildID string, isDocker bool, containerID string) {
	message := "Waiting for remote backend"
	if isDocker {
		message = "Waiting for local container runtime"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.jobs[jobID] = &models.GenerationJob{
		ID:          jobID,
		BuildID:     buildID,
		Status:      models.JobStatusPending,
		Progress:    0,
		ContainerID: containerID,
		StartedAt:   time.Now(),
		Message:     message,
		IsDocker:    isDocker,
	}
}

// Update describes a partial job mutation. Nil fields are left untouched;
// the job is updated as one merged snapshot under the tracker lock.
type Update struct {
	Status      *models.JobStatus
	Progress    *int
	Message     *string
	ContainerID *string
}

// Apply merges the update into the tracked job. Unknown job ids are a no-op.
func (t *Tracker) Apply(jobID string, update Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return
	}

	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.Message != nil {
		job.Message = *update.Message
	}
	if update.ContainerID != nil {
		job.ContainerID = *update.ContainerID
	}
}

// Get returns a snapshot copy of the job, and whether it exists.
func (t *Tracker) Get(jobID string) (models.GenerationJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return models.GenerationJob{}, false
	}
	return *job, true
}

// All returns snapshot copies of every tracked job.
func (t *Tracker) All() []models.GenerationJob {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]models.GenerationJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		all = append(all, *job)
	}
	return all
}

// Active returns the reduced projection of jobs not yet terminal.
func (t *Tracker) Active() []models.ActiveJob {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var active []models.ActiveJob
	for _, job := range t.jobs {
		if job.Status.Terminal() {
			continue
		}
		active = append(active, models.ActiveJob{
			ID:        job.ID,
			BuildID:   job.BuildID,
			Status:    job.Status,
			Progress:  job.Progress,
			IsDocker:  job.IsDocker,
			StartedAt: job.StartedAt,
		})
	}
	return active
}

// Ptr helpers for building partial updates.

func StatusPtr(s models.JobStatus) *models.JobStatus { return &s }
func IntPtr(i int) *int                              { return &i }
func StringPtr(s string) *string                     { return &s }
