package models

import "time"

// JobStatus represents the status of an ISO generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition happens from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// GenerationJob tracks one asynchronous ISO generation, either remote-API
// backed or local-container backed. Jobs accumulate for the lifetime of the
// process and are never deleted.
type GenerationJob struct {
	ID          string    `json:"id"`
	BuildID     string    `json:"build_id"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	ContainerID string    `json:"container_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Message     string    `json:"message,omitempty"`
	IsDocker    bool      `json:"is_docker"`
}

// ActiveJob is the reduced projection returned for job listings.
type ActiveJob struct {
	ID        string    `json:"id"`
	BuildID   string    `json:"build_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	IsDocker  bool      `json:"is_docker"`
	StartedAt time.Time `json:"started_at"`
}
