package iso

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/container"
	"github.com/0xDracarys/lfs-builder/internal/jobs"
	"github.com/0xDracarys/lfs-builder/internal/models"
)

// Request describes an ISO generation ask from the build layer.
type Request struct {
	BuildID    string            `json:"build_id"`
	SourceDir  string            `json:"source_dir"`
	OutputPath string            `json:"output_path"`
	Label      string            `json:"label"`
	Bootable   bool              `json:"bootable"`
	Bootloader models.Bootloader `json:"bootloader"`
	ConfigName string            `json:"config_name,omitempty"`
}

// Coordinator decides between the remote backend and local container
// generation, registers jobs with the tracker, and polls them to a terminal
// status. One coordinator is constructed per process and passed to
// consumers explicitly.
type Coordinator struct {
	remote       *RemoteClient
	local        *LocalGenerator
	runtime      container.Runtime
	tracker      *jobs.Tracker
	metadata     *MetadataStore
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewCoordinator wires a coordinator from its collaborators.
func NewCoordinator(remote *RemoteClient, local *LocalGenerator, runtime container.Runtime, tracker *jobs.Tracker, metadata *MetadataStore, pollInterval time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &Coordinator{
		remote:       remote,
		local:        local,
		runtime:      runtime,
		tracker:      tracker,
		metadata:     metadata,
		logger:       logger.With("component", "iso-coordinator"),
		pollInterval: pollInterval,
	}
}

// RequestGeneration submits an ISO generation request. The remote backend is
// tried first; on remote failure with the local runtime available the job
// falls back to local generation. Returns the job id and its initial status.
func (c *Coordinator) RequestGeneration(ctx context.Context, req Request) (string, models.JobStatus, error) {
	localAvailable := c.runtime != nil && c.runtime.Available(ctx)

	resp, remoteErr := c.remote.Generate(ctx, GenerateRequest{
		BuildID:    req.BuildID,
		Label:      req.Label,
		Bootable:   req.Bootable,
		Bootloader: req.Bootloader,
		SourceDir:  req.SourceDir,
	})
	if remoteErr == nil {
		c.tracker.Add(resp.JobID, req.BuildID, false, "")
		c.tracker.Apply(resp.JobID, jobs.Update{
			Status:  jobs.StatusPtr(models.JobStatusProcessing),
			Message: jobs.StringPtr("Submitted to remote backend"),
		})
		c.logger.Info("ISO generation submitted to remote backend", "job", resp.JobID, "build", req.BuildID)
		return resp.JobID, models.JobStatusProcessing, nil
	}

	if !localAvailable {
		return "", "", fmt.Errorf("failed to request ISO generation: %w", remoteErr)
	}

	c.logger.Warn("remote backend unavailable, falling back to local generation", "error", remoteErr)

	jobID := fmt.Sprintf("local-%d", time.Now().UnixMilli())
	containerID := c.runtime.Status().ContainerID
	c.tracker.Add(jobID, req.BuildID, true, containerID)

	go c.runLocal(jobID, req)

	return jobID, models.JobStatusPending, nil
}

// runLocal drives one local generation to completion in the background,
// mirroring runtime status into the tracker as it goes.
func (c *Coordinator) runLocal(jobID string, req Request) {
	ctx := context.Background()

	unsubscribe := c.runtime.Subscribe(func(status container.Status) {
		update := jobs.Update{
			Progress: jobs.IntPtr(status.Progress),
		}
		if status.ContainerID != "" {
			update.ContainerID = jobs.StringPtr(status.ContainerID)
		}
		if last := status.LastLog(); last != "" {
			update.Message = jobs.StringPtr(last)
		}
		c.tracker.Apply(jobID, update)
	})
	defer unsubscribe()

	c.tracker.Apply(jobID, jobs.Update{Status: jobs.StatusPtr(models.JobStatusProcessing)})

	result, err := c.local.Generate(ctx, container.Request{
		BuildID:     req.BuildID,
		SourceDir:   req.SourceDir,
		OutputPath:  req.OutputPath,
		VolumeLabel: req.Label,
		Bootable:    req.Bootable,
		Bootloader:  req.Bootloader,
	})
	if err != nil {
		c.logger.Error("local ISO generation failed", "job", jobID, "error", err)
		c.tracker.Apply(jobID, jobs.Update{
			Status:  jobs.StatusPtr(models.JobStatusFailed),
			Message: jobs.StringPtr(err.Error()),
		})
		return
	}

	c.tracker.Apply(jobID, jobs.Update{
		Status:   jobs.StatusPtr(models.JobStatusCompleted),
		Progress: jobs.IntPtr(100),
		Message:  jobs.StringPtr(fmt.Sprintf("ISO written to %s", result.OutputPath)),
	})
	c.logger.Info("local ISO generation completed", "job", jobID, "output", result.OutputPath)

	if err := c.metadata.Append(models.IsoMetadata{
		BuildID:     req.BuildID,
		IsoName:     filepath.Base(req.OutputPath),
		Timestamp:   time.Now(),
		ConfigName:  req.ConfigName,
		OutputPath:  result.OutputPath,
		Bootable:    req.Bootable,
		Bootloader:  req.Bootloader,
		VolumeLabel: req.Label,
	}); err != nil {
		// Metadata is the one non-critical persistence path: log and move on.
		c.logger.Warn("failed to save ISO metadata", "job", jobID, "error", err)
	}
}

// CheckStatus returns the current view of a job. Local jobs are synchronized
// from the runtime's live status; unknown jobs are delegated to the remote
// backend. Terminal statuses are sticky.
func (c *Coordinator) CheckStatus(ctx context.Context, jobID string) (models.GenerationJob, error) {
	job, tracked := c.tracker.Get(jobID)

	// Terminal statuses are sticky no matter what the runtime or the remote
	// backend reports afterwards.
	if tracked && job.Status.Terminal() {
		return job, nil
	}

	if tracked && job.IsDocker {
		status := c.runtime.Status()
		matched := status.ContainerID != "" &&
			(job.ContainerID == "" || job.ContainerID == status.ContainerID)

		if matched {
			update := jobs.Update{
				Progress:    jobs.IntPtr(status.Progress),
				ContainerID: jobs.StringPtr(status.ContainerID),
			}
			if last := status.LastLog(); last != "" {
				update.Message = jobs.StringPtr(last)
			}

			if !status.Running {
				if status.Progress >= 100 {
					update.Status = jobs.StatusPtr(models.JobStatusCompleted)
				} else {
					update.Status = jobs.StatusPtr(models.JobStatusFailed)
					update.Message = jobs.StringPtr("container stopped unexpectedly")
				}
			}

			c.tracker.Apply(jobID, update)
		}

		job, _ = c.tracker.Get(jobID)
		return job, nil
	}

	// Not a local job: ask the remote backend.
	resp, err := c.remote.Status(ctx, jobID)
	if err != nil {
		return models.GenerationJob{}, err
	}

	if tracked {
		update := jobs.Update{Status: jobs.StatusPtr(resp.Status)}
		if resp.Progress != nil {
			update.Progress = jobs.IntPtr(*resp.Progress)
		}
		if resp.Message != "" {
			update.Message = jobs.StringPtr(resp.Message)
		}
		c.tracker.Apply(jobID, update)
		job, _ = c.tracker.Get(jobID)
		return job, nil
	}

	job = models.GenerationJob{
		ID:      jobID,
		Status:  resp.Status,
		Message: resp.Message,
	}
	if resp.Progress != nil {
		job.Progress = *resp.Progress
	}
	return job, nil
}

// DownloadURL resolves where a finished job's image can be fetched: local
// jobs are served by this process, remote jobs by the backend.
func (c *Coordinator) DownloadURL(jobID, filename string) string {
	if job, ok := c.tracker.Get(jobID); ok && job.IsDocker {
		u := "/api/iso/download/" + url.PathEscape(jobID)
		if filename != "" {
			u += "?filename=" + url.QueryEscape(filename)
		}
		return u
	}
	return c.remote.DownloadURL(jobID, filename)
}

// Metadata returns the recorded ISO metadata index.
func (c *Coordinator) Metadata() []models.IsoMetadata {
	return c.metadata.Load()
}

// Poll drives a job to a terminal status, checking on the configured
// interval. The ticker is released as soon as the job terminates; multiple
// polls for different jobs run independently.
func (c *Coordinator) Poll(ctx context.Context, jobID string) (models.GenerationJob, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.CheckStatus(ctx, jobID)
		if err != nil {
			return job, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
