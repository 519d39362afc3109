package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

func TestAddRegistersPendingJob(t *testing.T) {
	tracker := NewTracker()

	tracker.Add("job-1", "build-1", false, "")

	job, ok := tracker.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, "build-1", job.BuildID)
	assert.False(t, job.IsDocker)
	assert.Equal(t, "Waiting for remote backend", job.Message)
	assert.False(t, job.StartedAt.IsZero())
}

func TestAddLocalJobMessage(t *testing.T) {
	tracker := NewTracker()

	tracker.Add("local-1", "build-1", true, "container-abc")

	job, ok := tracker.Get("local-1")
	require.True(t, ok)
	assert.True(t, job.IsDocker)
	assert.Equal(t, "container-abc", job.ContainerID)
	assert.Equal(t, "Waiting for local container runtime", job.Message)
}

func TestApplyMergesPartialUpdates(t *testing.T) {
	tracker := NewTracker()
	tracker.Add("job-1", "build-1", false, "")

	tracker.Apply("job-1", Update{
		Status:   StatusPtr(models.JobStatusProcessing),
		Progress: IntPtr(40),
	})

	job, _ := tracker.Get("job-1")
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, 40, job.Progress)
	assert.Equal(t, "Waiting for remote backend", job.Message, "untouched fields survive")

	tracker.Apply("job-1", Update{Message: StringPtr("Burning image")})

	job, _ = tracker.Get("job-1")
	assert.Equal(t, 40, job.Progress, "progress untouched by message-only update")
	assert.Equal(t, "Burning image", job.Message)
}

func TestApplyUnknownJobIsNoOp(t *testing.T) {
	tracker := NewTracker()

	tracker.Apply("ghost", Update{Status: StatusPtr(models.JobStatusFailed)})

	_, ok := tracker.Get("ghost")
	assert.False(t, ok)
}

func TestGetReturnsSnapshotCopies(t *testing.T) {
	tracker := NewTracker()
	tracker.Add("job-1", "build-1", false, "")

	job, _ := tracker.Get("job-1")
	job.Progress = 99

	fresh, _ := tracker.Get("job-1")
	assert.Equal(t, 0, fresh.Progress, "mutating a snapshot must not leak into the tracker")
}

func TestActiveExcludesTerminalJobs(t *testing.T) {
	tracker := NewTracker()
	tracker.Add("running", "build-1", true, "")
	tracker.Add("done", "build-2", false, "")
	tracker.Add("broken", "build-3", false, "")

	tracker.Apply("done", Update{Status: StatusPtr(models.JobStatusCompleted)})
	tracker.Apply("broken", Update{Status: StatusPtr(models.JobStatusFailed)})

	active := tracker.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "running", active[0].ID)

	assert.Len(t, tracker.All(), 3, "terminal jobs are kept, not deleted")
}
