package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	database, err := NewDB(filepath.Join(t.TempDir(), "builder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestBuildConfigCRUD(t *testing.T) {
	database := testDB(t)

	cfg := &models.BuildConfig{
		ID:          "cfg-1",
		Name:        "default",
		TargetDisk:  "/dev/sdb1",
		SourcesPath: "/mnt/lfs/sources",
		ScriptsPath: "/opt/lfs/scripts",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, database.CreateBuildConfig(cfg))

	got, err := database.GetBuildConfig("cfg-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "default", got.Name)
	assert.Equal(t, "/dev/sdb1", got.TargetDisk)

	configs, err := database.ListBuildConfigs()
	require.NoError(t, err)
	assert.Len(t, configs, 1)

	require.NoError(t, database.DeleteBuildConfig("cfg-1"))

	got, err = database.GetBuildConfig("cfg-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteMissingBuildConfig(t *testing.T) {
	database := testDB(t)

	err := database.DeleteBuildConfig("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build config not found")
}

func TestBuildLifecycle(t *testing.T) {
	database := testDB(t)

	build := &models.BuildRecord{
		ID:        "build-1",
		Status:    models.BuildStatusInProgress,
		Phase:     models.PhaseInitialSetup,
		StartedAt: time.Now(),
	}
	require.NoError(t, database.CreateBuild(build))

	got, err := database.GetBuild("build-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.BuildStatusInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, database.UpdateBuildProgress("build-1",
		models.BuildStatusInProgress, models.PhaseLFSUserBuild, "build-glibc", 42))

	got, err = database.GetBuild("build-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLFSUserBuild, got.Phase)
	assert.Equal(t, "build-glibc", got.CurrentStepID)
	assert.Equal(t, 42, got.Progress)
	assert.Nil(t, got.CompletedAt, "non-terminal update leaves completed_at unset")

	require.NoError(t, database.UpdateBuildProgress("build-1",
		models.BuildStatusCompleted, models.PhaseFinalSteps, "", 100))

	got, err = database.GetBuild("build-1")
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	firstCompletion := *got.CompletedAt

	// A later update never rewrites the completion timestamp.
	require.NoError(t, database.UpdateBuildProgress("build-1",
		models.BuildStatusCompleted, models.PhaseFinalSteps, "", 100))

	got, err = database.GetBuild("build-1")
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(firstCompletion))
}

func TestUpdateBuildProgressNeverRevivesTerminalBuild(t *testing.T) {
	database := testDB(t)

	require.NoError(t, database.CreateBuild(&models.BuildRecord{
		ID:        "build-1",
		Status:    models.BuildStatusInProgress,
		Phase:     models.PhaseLFSUserBuild,
		StartedAt: time.Now(),
	}))
	require.NoError(t, database.FailBuild("build-1"))

	// A drained run keeps pushing progress after the failure; the terminal
	// status must survive it.
	require.NoError(t, database.UpdateBuildProgress("build-1",
		models.BuildStatusInProgress, models.PhaseFinalSteps, "final-cleanup", 80))

	got, err := database.GetBuild("build-1")
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusFailed, got.Status)
	assert.Equal(t, 80, got.Progress, "non-status fields still update")
	assert.NotNil(t, got.CompletedAt)

	require.NoError(t, database.CreateBuild(&models.BuildRecord{
		ID:        "build-2",
		Status:    models.BuildStatusInProgress,
		Phase:     models.PhaseFinalSteps,
		StartedAt: time.Now(),
	}))
	require.NoError(t, database.UpdateBuildProgress("build-2",
		models.BuildStatusCompleted, models.PhaseFinalSteps, "", 100))
	require.NoError(t, database.UpdateBuildProgress("build-2",
		models.BuildStatusInProgress, models.PhaseFinalSteps, "", 100))

	got, err = database.GetBuild("build-2")
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusCompleted, got.Status)
}

func TestGetMissingBuild(t *testing.T) {
	database := testDB(t)

	got, err := database.GetBuild("ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailBuildSetsTerminalState(t *testing.T) {
	database := testDB(t)

	require.NoError(t, database.CreateBuild(&models.BuildRecord{
		ID:        "build-1",
		Status:    models.BuildStatusInProgress,
		Phase:     models.PhaseChrootBuild,
		StartedAt: time.Now(),
	}))

	require.NoError(t, database.FailBuild("build-1"))

	got, err := database.GetBuild("build-1")
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestListBuildsNewestFirst(t *testing.T) {
	database := testDB(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, database.CreateBuild(&models.BuildRecord{
			ID:        id,
			Status:    models.BuildStatusInProgress,
			Phase:     models.PhaseInitialSetup,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	builds, err := database.ListBuilds(2)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "new", builds[0].ID)
	assert.Equal(t, "mid", builds[1].ID)
}

func TestUpsertBuildStepReplacesOutcome(t *testing.T) {
	database := testDB(t)

	require.NoError(t, database.CreateBuild(&models.BuildRecord{
		ID:        "build-1",
		Status:    models.BuildStatusInProgress,
		Phase:     models.PhaseInitialSetup,
		StartedAt: time.Now(),
	}))

	require.NoError(t, database.UpsertBuildStep(&models.StepRecord{
		BuildID: "build-1",
		StepID:  "create-partition",
		Status:  models.StepStatusInProgress,
		Log:     "awaiting input",
	}))
	require.NoError(t, database.UpsertBuildStep(&models.StepRecord{
		BuildID: "build-1",
		StepID:  "create-partition",
		Status:  models.StepStatusCompleted,
		Log:     "input: /dev/sdb1",
	}))

	steps, err := database.GetBuildSteps("build-1")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, "input: /dev/sdb1", steps[0].Log)
}
