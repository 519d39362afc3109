package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDracarys/lfs-builder/internal/db"
	"github.com/0xDracarys/lfs-builder/internal/engine"
	"github.com/0xDracarys/lfs-builder/internal/models"
)

var testActor = models.Actor{ID: "test", Name: "test user"}

func testBridge(t *testing.T) *Bridge {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "builder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return NewBridge(database, nil, nil)
}

func TestBuildStartedRequiresActor(t *testing.T) {
	bridge := testBridge(t)

	_, err := bridge.BuildStarted(context.Background(), models.Actor{}, "")
	assert.ErrorIs(t, err, engine.ErrNoActor)
}

func TestBuildStartedCreatesRecord(t *testing.T) {
	bridge := testBridge(t)
	ctx := context.Background()

	buildID, err := bridge.BuildStarted(ctx, testActor, "")
	require.NoError(t, err)
	require.NotEmpty(t, buildID)

	build, err := bridge.GetBuild(ctx, buildID)
	require.NoError(t, err)
	require.NotNil(t, build)
	assert.Equal(t, models.BuildStatusInProgress, build.Status)
	assert.Equal(t, models.Phases[0], build.Phase)
	assert.Equal(t, 0, build.Progress)
}

func TestFailedStepFailsParentBuild(t *testing.T) {
	bridge := testBridge(t)
	ctx := context.Background()

	buildID, err := bridge.BuildStarted(ctx, testActor, "")
	require.NoError(t, err)

	require.NoError(t, bridge.StepRecorded(ctx, buildID, "build-glibc", models.StepStatusFailed, "make: *** error"))

	build, err := bridge.GetBuild(ctx, buildID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusFailed, build.Status)
	require.NotNil(t, build.CompletedAt)

	steps, err := bridge.GetBuildSteps(ctx, buildID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
}

func TestFailedBuildIsNotRevivedByLaterProgress(t *testing.T) {
	bridge := testBridge(t)
	ctx := context.Background()

	buildID, err := bridge.BuildStarted(ctx, testActor, "")
	require.NoError(t, err)

	require.NoError(t, bridge.StepRecorded(ctx, buildID, "build-glibc", models.StepStatusFailed, "make: *** error"))

	// The run-loop keeps reporting progress when the operator resumes past
	// the failed step; the record stays failed.
	require.NoError(t, bridge.ProgressChanged(ctx, buildID,
		models.BuildStatusInProgress, models.PhaseChrootBuild, "build-basic-packages", 60))

	build, err := bridge.GetBuild(ctx, buildID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusFailed, build.Status)
	assert.Equal(t, 60, build.Progress)
}

func TestProgressChangedUpdatesRecord(t *testing.T) {
	bridge := testBridge(t)
	ctx := context.Background()

	buildID, err := bridge.BuildStarted(ctx, testActor, "")
	require.NoError(t, err)

	require.NoError(t, bridge.ProgressChanged(ctx, buildID,
		models.BuildStatusInProgress, models.PhaseChrootBuild, "build-basic-packages", 58))

	build, err := bridge.GetBuild(ctx, buildID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseChrootBuild, build.Phase)
	assert.Equal(t, "build-basic-packages", build.CurrentStepID)
	assert.Equal(t, 58, build.Progress)
}

func TestConfigMutationsRequireActor(t *testing.T) {
	bridge := testBridge(t)
	ctx := context.Background()

	_, err := bridge.CreateConfig(ctx, models.Actor{}, models.BuildConfig{Name: "x"})
	assert.ErrorIs(t, err, engine.ErrNoActor)

	assert.ErrorIs(t, bridge.DeleteConfig(ctx, models.Actor{}, "any"), engine.ErrNoActor)
}

func TestConfigRoundTrip(t *testing.T) {
	bridge := testBridge(t)
	ctx := context.Background()

	created, err := bridge.CreateConfig(ctx, testActor, models.BuildConfig{
		Name:        "default",
		TargetDisk:  "/dev/sdb1",
		SourcesPath: "/mnt/lfs/sources",
		ScriptsPath: "/opt/lfs/scripts",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := bridge.GetConfig(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "default", got.Name)

	configs, err := bridge.ListConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, configs, 1)

	require.NoError(t, bridge.DeleteConfig(ctx, testActor, created.ID))

	got, err = bridge.GetConfig(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
