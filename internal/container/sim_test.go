package container

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

func testSimRuntime(availability, failure float64) *SimRuntime {
	return &SimRuntime{
		AvailabilityChance: availability,
		FailureChance:      failure,
		StepDelay:          0,
		Rand:               rand.New(rand.NewSource(1)),
	}
}

func TestAvailabilityProbeIsCached(t *testing.T) {
	ctx := context.Background()

	always := testSimRuntime(1, 0)
	assert.True(t, always.Available(ctx))
	assert.True(t, always.Available(ctx), "successful probe is cached")

	never := testSimRuntime(0, 0)
	assert.False(t, never.Available(ctx))
	assert.False(t, never.Available(ctx), "probe result does not flap")
}

func TestGenerateEmitsScriptAndFinishes(t *testing.T) {
	runtime := testSimRuntime(1, 0)

	var seen []Status
	cancel := runtime.Subscribe(func(status Status) {
		seen = append(seen, status)
	})
	defer cancel()

	err := runtime.Generate(context.Background(), Request{
		BuildID:     "build-1",
		SourceDir:   "/stage/build-1",
		OutputPath:  "/output/build-1.iso",
		VolumeLabel: "LFS_12",
		Bootable:    true,
		Bootloader:  models.BootloaderGrub,
	})
	require.NoError(t, err)

	status := runtime.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 100, status.Progress)
	assert.NotEmpty(t, status.ContainerID)

	assert.Contains(t, status.Logs, "Installing GRUB bootloader for El Torito boot")
	assert.Contains(t, status.Logs, "Running xorriso -as mkisofs -volid LFS_12 -o /output/build-1.iso")

	require.NotEmpty(t, seen, "subscribers observe status changes")
	assert.True(t, seen[0].Running)
}

func TestGenerateIsolinuxScript(t *testing.T) {
	runtime := testSimRuntime(1, 0)

	err := runtime.Generate(context.Background(), Request{
		OutputPath:  "/output/x.iso",
		VolumeLabel: "X",
		Bootable:    true,
		Bootloader:  models.BootloaderIsolinux,
	})
	require.NoError(t, err)

	logs := runtime.Status().Logs
	assert.Contains(t, logs, "Installing ISOLINUX bootloader")
	assert.NotContains(t, logs, "Writing grub.cfg")
}

func TestGenerateInjectedFailure(t *testing.T) {
	runtime := testSimRuntime(1, 1)

	err := runtime.Generate(context.Background(), Request{
		OutputPath:  "/output/x.iso",
		VolumeLabel: "X",
	})
	require.EqualError(t, err, "simulated ISO build failure")

	status := runtime.Status()
	assert.False(t, status.Running)
	assert.Less(t, status.Progress, 100)
	assert.Equal(t, "xorriso: FAILURE - image generation aborted", status.LastLog())
}

func TestStatusSnapshotsAreIsolated(t *testing.T) {
	runtime := testSimRuntime(1, 0)

	require.NoError(t, runtime.Generate(context.Background(), Request{
		OutputPath:  "/output/x.iso",
		VolumeLabel: "X",
	}))

	snapshot := runtime.Status()
	require.NotEmpty(t, snapshot.Logs)
	snapshot.Logs[0] = "tampered"

	assert.NotEqual(t, "tampered", runtime.Status().Logs[0])
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	runtime := testSimRuntime(1, 0)

	count := 0
	cancel := runtime.Subscribe(func(Status) { count++ })
	cancel()

	require.NoError(t, runtime.Generate(context.Background(), Request{
		OutputPath:  "/output/x.iso",
		VolumeLabel: "X",
	}))

	assert.Zero(t, count)
}
