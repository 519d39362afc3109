package container

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// SimRuntime is a stand-in for a real container runtime. It emits a fixed
// sequence of log lines mirroring what the builder image would print and
// fails with a configurable probability after completing every step. All
// randomness comes from the injected source; nothing upstream of this
// adapter rolls dice.
type SimRuntime struct {
	// AvailabilityChance is the probability the first availability probe
	// succeeds. A successful probe is cached.
	AvailabilityChance float64

	// FailureChance is the probability a run fails after all simulated
	// steps. The reference placeholder uses 0.1.
	FailureChance float64

	// StepDelay is the injected delay between simulated steps.
	StepDelay time.Duration

	// Rand drives the simulated outcomes. Defaults to a time-seeded source.
	Rand *rand.Rand

	mu        sync.Mutex
	probed    bool
	available bool

	feed
}

// NewSimRuntime returns a simulated runtime with the reference placeholder
// behavior: 80% availability, 10% failure, short step delays.
func NewSimRuntime() *SimRuntime {
	return &SimRuntime{
		AvailabilityChance: 0.8,
		FailureChance:      0.1,
		StepDelay:          200 * time.Millisecond,
		Rand:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *SimRuntime) rng() *rand.Rand {
	if r.Rand == nil {
		r.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r.Rand
}

// Available rolls once for availability and caches a successful outcome.
func (r *SimRuntime) Available(_ context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.available {
		return true
	}
	if r.probed {
		return r.available
	}

	r.probed = true
	r.available = r.rng().Float64() < r.AvailabilityChance
	return r.available
}

// Generate emits the deterministic step script with injected delays, then
// rolls for the configured failure chance.
func (r *SimRuntime) Generate(ctx context.Context, req Request) error {
	containerID := fmt.Sprintf("sim-%d", time.Now().UnixNano())
	r.feed.begin(containerID)

	steps := simScript(req)
	for i, line := range steps {
		select {
		case <-ctx.Done():
			r.feed.finish(r.feed.Status().Progress)
			return ctx.Err()
		case <-time.After(r.StepDelay):
		}

		r.feed.log(line)
		r.feed.progress((i + 1) * 100 / len(steps))
	}

	r.mu.Lock()
	failed := r.rng().Float64() < r.FailureChance
	r.mu.Unlock()

	if failed {
		r.feed.log("xorriso: FAILURE - image generation aborted")
		r.feed.finish(r.feed.Status().Progress)
		return fmt.Errorf("simulated ISO build failure")
	}

	r.feed.finish(100)
	return nil
}

func simScript(req Request) []string {
	lines := []string{
		"Creating ISO staging directory structure",
		fmt.Sprintf("Copying system files from %s", req.SourceDir),
	}

	if req.Bootable {
		switch req.Bootloader {
		case models.BootloaderIsolinux:
			lines = append(lines,
				"Installing ISOLINUX bootloader",
				"Writing isolinux.cfg",
			)
		case models.BootloaderGrub:
			lines = append(lines,
				"Installing GRUB bootloader for El Torito boot",
				"Writing grub.cfg",
			)
		}
	}

	lines = append(lines,
		fmt.Sprintf("Running xorriso -as mkisofs -volid %s -o %s", req.VolumeLabel, req.OutputPath),
		"Writing ISO image to disk",
	)
	return lines
}
