package container

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/containers/podman/v4/pkg/bindings"
	"github.com/containers/podman/v4/pkg/bindings/containers"
	"github.com/containers/podman/v4/pkg/bindings/images"
	"github.com/containers/podman/v4/pkg/specgen"
	spec "github.com/opencontainers/runtime-spec/specs-go"
)

// PodmanRuntime generates ISOs by running the builder image through the
// Podman bindings. The builder image carries the xorriso/GRUB/ISOLINUX
// toolchain; the source tree and output directory are bind-mounted in.
type PodmanRuntime struct {
	socketPath string
	image      string
	logger     *slog.Logger

	mu        sync.Mutex
	conn      context.Context
	available bool // cached after the first successful probe

	feed
}

// NewPodmanRuntime creates a runtime against the given Podman socket. No
// connection is made until the first probe.
func NewPodmanRuntime(socketPath, image string, logger *slog.Logger) *PodmanRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &PodmanRuntime{
		socketPath: socketPath,
		image:      image,
		logger:     logger.With("component", "podman"),
	}
}

// Available reports whether the Podman socket answers. A successful probe is
// cached for the process lifetime.
func (r *PodmanRuntime) Available(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.available {
		return true
	}

	conn, err := bindings.NewConnection(ctx, fmt.Sprintf("unix://%s", r.socketPath))
	if err != nil {
		r.logger.Debug("podman socket probe failed", "socket", r.socketPath, "error", err)
		return false
	}

	r.conn = conn
	r.available = true
	return true
}

// Generate runs the builder image against the request and blocks until the
// container exits. Logs and progress are published through the status feed.
func (r *PodmanRuntime) Generate(ctx context.Context, req Request) error {
	if !r.Available(ctx) {
		return fmt.Errorf("podman runtime is not available at %s", r.socketPath)
	}

	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	exists, err := images.Exists(conn, r.image, nil)
	if err != nil {
		return fmt.Errorf("failed to check image existence: %w", err)
	}
	if !exists {
		r.feed.log(fmt.Sprintf("Pulling builder image %s", r.image))
		if _, err := images.Pull(conn, r.image, nil); err != nil {
			return fmt.Errorf("failed to pull image %s: %w", r.image, err)
		}
	}

	remove := true
	containerSpec := &specgen.SpecGenerator{
		ContainerBasicConfig: specgen.ContainerBasicConfig{
			Remove: remove,
			Env: map[string]string{
				"ISO_LABEL":      req.VolumeLabel,
				"ISO_BOOTLOADER": string(req.Bootloader),
				"ISO_BOOTABLE":   fmt.Sprintf("%t", req.Bootable),
				"ISO_NAME":       filepath.Base(req.OutputPath),
			},
		},
		ContainerStorageConfig: specgen.ContainerStorageConfig{
			Image: r.image,
			Mounts: []spec.Mount{
				{
					Source:      req.SourceDir,
					Destination: "/build/source",
					Type:        "bind",
					Options:     []string{"ro"},
				},
				{
					Source:      filepath.Dir(req.OutputPath),
					Destination: "/build/output",
					Type:        "bind",
				},
			},
		},
	}

	createResponse, err := containers.CreateWithSpec(conn, containerSpec, nil)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	containerID := createResponse.ID

	r.feed.begin(containerID)

	if err := containers.Start(conn, containerID, nil); err != nil {
		r.feed.finish(0)
		return fmt.Errorf("failed to start container: %w", err)
	}

	// Stream logs into the status feed while the container runs.
	stdout := make(chan string)
	stderr := make(chan string)
	logDone := make(chan error, 1)
	streamTrue := true
	go func() {
		logDone <- containers.Logs(conn, containerID, &containers.LogOptions{
			Stdout: &streamTrue,
			Stderr: &streamTrue,
			Follow: &streamTrue,
		}, stdout, stderr)
		close(stdout)
		close(stderr)
	}()

	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		out, errs := stdout, stderr
		lines := 0
		for out != nil || errs != nil {
			select {
			case line, ok := <-out:
				if !ok {
					out = nil
					continue
				}
				lines++
				r.feed.log(line)
				r.feed.progress(lineProgress(lines))
			case line, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				lines++
				r.feed.log(line)
				r.feed.progress(lineProgress(lines))
			}
		}
	}()

	exitCode, err := containers.Wait(conn, containerID, nil)
	<-collectDone
	if logErr := <-logDone; logErr != nil {
		r.logger.Debug("log streaming ended with error", "error", logErr)
	}

	if err != nil {
		r.feed.finish(r.feed.Status().Progress)
		return fmt.Errorf("container execution failed: %w", err)
	}
	if exitCode != 0 {
		r.feed.finish(r.feed.Status().Progress)
		return fmt.Errorf("container exited with code %d", exitCode)
	}

	r.feed.finish(100)
	return nil
}

// lineProgress maps streamed log volume onto a bounded progress value; the
// final jump to 100 happens only on a clean exit.
func lineProgress(lines int) int {
	p := lines * 2
	if p > 95 {
		p = 95
	}
	return p
}
