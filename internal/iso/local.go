package iso

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kdomanski/iso9660"

	"github.com/0xDracarys/lfs-builder/internal/container"
	"github.com/0xDracarys/lfs-builder/internal/models"
)

// LocalGenerator produces ISO images on this machine. When the container
// runtime answers, the builder image does the work (bootable images need its
// xorriso/GRUB toolchain); otherwise the image is written directly with the
// pure-Go iso9660 writer, which cannot make it bootable.
type LocalGenerator struct {
	runtime container.Runtime
	logger  *slog.Logger

	mu   sync.Mutex
	logs []string
}

// NewLocalGenerator creates a generator over the given runtime.
func NewLocalGenerator(runtime container.Runtime, logger *slog.Logger) *LocalGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalGenerator{
		runtime: runtime,
		logger:  logger.With("component", "iso-local"),
	}
}

// Result is the outcome of a local generation run.
type Result struct {
	OutputPath string
	Logs       []string
}

// Generate builds the ISO described by the request and blocks until done.
// On failure the error embeds the last log line.
func (g *LocalGenerator) Generate(ctx context.Context, req container.Request) (*Result, error) {
	g.mu.Lock()
	g.logs = nil
	g.mu.Unlock()

	if err := g.validate(req); err != nil {
		return g.result(req), err
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return g.result(req), fmt.Errorf("failed to create output directory: %w", err)
	}

	if g.runtime != nil && g.runtime.Available(ctx) {
		unsubscribe := g.runtime.Subscribe(func(status container.Status) {
			if last := status.LastLog(); last != "" {
				g.appendLog(last)
			}
		})
		defer unsubscribe()

		if err := g.runtime.Generate(ctx, req); err != nil {
			return g.result(req), fmt.Errorf("local ISO generation failed: %s", g.lastLogOr(err.Error()))
		}
		return g.result(req), nil
	}

	if req.Bootable {
		g.appendLog("Container runtime unavailable; writing non-bootable image")
	}

	if err := g.writeDirect(req); err != nil {
		g.appendLog(err.Error())
		return g.result(req), fmt.Errorf("local ISO generation failed: %s", g.lastLogOr(err.Error()))
	}

	return g.result(req), nil
}

// Logs returns a snapshot of the log lines from the most recent run.
func (g *LocalGenerator) Logs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	logs := make([]string, len(g.logs))
	copy(logs, g.logs)
	return logs
}

func (g *LocalGenerator) validate(req container.Request) error {
	info, err := os.Stat(req.SourceDir)
	if err != nil {
		return fmt.Errorf("failed to stat source directory %q: %w", req.SourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %q is not a directory", req.SourceDir)
	}
	return nil
}

// writeDirect streams the source tree into an ISO image with the pure-Go
// writer, adding a bootloader config so the tree layout matches what the
// container path produces.
func (g *LocalGenerator) writeDirect(req container.Request) error {
	g.appendLog("Creating ISO staging structure")

	writer, err := iso9660.NewWriter()
	if err != nil {
		return fmt.Errorf("failed to create iso writer: %w", err)
	}
	defer writer.Cleanup()

	g.appendLog(fmt.Sprintf("Adding system files from %s", req.SourceDir))
	if err := writer.AddLocalDirectory(req.SourceDir, "/"); err != nil {
		return fmt.Errorf("failed to stage source directory: %w", err)
	}

	if cfgPath, cfg := bootloaderConfig(req); cfgPath != "" {
		g.appendLog(fmt.Sprintf("Writing bootloader config %s", cfgPath))
		if err := writer.AddFile(strings.NewReader(cfg), cfgPath); err != nil {
			return fmt.Errorf("failed to add bootloader config: %w", err)
		}
	}

	g.appendLog(fmt.Sprintf("Writing ISO image to %s", req.OutputPath))
	out, err := os.OpenFile(req.OutputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	if err := writer.WriteTo(out, req.VolumeLabel); err != nil {
		out.Close()
		os.Remove(req.OutputPath)
		return fmt.Errorf("failed to write iso: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(req.OutputPath)
		return fmt.Errorf("failed to finalize iso: %w", err)
	}

	g.appendLog(fmt.Sprintf("ISO image written: %s", req.OutputPath))
	return nil
}

func bootloaderConfig(req container.Request) (path, content string) {
	if !req.Bootable {
		return "", ""
	}

	switch req.Bootloader {
	case models.BootloaderGrub:
		return "boot/grub/grub.cfg", fmt.Sprintf(
			"set default=0\nset timeout=5\nmenuentry %q {\n    linux /boot/vmlinuz root=/dev/sr0\n}\n",
			req.VolumeLabel,
		)
	case models.BootloaderIsolinux:
		return "isolinux/isolinux.cfg", fmt.Sprintf(
			"DEFAULT linux\nLABEL linux\n    SAY Booting %s\n    KERNEL /boot/vmlinuz\n",
			req.VolumeLabel,
		)
	default:
		return "", ""
	}
}

func (g *LocalGenerator) appendLog(line string) {
	g.mu.Lock()
	g.logs = append(g.logs, line)
	g.mu.Unlock()
}

func (g *LocalGenerator) lastLogOr(fallback string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.logs) == 0 {
		return fallback
	}
	return g.logs[len(g.logs)-1]
}

func (g *LocalGenerator) result(req container.Request) *Result {
	return &Result{
		OutputPath: req.OutputPath,
		Logs:       g.Logs(),
	}
}
