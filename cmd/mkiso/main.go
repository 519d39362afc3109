package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/0xDracarys/lfs-builder/internal/config"
	"github.com/0xDracarys/lfs-builder/internal/container"
	"github.com/0xDracarys/lfs-builder/internal/iso"
	"github.com/0xDracarys/lfs-builder/internal/logging"
	"github.com/0xDracarys/lfs-builder/internal/models"
)

type options struct {
	sourcePath string
	outputPath string
	label      string
	buildID    string
	bootable   bool
	bootloader string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "mkiso",
		Short:         "Generate an ISO image from a prepared LFS system tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	cmd.Flags().StringVar(&opts.sourcePath, "sourcePath", "", "directory containing the system tree to image")
	cmd.Flags().StringVar(&opts.outputPath, "outputPath", "", "path of the ISO file to write")
	cmd.Flags().StringVar(&opts.label, "label", "", "volume label for the image")
	cmd.Flags().StringVar(&opts.buildID, "buildId", "", "build id to associate with the image")
	cmd.Flags().BoolVar(&opts.bootable, "bootable", false, "make the image bootable")
	cmd.Flags().StringVar(&opts.bootloader, "bootloader", "grub", "bootloader kind: grub, isolinux or none")

	return cmd
}

// missingFlags names the required flags absent from the invocation.
func missingFlags(opts options) []string {
	var missing []string
	if opts.sourcePath == "" {
		missing = append(missing, "--sourcePath")
	}
	if opts.outputPath == "" {
		missing = append(missing, "--outputPath")
	}
	if opts.label == "" {
		missing = append(missing, "--label")
	}
	return missing
}

func run(opts options) error {
	if missing := missingFlags(opts); len(missing) > 0 {
		return fmt.Errorf("missing required arguments: %s", strings.Join(missing, ", "))
	}

	sourcePath, err := filepath.Abs(opts.sourcePath)
	if err != nil {
		return fmt.Errorf("failed to resolve source path: %w", err)
	}
	outputPath, err := filepath.Abs(opts.outputPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	bootloader := models.Bootloader(opts.bootloader)
	switch bootloader {
	case models.BootloaderGrub, models.BootloaderIsolinux, models.BootloaderNone:
	default:
		return fmt.Errorf("unknown bootloader %q: use grub, isolinux or none", opts.bootloader)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	var runtime container.Runtime
	if cfg.ContainerRuntime == "sim" {
		runtime = container.NewSimRuntime()
	} else {
		runtime = container.NewPodmanRuntime(cfg.ContainerSocketPath, cfg.IsoBuilderImage, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !runtime.Available(ctx) {
		fmt.Fprintln(os.Stderr, "Warning: container runtime unavailable, the image will not be bootable")
	}

	generator := iso.NewLocalGenerator(runtime, logger)
	result, err := generator.Generate(ctx, container.Request{
		BuildID:     opts.buildID,
		SourceDir:   sourcePath,
		OutputPath:  outputPath,
		VolumeLabel: opts.label,
		Bootable:    opts.bootable,
		Bootloader:  bootloader,
	})
	if err != nil {
		for _, line := range result.Logs {
			fmt.Fprintln(os.Stderr, line)
		}
		return err
	}

	fmt.Printf("ISO written to %s\n", result.OutputPath)
	if len(result.Logs) > 0 {
		fmt.Println(result.Logs[len(result.Logs)-1])
	}
	return nil
}
