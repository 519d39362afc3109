package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/api"
	"github.com/0xDracarys/lfs-builder/internal/config"
	"github.com/0xDracarys/lfs-builder/internal/container"
	"github.com/0xDracarys/lfs-builder/internal/db"
	"github.com/0xDracarys/lfs-builder/internal/engine"
	"github.com/0xDracarys/lfs-builder/internal/iso"
	"github.com/0xDracarys/lfs-builder/internal/jobs"
	"github.com/0xDracarys/lfs-builder/internal/logging"
	"github.com/0xDracarys/lfs-builder/internal/persist"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting LFS builder service",
		"database", cfg.DatabasePath,
		"output", cfg.OutputPath,
		"addr", cfg.ServerHost, "port", cfg.ServerPort)

	database, err := db.NewDB(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	var runtime container.Runtime
	if cfg.ContainerRuntime == "sim" {
		runtime = container.NewSimRuntime()
	} else {
		runtime = container.NewPodmanRuntime(cfg.ContainerSocketPath, cfg.IsoBuilderImage, logger)
	}

	notifier := engine.LogNotifier{Logger: logger}
	bridge := persist.NewBridge(database, notifier, logger)

	eng := engine.New(engine.Options{
		StrictDeps: cfg.StrictDependencies,
		Executor: &engine.SimExecutor{
			DelayCap:     time.Duration(cfg.StepDelayCapSecs) * time.Second,
			DefaultDelay: 500 * time.Millisecond,
		},
		Recorder: bridge,
		Notifier: notifier,
		Logger:   logger,
	})

	tracker := jobs.NewTracker()
	remote := iso.NewRemoteClient(cfg.IsoBackendURL, time.Duration(cfg.IsoBackendTimeoutSeconds)*time.Second)
	local := iso.NewLocalGenerator(runtime, logger)
	metadata := iso.NewMetadataStore(cfg.MetadataPath, logger)
	coordinator := iso.NewCoordinator(remote, local, runtime, tracker, metadata,
		time.Duration(cfg.JobPollSeconds)*time.Second, logger)

	server := api.NewServer(cfg, eng, bridge, coordinator, tracker, logger)

	if err := server.Start(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
