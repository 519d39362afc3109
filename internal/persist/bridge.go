package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/0xDracarys/lfs-builder/internal/db"
	"github.com/0xDracarys/lfs-builder/internal/engine"
	"github.com/0xDracarys/lfs-builder/internal/models"
)

// Bridge translates run-loop events and configuration operations into
// persisted records. Every mutation requires an authenticated actor;
// failures surface as an "Operation failed" notification plus a logged
// cause.
type Bridge struct {
	db       *db.DB
	notifier engine.Notifier
	logger   *slog.Logger
}

// NewBridge creates a persistence bridge over the database.
func NewBridge(database *db.DB, notifier engine.Notifier, logger *slog.Logger) *Bridge {
	if notifier == nil {
		notifier = engine.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		db:       database,
		notifier: notifier,
		logger:   logger.With("component", "persist"),
	}
}

// BuildStarted creates the build record for a new attempt.
func (b *Bridge) BuildStarted(ctx context.Context, actor models.Actor, configID string) (string, error) {
	if !actor.Valid() {
		return "", engine.ErrNoActor
	}

	record := &models.BuildRecord{
		ID:        uuid.NewString(),
		ConfigID:  configID,
		Status:    models.BuildStatusInProgress,
		Phase:     models.Phases[0],
		Progress:  0,
		StartedAt: time.Now(),
	}

	if err := b.db.CreateBuild(record); err != nil {
		b.fail("create build record", err)
		return "", fmt.Errorf("failed to create build record: %w", err)
	}

	b.logger.Info("build record created", "build", record.ID, "actor", actor.ID, "config", configID)
	return record.ID, nil
}

// StepRecorded upserts a step outcome. A failed step also fails the parent
// build record.
func (b *Bridge) StepRecorded(ctx context.Context, buildID, stepID string, status models.StepStatus, logText string) error {
	record := &models.StepRecord{
		BuildID: buildID,
		StepID:  stepID,
		Status:  status,
		Log:     logText,
	}

	if err := b.db.UpsertBuildStep(record); err != nil {
		b.fail("record step outcome", err)
		return fmt.Errorf("failed to record step outcome: %w", err)
	}

	if status == models.StepStatusFailed {
		if err := b.db.FailBuild(buildID); err != nil {
			b.fail("mark build as failed", err)
			return fmt.Errorf("failed to mark build as failed: %w", err)
		}
	}

	return nil
}

// ProgressChanged updates the build record's status, phase, current step and
// progress.
func (b *Bridge) ProgressChanged(ctx context.Context, buildID string, status models.BuildStatus, phase models.BuildPhase, currentStepID string, progress int) error {
	if err := b.db.UpdateBuildProgress(buildID, status, phase, currentStepID, progress); err != nil {
		b.fail("update build progress", err)
		return fmt.Errorf("failed to update build progress: %w", err)
	}
	return nil
}

// CreateConfig persists a new build configuration.
func (b *Bridge) CreateConfig(ctx context.Context, actor models.Actor, cfg models.BuildConfig) (*models.BuildConfig, error) {
	if !actor.Valid() {
		return nil, engine.ErrNoActor
	}

	cfg.ID = uuid.NewString()
	cfg.CreatedAt = time.Now()

	if err := b.db.CreateBuildConfig(&cfg); err != nil {
		b.fail("create build config", err)
		return nil, fmt.Errorf("failed to create build config: %w", err)
	}

	return &cfg, nil
}

// ListConfigs returns all build configurations.
func (b *Bridge) ListConfigs(ctx context.Context) ([]*models.BuildConfig, error) {
	configs, err := b.db.ListBuildConfigs()
	if err != nil {
		b.fail("list build configs", err)
		return nil, fmt.Errorf("failed to list build configs: %w", err)
	}
	return configs, nil
}

// GetConfig returns one build configuration, or nil when absent.
func (b *Bridge) GetConfig(ctx context.Context, id string) (*models.BuildConfig, error) {
	cfg, err := b.db.GetBuildConfig(id)
	if err != nil {
		b.fail("fetch build config", err)
		return nil, fmt.Errorf("failed to fetch build config: %w", err)
	}
	return cfg, nil
}

// DeleteConfig removes a build configuration.
func (b *Bridge) DeleteConfig(ctx context.Context, actor models.Actor, id string) error {
	if !actor.Valid() {
		return engine.ErrNoActor
	}

	if err := b.db.DeleteBuildConfig(id); err != nil {
		b.fail("delete build config", err)
		return fmt.Errorf("failed to delete build config: %w", err)
	}
	return nil
}

// GetBuild returns a persisted build record.
func (b *Bridge) GetBuild(ctx context.Context, id string) (*models.BuildRecord, error) {
	build, err := b.db.GetBuild(id)
	if err != nil {
		b.fail("fetch build", err)
		return nil, fmt.Errorf("failed to fetch build: %w", err)
	}
	return build, nil
}

// ListBuilds returns recent build records.
func (b *Bridge) ListBuilds(ctx context.Context, limit int) ([]*models.BuildRecord, error) {
	builds, err := b.db.ListBuilds(limit)
	if err != nil {
		b.fail("list builds", err)
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	return builds, nil
}

// GetBuildSteps returns the persisted step records of a build.
func (b *Bridge) GetBuildSteps(ctx context.Context, buildID string) ([]*models.StepRecord, error) {
	steps, err := b.db.GetBuildSteps(buildID)
	if err != nil {
		b.fail("list build steps", err)
		return nil, fmt.Errorf("failed to list build steps: %w", err)
	}
	return steps, nil
}

func (b *Bridge) fail(operation string, err error) {
	b.logger.Error("persistence operation failed", "operation", operation, "error", err)
	b.notifier.Notify("Operation failed", fmt.Sprintf("failed to %s: %v", operation, err))
}
