package engine

import (
	"context"
	"log/slog"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// Recorder receives run-loop events for persistence. The bridge in
// internal/persist implements it over sqlite.
type Recorder interface {
	// BuildStarted creates the build record for a new attempt and returns
	// its id. Fails without a valid actor.
	BuildStarted(ctx context.Context, actor models.Actor, configID string) (string, error)

	// StepRecorded upserts the persisted outcome of a step. A failed step
	// also fails the parent build record.
	StepRecorded(ctx context.Context, buildID, stepID string, status models.StepStatus, logText string) error

	// ProgressChanged updates the build record's status, phase, current
	// step and progress.
	ProgressChanged(ctx context.Context, buildID string, status models.BuildStatus, phase models.BuildPhase, currentStepID string, progress int) error
}

// Notifier surfaces user-visible notifications.
type Notifier interface {
	Notify(title, body string)
}

// NopRecorder discards all events. Used when no persistence is wired, and
// in tests that exercise the state machine alone.
type NopRecorder struct{}

func (NopRecorder) BuildStarted(_ context.Context, actor models.Actor, _ string) (string, error) {
	if !actor.Valid() {
		return "", ErrNoActor
	}
	return "nop", nil
}

func (NopRecorder) StepRecorded(context.Context, string, string, models.StepStatus, string) error {
	return nil
}

func (NopRecorder) ProgressChanged(context.Context, string, models.BuildStatus, models.BuildPhase, string, int) error {
	return nil
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(string, string) {}

// LogNotifier surfaces notifications as structured log lines. The service
// has no toast surface of its own; clients read them from the log stream.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(title, body string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "title", title, "body", body)
}
