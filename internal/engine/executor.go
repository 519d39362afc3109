package engine

import (
	"context"
	"strings"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// StepExecutor carries out the work of a single step. The engine never runs
// real build commands; executors simulate or delegate.
type StepExecutor interface {
	Execute(ctx context.Context, step models.BuildStep, logf func(line string)) error
}

// SimExecutor simulates step execution: it echoes the step's command text
// line by line the way a shell would, then waits a delay derived from the
// step's estimated time. Faults are injected only through FailStep; the
// executor itself has no randomness.
type SimExecutor struct {
	// DelayCap bounds the simulated work per step. Zero means no sleeping,
	// which keeps tests fast.
	DelayCap time.Duration

	// DefaultDelay is used when a step carries no estimate.
	DefaultDelay time.Duration

	// FailStep, when set, is consulted after the simulated work; a non-nil
	// return fails the step.
	FailStep func(step models.BuildStep) error
}

func (e *SimExecutor) Execute(ctx context.Context, step models.BuildStep, logf func(string)) error {
	for _, line := range strings.Split(step.Command, "\n") {
		if line == "" {
			continue
		}
		logf("$ " + line)
	}

	if err := e.wait(ctx, e.delayFor(step)); err != nil {
		return err
	}

	if e.FailStep != nil {
		if err := e.FailStep(step); err != nil {
			return err
		}
	}

	return nil
}

func (e *SimExecutor) delayFor(step models.BuildStep) time.Duration {
	delay := step.EstimatedTime
	if delay == 0 {
		delay = e.DefaultDelay
	}
	if delay > e.DelayCap {
		delay = e.DelayCap
	}
	return delay
}

func (e *SimExecutor) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
