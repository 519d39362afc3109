package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

var (
	// ErrNoActor is returned when a persisted mutation is attempted
	// without an authenticated actor.
	ErrNoActor = errors.New("authentication required: no actor")

	// ErrBuildRunning is returned by Start while a build is in flight.
	ErrBuildRunning = errors.New("a build is already running")

	// ErrNoInputPending is returned by SubmitInput and SkipInput when no
	// input request is outstanding.
	ErrNoInputPending = errors.New("no input request pending")

	// ErrInputRequired is returned by SkipInput for required inputs.
	ErrInputRequired = errors.New("input is required and cannot be skipped")
)

// PasswordMask replaces submitted password values in logs.
const PasswordMask = "********"

// State is a read-only snapshot of the engine.
type State struct {
	Running  bool                 `json:"running"`
	BuildID  string               `json:"build_id,omitempty"`
	Phase    models.BuildPhase    `json:"phase"`
	Context  models.UserContext   `json:"context"`
	Progress int                  `json:"progress"`
	Input    *models.InputRequest `json:"input,omitempty"`
}

// Engine is the build run-loop: a strictly sequential state machine that
// advances steps one at a time, parking for human input and halting on
// failure. All state is owned by the engine and mutated only through its
// operations; callers read snapshots.
//
// Suspend/resume is modeled as a single advance loop that runs after every
// terminal step transition, not as recursive callbacks.
type Engine struct {
	mu       sync.Mutex
	steps    []models.BuildStep
	phaseIdx int
	running  bool
	starting bool // held across the recorder call in Start
	failed   bool // a step failed during this attempt
	buildID  string
	progress int
	input    *models.InputRequest
	logs     []string
	gen      uint64 // bumped by Reset so stale executions are dropped

	strictDeps bool
	exec       StepExecutor
	recorder   Recorder
	notifier   Notifier
	logger     *slog.Logger

	wg sync.WaitGroup
}

// Options configures a new Engine.
type Options struct {
	Steps      []models.BuildStep // defaults to models.Catalog()
	StrictDeps bool
	Executor   StepExecutor
	Recorder   Recorder
	Notifier   Notifier
	Logger     *slog.Logger
}

// New creates an engine with all steps pending.
func New(opts Options) *Engine {
	steps := opts.Steps
	if steps == nil {
		steps = models.Catalog()
	}
	exec := opts.Executor
	if exec == nil {
		exec = &SimExecutor{}
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	owned := make([]models.BuildStep, len(steps))
	copy(owned, steps)

	return &Engine{
		steps:      owned,
		strictDeps: opts.StrictDeps,
		exec:       exec,
		recorder:   recorder,
		notifier:   notifier,
		logger:     logger.With("component", "engine"),
	}
}

// Start begins a new build attempt: all steps are restored to pending, a
// build record is created through the recorder (which requires an actor),
// and the run-loop starts advancing.
func (e *Engine) Start(ctx context.Context, actor models.Actor, configID string) (string, error) {
	e.mu.Lock()
	if e.running || e.starting {
		e.mu.Unlock()
		return "", ErrBuildRunning
	}
	e.starting = true
	e.mu.Unlock()

	buildID, err := e.recorder.BuildStarted(ctx, actor, configID)
	if err != nil {
		e.mu.Lock()
		e.starting = false
		e.mu.Unlock()

		e.notifier.Notify("Operation failed", fmt.Sprintf("failed to start build: %v", err))
		return "", err
	}

	e.mu.Lock()
	e.starting = false
	e.resetLocked()
	e.buildID = buildID
	e.running = true
	e.appendLogLocked(fmt.Sprintf("Build %s started", buildID))
	e.mu.Unlock()

	e.spawnAdvance(ctx)
	return buildID, nil
}

// Toggle pauses a running build or resumes a paused one. Resuming when no
// pending step remains leaves the engine paused. An in-flight step is never
// cancelled by pausing; only automatic continuation stops.
func (e *Engine) Toggle(ctx context.Context) bool {
	e.mu.Lock()
	if e.running {
		e.running = false
		e.appendLogLocked("Build paused")
		e.mu.Unlock()
		return false
	}

	if e.input != nil {
		// A step is parked on input; resume the flag only, the loop
		// continues when the input is answered.
		e.running = true
		e.appendLogLocked("Build resumed (awaiting input)")
		e.mu.Unlock()
		return true
	}

	if e.findNextLocked() < 0 {
		// Nothing left to run; treat the build as already complete.
		e.mu.Unlock()
		return false
	}

	e.running = true
	e.appendLogLocked("Build resumed")
	e.mu.Unlock()

	e.spawnAdvance(ctx)
	return true
}

// Reset restores the full step sequence to its initial all-pending
// definition: first phase, root context, zero progress, no logs, no input
// request, no run flag, no active build.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()

	e.notifier.Notify("Build reset", "All steps restored to pending")
}

func (e *Engine) resetLocked() {
	for i := range e.steps {
		e.steps[i].Status = models.StepStatusPending
	}
	e.phaseIdx = 0
	e.running = false
	e.failed = false
	e.buildID = ""
	e.progress = 0
	e.input = nil
	e.logs = nil
	e.gen++
}

// SubmitInput consumes the pending input request, completes the blocked
// step, and resumes the run-loop if it is still running. Password values are
// never logged; a fixed mask is appended instead.
func (e *Engine) SubmitInput(ctx context.Context, value string) error {
	e.mu.Lock()
	if e.input == nil {
		e.mu.Unlock()
		return ErrNoInputPending
	}

	stepID := e.input.StepID
	idx := e.stepIndexLocked(stepID)
	if idx < 0 {
		e.input = nil
		e.mu.Unlock()
		return fmt.Errorf("input request references unknown step %q", stepID)
	}

	logged := value
	if isPasswordStep(stepID) {
		logged = PasswordMask
	}
	e.appendLogLocked("$ " + logged)

	e.steps[idx].Status = models.StepStatusCompleted
	e.appendLogLocked(fmt.Sprintf("Completed: %s", e.steps[idx].Name))
	e.input = nil

	buildID := e.buildID
	running := e.running
	progress := e.recomputeProgressLocked()
	phase := e.currentPhaseLocked()
	status := e.buildStatusLocked()
	e.mu.Unlock()

	e.recordStep(ctx, buildID, stepID, models.StepStatusCompleted, "input: "+logged)
	e.recordProgress(ctx, buildID, status, phase, "", progress)

	if running {
		e.spawnAdvance(ctx)
	}
	return nil
}

// SkipInput dismisses the pending input request for a non-required input,
// marking the blocked step skipped so the build can move on. Required inputs
// cannot be skipped.
func (e *Engine) SkipInput(ctx context.Context) error {
	e.mu.Lock()
	if e.input == nil {
		e.mu.Unlock()
		return ErrNoInputPending
	}
	if e.input.Required {
		e.mu.Unlock()
		return ErrInputRequired
	}

	stepID := e.input.StepID
	idx := e.stepIndexLocked(stepID)
	if idx >= 0 {
		e.steps[idx].Status = models.StepStatusSkipped
		e.appendLogLocked(fmt.Sprintf("Skipped: %s", e.steps[idx].Name))
	}
	e.input = nil

	buildID := e.buildID
	running := e.running
	progress := e.recomputeProgressLocked()
	phase := e.currentPhaseLocked()
	status := e.buildStatusLocked()
	e.mu.Unlock()

	e.recordStep(ctx, buildID, stepID, models.StepStatusSkipped, "input dismissed")
	e.recordProgress(ctx, buildID, status, phase, "", progress)

	if running {
		e.spawnAdvance(ctx)
	}
	return nil
}

// Steps returns a snapshot copy of the step sequence.
func (e *Engine) Steps() []models.BuildStep {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps := make([]models.BuildStep, len(e.steps))
	copy(steps, e.steps)
	return steps
}

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := State{
		Running:  e.running,
		BuildID:  e.buildID,
		Phase:    e.currentPhaseLocked(),
		Context:  models.PhaseContext(e.currentPhaseLocked()),
		Progress: e.progress,
	}
	if e.input != nil {
		req := *e.input
		state.Input = &req
	}
	return state
}

// Logs returns a snapshot copy of the human-readable log lines.
func (e *Engine) Logs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	logs := make([]string, len(e.logs))
	copy(logs, e.logs)
	return logs
}

// Wait blocks until the run-loop has parked: paused, awaiting input, failed,
// or complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// spawnAdvance launches the run-loop. The loop outlives the caller, so the
// caller's cancellation (typically an HTTP request context) must not reach it.
func (e *Engine) spawnAdvance(ctx context.Context) {
	e.wg.Add(1)
	go e.advance(context.WithoutCancel(ctx))
}

// advance is the single drive operation of the state machine. It claims the
// next eligible step, executes it, records the outcome, and repeats until
// the run flag drops, an input request parks the loop, a step fails, or the
// phases are exhausted.
func (e *Engine) advance(ctx context.Context) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		if !e.running {
			e.mu.Unlock()
			return
		}

		idx := e.findNextLocked()
		if idx < 0 {
			e.finishLocked(ctx)
			return
		}

		step := &e.steps[idx]
		step.Status = models.StepStatusInProgress
		e.appendLogLocked(fmt.Sprintf("[%s] %s", models.PhaseContext(step.Phase), step.Name))

		if step.RequiresInput {
			e.input = newInputRequest(*step)
			stepID := step.ID
			buildID := e.buildID
			e.mu.Unlock()

			e.recordStep(ctx, buildID, stepID, models.StepStatusInProgress, "awaiting input")
			return // parked until SubmitInput or SkipInput
		}

		stepCopy := *step
		buildID := e.buildID
		gen := e.gen
		e.mu.Unlock()

		err := e.exec.Execute(ctx, stepCopy, e.appendLog)

		e.mu.Lock()
		if e.gen != gen {
			// Reset happened while executing; drop the stale result.
			e.mu.Unlock()
			return
		}

		idx = e.stepIndexLocked(stepCopy.ID)
		if idx < 0 {
			e.mu.Unlock()
			return
		}

		if err != nil {
			e.steps[idx].Status = models.StepStatusFailed
			e.running = false
			e.failed = true
			e.appendLogLocked(fmt.Sprintf("Error: step %s failed: %v", stepCopy.ID, err))
			e.mu.Unlock()

			e.recordStep(ctx, buildID, stepCopy.ID, models.StepStatusFailed, err.Error())
			e.notifier.Notify("Step failed", fmt.Sprintf("%s: %v", stepCopy.ID, err))
			return
		}

		e.steps[idx].Status = models.StepStatusCompleted
		e.appendLogLocked(fmt.Sprintf("Completed: %s", stepCopy.Name))
		progress := e.recomputeProgressLocked()
		phase := e.currentPhaseLocked()
		status := e.buildStatusLocked()
		e.mu.Unlock()

		e.recordStep(ctx, buildID, stepCopy.ID, models.StepStatusCompleted, stepCopy.Command)
		e.recordProgress(ctx, buildID, status, phase, stepCopy.ID, progress)
	}
}

// finishLocked handles phase exhaustion. Called with the lock held; releases
// it before talking to the recorder.
func (e *Engine) finishLocked(ctx context.Context) {
	e.running = false
	progress := e.recomputeProgressLocked()
	buildID := e.buildID
	phase := e.currentPhaseLocked()
	status := e.buildStatusLocked()
	e.appendLogLocked("No pending steps remain")
	e.mu.Unlock()

	if buildID == "" {
		return
	}

	// Only a fully completed/skipped sequence marks the build completed;
	// sequences drained around a failed step keep their failed record.
	if status != models.BuildStatusFailed && progress >= 100 {
		status = models.BuildStatusCompleted
		e.notifier.Notify("Build complete", fmt.Sprintf("Build %s finished", buildID))
	}
	e.recordProgress(ctx, buildID, status, phase, "", progress)
}

// findNextLocked returns the index of the next eligible step, advancing the
// phase pointer (and thereby the active context) when the current phase has
// no pending steps left. Returns -1 when all phases are exhausted.
func (e *Engine) findNextLocked() int {
	for pi := e.phaseIdx; pi < len(models.Phases); pi++ {
		phase := models.Phases[pi]

		first := -1
		for i := range e.steps {
			if e.steps[i].Phase != phase || e.steps[i].Status != models.StepStatusPending {
				continue
			}
			if first < 0 {
				first = i
			}
			if !e.strictDeps || e.depsSatisfiedLocked(e.steps[i]) {
				e.phaseIdx = pi
				return i
			}
		}

		// Strict mode with no dependency-eligible step: fall back to plain
		// phase order rather than stalling.
		if first >= 0 {
			e.phaseIdx = pi
			return first
		}
	}
	return -1
}

func (e *Engine) depsSatisfiedLocked(step models.BuildStep) bool {
	for _, dep := range step.Dependencies {
		idx := e.stepIndexLocked(dep)
		if idx < 0 {
			continue
		}
		status := e.steps[idx].Status
		if status != models.StepStatusCompleted && status != models.StepStatusSkipped {
			return false
		}
	}
	return true
}

func (e *Engine) stepIndexLocked(id string) int {
	for i := range e.steps {
		if e.steps[i].ID == id {
			return i
		}
	}
	return -1
}

// buildStatusLocked is the status the recorder should see for the current
// attempt: once a step has failed the record stays failed.
func (e *Engine) buildStatusLocked() models.BuildStatus {
	if e.failed {
		return models.BuildStatusFailed
	}
	return models.BuildStatusInProgress
}

func (e *Engine) currentPhaseLocked() models.BuildPhase {
	if e.phaseIdx >= len(models.Phases) {
		return models.Phases[len(models.Phases)-1]
	}
	return models.Phases[e.phaseIdx]
}

func (e *Engine) recomputeProgressLocked() int {
	if len(e.steps) == 0 {
		return 0
	}
	done := 0
	for i := range e.steps {
		if e.steps[i].Status == models.StepStatusCompleted || e.steps[i].Status == models.StepStatusSkipped {
			done++
		}
	}
	e.progress = int(math.Round(100 * float64(done) / float64(len(e.steps))))
	return e.progress
}

func (e *Engine) appendLog(line string) {
	e.mu.Lock()
	e.appendLogLocked(line)
	e.mu.Unlock()
}

func (e *Engine) appendLogLocked(line string) {
	e.logs = append(e.logs, line)
}

func (e *Engine) recordStep(ctx context.Context, buildID, stepID string, status models.StepStatus, logText string) {
	if buildID == "" {
		return
	}
	if err := e.recorder.StepRecorded(ctx, buildID, stepID, status, logText); err != nil {
		e.logger.Error("failed to record step outcome", "step", stepID, "error", err)
		e.notifier.Notify("Operation failed", fmt.Sprintf("failed to record step %s: %v", stepID, err))
	}
}

func (e *Engine) recordProgress(ctx context.Context, buildID string, status models.BuildStatus, phase models.BuildPhase, currentStepID string, progress int) {
	if buildID == "" {
		return
	}
	if err := e.recorder.ProgressChanged(ctx, buildID, status, phase, currentStepID, progress); err != nil {
		e.logger.Error("failed to record build progress", "build", buildID, "error", err)
		e.notifier.Notify("Operation failed", fmt.Sprintf("failed to update build %s: %v", buildID, err))
	}
}

func newInputRequest(step models.BuildStep) *models.InputRequest {
	if isPasswordStep(step.ID) {
		return &models.InputRequest{
			StepID:   step.ID,
			Type:     models.InputTypePassword,
			Prompt:   fmt.Sprintf("Enter password for %q", step.Name),
			Required: true,
		}
	}
	return &models.InputRequest{
		StepID: step.ID,
		Type:   models.InputTypeText,
		Prompt: fmt.Sprintf("Input required for %q", step.Name),
	}
}

func isPasswordStep(stepID string) bool {
	return strings.Contains(stepID, "password")
}
