package models

import "time"

// BuildPhase represents a stage of the LFS build
type BuildPhase string

const (
	PhaseInitialSetup BuildPhase = "Initial Setup"
	PhaseLFSUserBuild BuildPhase = "LFS-User Build"
	PhaseChrootSetup  BuildPhase = "Chroot Setup"
	PhaseChrootBuild  BuildPhase = "Chroot Build"
	PhaseSystemConfig BuildPhase = "System Configuration"
	PhaseFinalSteps   BuildPhase = "Final Steps"
)

// Phases lists all build phases in execution order.
var Phases = []BuildPhase{
	PhaseInitialSetup,
	PhaseLFSUserBuild,
	PhaseChrootSetup,
	PhaseChrootBuild,
	PhaseSystemConfig,
	PhaseFinalSteps,
}

// PhaseIndex returns the position of a phase in the fixed ordering, or -1.
func PhaseIndex(phase BuildPhase) int {
	for i, p := range Phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// UserContext is the notional privilege level a step runs under.
// Descriptive only; nothing is sandboxed.
type UserContext string

const (
	ContextRoot      UserContext = "root"
	ContextBuildUser UserContext = "build-user"
	ContextChroot    UserContext = "chroot"
)

// PhaseContext returns the user context active while a phase executes.
// Context switches happen exactly at the LFS-User Build and Chroot Setup
// phase boundaries.
func PhaseContext(phase BuildPhase) UserContext {
	switch phase {
	case PhaseInitialSetup:
		return ContextRoot
	case PhaseLFSUserBuild:
		return ContextBuildUser
	case PhaseChrootSetup, PhaseChrootBuild, PhaseSystemConfig, PhaseFinalSteps:
		return ContextChroot
	default:
		return ContextRoot
	}
}

// StepStatus represents the status of a single build step
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in-progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// Terminal reports whether no further automatic transition happens from s.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// BuildStep is a single step of the build sequence. The catalog defines an
// immutable ordered sequence at process start; the run-loop only mutates
// Status within its own copy.
type BuildStep struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Phase         BuildPhase    `json:"phase"`
	Context       UserContext   `json:"context"`
	Status        StepStatus    `json:"status"`
	RequiresInput bool          `json:"requires_input,omitempty"`
	Command       string        `json:"command,omitempty"`
	EstimatedTime time.Duration `json:"estimated_time,omitempty"`
	Dependencies  []string      `json:"dependencies,omitempty"`
}

// GroupByPhase groups steps by phase, preserving relative order within each
// phase.
func GroupByPhase(steps []BuildStep) map[BuildPhase][]BuildStep {
	byPhase := make(map[BuildPhase][]BuildStep)
	for _, step := range steps {
		byPhase[step.Phase] = append(byPhase[step.Phase], step)
	}
	return byPhase
}

// PhaseCompletion reports, per phase, whether every step in it is completed
// or skipped.
func PhaseCompletion(byPhase map[BuildPhase][]BuildStep) map[BuildPhase]bool {
	completion := make(map[BuildPhase]bool, len(byPhase))
	for phase, steps := range byPhase {
		done := true
		for _, step := range steps {
			if step.Status != StepStatusCompleted && step.Status != StepStatusSkipped {
				done = false
				break
			}
		}
		completion[phase] = done
	}
	return completion
}
