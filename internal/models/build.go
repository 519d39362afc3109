package models

import "time"

// BuildStatus represents the overall status of a build attempt
type BuildStatus string

const (
	BuildStatusPending    BuildStatus = "pending"
	BuildStatusInProgress BuildStatus = "in_progress"
	BuildStatusCompleted  BuildStatus = "completed"
	BuildStatusFailed     BuildStatus = "failed"
)

// BuildRecord is the persisted state of one build attempt. Created once per
// attempt, updated on every step-status change, terminal states set
// CompletedAt.
type BuildRecord struct {
	ID            string      `json:"id" db:"id"`
	ConfigID      string      `json:"config_id,omitempty" db:"config_id"`
	Status        BuildStatus `json:"status" db:"status"`
	Phase         BuildPhase  `json:"phase" db:"phase"`
	CurrentStepID string      `json:"current_step_id,omitempty" db:"current_step_id"`
	Progress      int         `json:"progress" db:"progress"`
	StartedAt     time.Time   `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// StepRecord is the persisted outcome of a single step within a build,
// keyed by (build id, step id).
type StepRecord struct {
	BuildID   string     `json:"build_id" db:"build_id"`
	StepID    string     `json:"step_id" db:"step_id"`
	Status    StepStatus `json:"status" db:"status"`
	Log       string     `json:"log,omitempty" db:"log"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// BuildConfig describes where a build reads and writes. Immutable once
// created except for deletion.
type BuildConfig struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	TargetDisk  string    `json:"target_disk" db:"target_disk"`
	SourcesPath string    `json:"sources_path" db:"sources_path"`
	ScriptsPath string    `json:"scripts_path" db:"scripts_path"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Bootloader identifies the bootloader installed into a generated ISO.
type Bootloader string

const (
	BootloaderGrub     Bootloader = "grub"
	BootloaderIsolinux Bootloader = "isolinux"
	BootloaderNone     Bootloader = "none"
)

// IsoMetadata describes one generated ISO image.
type IsoMetadata struct {
	BuildID     string     `json:"build_id"`
	IsoName     string     `json:"iso_name"`
	Timestamp   time.Time  `json:"timestamp"`
	ConfigName  string     `json:"config_name,omitempty"`
	OutputPath  string     `json:"output_path"`
	Bootable    bool       `json:"bootable"`
	Bootloader  Bootloader `json:"bootloader"`
	VolumeLabel string     `json:"volume_label"`
}

// Actor identifies who is performing a persistence mutation. All persisted
// mutations require a non-empty actor.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Valid reports whether the actor carries an identity.
func (a Actor) Valid() bool {
	return a.ID != ""
}
