package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// CreateBuild inserts a new build record
func (db *DB) CreateBuild(build *models.BuildRecord) error {
	query := `
		INSERT INTO builds (id, config_id, status, phase, current_step_id, progress, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	configID := sql.NullString{String: build.ConfigID, Valid: build.ConfigID != ""}
	currentStep := sql.NullString{String: build.CurrentStepID, Valid: build.CurrentStepID != ""}

	_, err := db.Exec(query,
		build.ID,
		configID,
		build.Status,
		build.Phase,
		currentStep,
		build.Progress,
		build.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert build: %w", err)
	}

	return nil
}

// GetBuild retrieves a build record by id
func (db *DB) GetBuild(id string) (*models.BuildRecord, error) {
	query := `
		SELECT id, config_id, status, phase, current_step_id, progress, started_at, completed_at
		FROM builds
		WHERE id = ?
	`

	var build models.BuildRecord
	var configID, currentStep sql.NullString
	var completedAt sql.NullTime

	err := db.QueryRow(query, id).Scan(
		&build.ID,
		&configID,
		&build.Status,
		&build.Phase,
		&currentStep,
		&build.Progress,
		&build.StartedAt,
		&completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query build: %w", err)
	}

	build.ConfigID = configID.String
	build.CurrentStepID = currentStep.String
	if completedAt.Valid {
		build.CompletedAt = &completedAt.Time
	}

	return &build, nil
}

// UpdateBuildProgress updates the mutable fields of a build record. Terminal
// statuses set completed_at and are never overwritten by later updates.
func (db *DB) UpdateBuildProgress(id string, status models.BuildStatus, phase models.BuildPhase, currentStepID string, progress int) error {
	currentStep := sql.NullString{String: currentStepID, Valid: currentStepID != ""}

	var completedAt sql.NullTime
	if status == models.BuildStatusCompleted || status == models.BuildStatusFailed {
		completedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}

	query := `
		UPDATE builds
		SET status = CASE WHEN status IN ('completed', 'failed') THEN status ELSE ? END,
			phase = ?, current_step_id = ?, progress = ?,
			completed_at = COALESCE(completed_at, ?)
		WHERE id = ?
	`

	_, err := db.Exec(query, status, phase, currentStep, progress, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update build: %w", err)
	}

	return nil
}

// FailBuild marks a build as failed
func (db *DB) FailBuild(id string) error {
	query := `
		UPDATE builds
		SET status = ?, completed_at = COALESCE(completed_at, ?)
		WHERE id = ?
	`

	_, err := db.Exec(query, models.BuildStatusFailed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark build as failed: %w", err)
	}

	return nil
}

// ListBuilds retrieves builds ordered by start time, newest first
func (db *DB) ListBuilds(limit int) ([]*models.BuildRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, config_id, status, phase, current_step_id, progress, started_at, completed_at
		FROM builds
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var builds []*models.BuildRecord
	for rows.Next() {
		var build models.BuildRecord
		var configID, currentStep sql.NullString
		var completedAt sql.NullTime

		err := rows.Scan(
			&build.ID,
			&configID,
			&build.Status,
			&build.Phase,
			&currentStep,
			&build.Progress,
			&build.StartedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build row: %w", err)
		}

		build.ConfigID = configID.String
		build.CurrentStepID = currentStep.String
		if completedAt.Valid {
			build.CompletedAt = &completedAt.Time
		}

		builds = append(builds, &build)
	}

	return builds, rows.Err()
}
