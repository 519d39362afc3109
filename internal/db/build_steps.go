package db

import (
	"fmt"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// UpsertBuildStep inserts or updates the step record keyed by
// (build id, step id).
func (db *DB) UpsertBuildStep(record *models.StepRecord) error {
	query := `
		INSERT INTO build_steps (build_id, step_id, status, log, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(build_id, step_id) DO UPDATE SET
			status = excluded.status,
			log = excluded.log,
			updated_at = excluded.updated_at
	`

	_, err := db.Exec(query,
		record.BuildID,
		record.StepID,
		record.Status,
		record.Log,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert build step: %w", err)
	}

	return nil
}

// GetBuildSteps retrieves all step records for a build
func (db *DB) GetBuildSteps(buildID string) ([]*models.StepRecord, error) {
	query := `
		SELECT build_id, step_id, status, log, updated_at
		FROM build_steps
		WHERE build_id = ?
		ORDER BY updated_at ASC
	`

	rows, err := db.Query(query, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query build steps: %w", err)
	}
	defer rows.Close()

	var records []*models.StepRecord
	for rows.Next() {
		var record models.StepRecord

		err := rows.Scan(
			&record.BuildID,
			&record.StepID,
			&record.Status,
			&record.Log,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build step row: %w", err)
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}
