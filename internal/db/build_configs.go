package db

import (
	"database/sql"
	"fmt"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// CreateBuildConfig inserts a new build configuration
func (db *DB) CreateBuildConfig(cfg *models.BuildConfig) error {
	query := `
		INSERT INTO build_configs (id, name, target_disk, sources_path, scripts_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		cfg.ID,
		cfg.Name,
		cfg.TargetDisk,
		cfg.SourcesPath,
		cfg.ScriptsPath,
		cfg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert build config: %w", err)
	}

	return nil
}

// GetBuildConfig retrieves a build configuration by id
func (db *DB) GetBuildConfig(id string) (*models.BuildConfig, error) {
	query := `
		SELECT id, name, target_disk, sources_path, scripts_path, created_at
		FROM build_configs
		WHERE id = ?
	`

	var cfg models.BuildConfig

	err := db.QueryRow(query, id).Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.TargetDisk,
		&cfg.SourcesPath,
		&cfg.ScriptsPath,
		&cfg.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query build config: %w", err)
	}

	return &cfg, nil
}

// ListBuildConfigs retrieves all build configurations, newest first
func (db *DB) ListBuildConfigs() ([]*models.BuildConfig, error) {
	query := `
		SELECT id, name, target_disk, sources_path, scripts_path, created_at
		FROM build_configs
		ORDER BY created_at DESC
	`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query build configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.BuildConfig
	for rows.Next() {
		var cfg models.BuildConfig

		err := rows.Scan(
			&cfg.ID,
			&cfg.Name,
			&cfg.TargetDisk,
			&cfg.SourcesPath,
			&cfg.ScriptsPath,
			&cfg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build config row: %w", err)
		}

		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeleteBuildConfig removes a build configuration
func (db *DB) DeleteBuildConfig(id string) error {
	result, err := db.Exec("DELETE FROM build_configs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete build config: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("build config not found: %s", id)
	}

	return nil
}
