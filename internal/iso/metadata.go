package iso

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// MetadataStore keeps the JSON index of generated ISOs: one array, read,
// modified and written as a whole on each new image. A corrupt or missing
// file is treated as an empty list, never as a fatal error.
type MetadataStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewMetadataStore creates a store backed by the given file path.
func NewMetadataStore(path string, logger *slog.Logger) *MetadataStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataStore{
		path:   path,
		logger: logger.With("component", "iso-metadata"),
	}
}

// Load returns all recorded ISO metadata.
func (s *MetadataStore) Load() []models.IsoMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *MetadataStore) loadLocked() []models.IsoMetadata {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read ISO metadata index, starting empty", "path", s.path, "error", err)
		}
		return nil
	}

	var records []models.IsoMetadata
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("ISO metadata index is corrupt, starting empty", "path", s.path, "error", err)
		return nil
	}
	return records
}

// Append records a generated ISO, replacing any existing record with the
// same (build id, iso name) key.
func (s *MetadataStore) Append(meta models.IsoMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.loadLocked()

	replaced := false
	for i := range records {
		if records[i].BuildID == meta.BuildID && records[i].IsoName == meta.IsoName {
			records[i] = meta
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, meta)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ISO metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write ISO metadata: %w", err)
	}

	return nil
}
