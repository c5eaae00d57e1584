package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logging "wave-portal/internal/infra/log"

	"go.uber.org/zap"
)

const DefaultDir = "data_out"

// Store - JSON snapshots under one directory (data_out by default)
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

func (s *Store) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// SaveJSON writes v to filename, through a temp file so readers never see half a file
func (s *Store) SaveJSON(filename string, v interface{}) error {
	fullPath := s.Path(filename)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create jsons directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filename, err)
	}

	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to save %s: %w", filename, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save %s: %w", filename, err)
	}
	return nil
}

// LoadJSON reads filename into v. Returns false without error when the file
// does not exist yet or is empty.
func (s *Store) LoadJSON(filename string, v interface{}) (bool, error) {
	fullPath := s.Path(filename)

	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		logging.LogDebug("Snapshot file does not exist yet", zap.String("file", fullPath))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	if trimmed := strings.TrimSpace(string(data)); trimmed == "" || trimmed == "{}" {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}
	return true, nil
}
