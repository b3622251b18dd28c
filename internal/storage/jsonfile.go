package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"instagram-dispatcher/pkg/types"
)

// JSONFile is the file-based result sink: every recorded result is appended
// in memory and the whole file rewritten atomically, so a crash mid-run never
// leaves a truncated results file behind.
type JSONFile struct {
	path    string
	logger  *logrus.Logger
	mu      sync.Mutex
	results []*types.ActionResult
}

func NewJSONFile(path string, logger *logrus.Logger) (*JSONFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	jf := &JSONFile{
		path:   path,
		logger: logger,
	}

	// Carry forward results from an earlier run of the same file.
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &jf.results); err != nil {
			logger.Warnf("Ignoring unreadable results file %s: %v", path, err)
			jf.results = nil
		}
	}

	return jf, nil
}

func (jf *JSONFile) Record(ctx context.Context, result *types.ActionResult) error {
	jf.mu.Lock()
	defer jf.mu.Unlock()

	jf.results = append(jf.results, result)
	return jf.flushLocked()
}

// flushLocked writes the results through a temp file and renames it over the
// target. Callers must hold mu.
func (jf *JSONFile) flushLocked() error {
	data, err := json.MarshalIndent(jf.results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	tmpPath := jf.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp results file: %w", err)
	}

	if err := os.Rename(tmpPath, jf.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace results file: %w", err)
	}

	return nil
}

func (jf *JSONFile) Close() error {
	jf.mu.Lock()
	defer jf.mu.Unlock()

	jf.logger.Infof("Saved %d results to %s", len(jf.results), jf.path)
	return nil
}
