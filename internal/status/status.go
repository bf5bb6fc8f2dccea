// Package status shares the trainer's latest state with other processes
// through a single JSON file. Writes are atomic so a reader never sees a
// torn record.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"DeepTrader/internal/model"
)

// Writer owns the status file path.
type Writer struct {
	path string
}

// NewWriter creates the parent directory if needed.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("status file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create status dir: %w", err)
		}
	}
	return &Writer{path: path}, nil
}

// Write stamps the snapshot and replaces the status file.
func (w *Writer) Write(s model.StatusSnapshot) error {
	s.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// Read loads the latest status snapshot. A missing file returns nil
// without error.
func Read(path string) (*model.StatusSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read status: %w", err)
	}
	var s model.StatusSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &s, nil
}
