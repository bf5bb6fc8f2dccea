package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"DeepTrader/internal/network"
)

// Meta describes a persisted best checkpoint.
type Meta struct {
	ModelID        string    `json:"model_id"`
	RunID          string    `json:"run_id"`
	Episode        int       `json:"episode"`
	PortfolioValue float64   `json:"portfolio_value"`
	StateSize      int       `json:"state_size"`
	SavedAt        time.Time `json:"saved_at"`
}

// Store persists the best network parameters. SaveBest must be atomic so a
// concurrent reader never observes a partially written checkpoint; LoadBest
// returns nils without error when no checkpoint exists yet.
type Store interface {
	SaveBest(w *network.Weights, meta Meta) error
	LoadBest() (*network.Weights, *Meta, error)
}

const (
	weightsFile = "best_weights.msgpack"
	metaFile    = "best_meta.json"
)

// FileStore keeps the checkpoint as two files in one directory: msgpack
// weights and a JSON metadata record. Writes go to a temp file first and
// are renamed into place.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// SaveBest writes the weights, then the metadata record. SavedAt is set
// here.
func (s *FileStore) SaveBest(w *network.Weights, meta Meta) error {
	if w == nil {
		return fmt.Errorf("nil weights")
	}
	blob, err := msgpack.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, weightsFile), blob); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}

	meta.SavedAt = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, metaFile), data); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

// LoadBest reads the most recent checkpoint. A missing checkpoint is not
// an error.
func (s *FileStore) LoadBest() (*network.Weights, *Meta, error) {
	blob, err := os.ReadFile(filepath.Join(s.dir, weightsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read weights: %w", err)
	}
	var w network.Weights
	if err := msgpack.Unmarshal(blob, &w); err != nil {
		return nil, nil, fmt.Errorf("decode weights: %w", err)
	}

	meta := &Meta{}
	data, err := os.ReadFile(filepath.Join(s.dir, metaFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, meta); err != nil {
			return nil, nil, fmt.Errorf("decode meta: %w", err)
		}
	case os.IsNotExist(err):
		// Weights without metadata still load.
	default:
		return nil, nil, fmt.Errorf("read meta: %w", err)
	}
	return &w, meta, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// NoopStore discards checkpoints. Used when persistence is disabled.
type NoopStore struct{}

func (NoopStore) SaveBest(*network.Weights, Meta) error { return nil }

func (NoopStore) LoadBest() (*network.Weights, *Meta, error) { return nil, nil, nil }
