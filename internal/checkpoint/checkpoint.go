package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Checkpoint records which batches of a run-all invocation are committed.
type Checkpoint struct {
	RunID     string       `json:"run_id"`
	Input     string       `json:"input"`
	BatchSize int          `json:"batch_size"`
	Completed []BatchRange `json:"completed_batches"`
	LastBatch *BatchRange  `json:"last_committed_batch,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BatchRange describes one committed batch.
type BatchRange struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Checksum string `json:"checksum,omitempty"`
}

// IsCompleted reports whether the batch [start, end) was committed.
func (c *Checkpoint) IsCompleted(start, end int) bool {
	for _, b := range c.Completed {
		if b.Start == start && b.End == end {
			return true
		}
	}
	return false
}

// MarkCompleted records a committed batch, replacing an earlier entry for
// the same range.
func (c *Checkpoint) MarkCompleted(b BatchRange) {
	for i := range c.Completed {
		if c.Completed[i].Start == b.Start && c.Completed[i].End == b.End {
			c.Completed[i] = b
			c.LastBatch = &c.Completed[i]
			return
		}
	}
	c.Completed = append(c.Completed, b)
	sort.Slice(c.Completed, func(i, j int) bool { return c.Completed[i].Start < c.Completed[j].Start })
	for i := range c.Completed {
		if c.Completed[i].Start == b.Start {
			c.LastBatch = &c.Completed[i]
		}
	}
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the current checkpoint.
	Load(ctx context.Context) (*Checkpoint, error)

	// Save persists the checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`  // Directory for checkpoint files
	Name    string `yaml:"name"` // Distinguishes runs sharing a directory
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	// Ensure checkpoint directory exists
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &fileManager{dir: cfg.Dir, name: name}, nil
}

// fileManager persists checkpoints to local files.
type fileManager struct {
	dir  string
	name string
}

// checkpointPath returns the path to the checkpoint file for a run name.
func (m *fileManager) checkpointPath(name string) string {
	name = strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(name)
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s.json", name))
}

// Load reads the checkpoint from file.
func (m *fileManager) Load(ctx context.Context) (*Checkpoint, error) {
	return m.loadFromPath(m.checkpointPath(m.name))
}

// loadFromPath reads a checkpoint from a specific file.
func (m *fileManager) loadFromPath(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}

	return &cp, nil
}

// Save persists the checkpoint to file.
func (m *fileManager) Save(ctx context.Context, cp *Checkpoint) error {
	path := m.checkpointPath(m.name)

	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// noopManager is a no-op checkpoint manager for when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, cp *Checkpoint) error {
	return nil
}
