package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var ErrEmptyWorkDir = errors.New("work dir must not be empty")

// Checkpoint identifies one durable snapshot of trainable model state.
// Exactly one checkpoint is current at any time from the learner's
// perspective; the learner owns deletion of the previous one.
type Checkpoint struct {
	Path      string
	TrainStep int
	CreatedAt time.Time
}

// Store owns the checkpoint file lifecycle under a single work dir.
type Store struct {
	workDir string
}

// NewStore creates the work dir (and its log/ subdirectory for cache
// snapshots) if needed.
func NewStore(workDir string) (*Store, error) {
	if workDir == "" {
		return nil, ErrEmptyWorkDir
	}
	if err := os.MkdirAll(filepath.Join(workDir, "log"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	return &Store{workDir: workDir}, nil
}

// Path returns the artifact path for a given train step.
func (s *Store) Path(step int) string {
	return filepath.Join(s.workDir, fmt.Sprintf("agent_state.iter%d.bin", step))
}

// SnapshotPath returns the program-cache snapshot path for a train step.
func (s *Store) SnapshotPath(step int) string {
	return filepath.Join(s.workDir, "log", fmt.Sprintf("program_cache.iter%d.json", step))
}

// Save writes the serialized model state for step and syncs it to stable
// storage before returning. Publication of a checkpoint must only happen
// after Save returns nil: consumers load the file by path and must never
// see a partial artifact.
func (s *Store) Save(state []byte, step int) (Checkpoint, error) {
	path := s.Path(step)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to create checkpoint %s: %w", path, err)
	}
	if _, err := f.Write(state); err != nil {
		f.Close()
		return Checkpoint{}, fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return Checkpoint{}, fmt.Errorf("failed to sync checkpoint %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to close checkpoint %s: %w", path, err)
	}

	return Checkpoint{
		Path:      path,
		TrainStep: step,
		CreatedAt: time.Now(),
	}, nil
}

// Retire deletes a previously-current checkpoint file. Deletion is best
// effort: a slow reader may still be loading the file, and no reference
// counting exists, so callers treat failures as non-fatal.
func (s *Store) Retire(c Checkpoint) error {
	if err := os.Remove(c.Path); err != nil {
		return fmt.Errorf("failed to retire checkpoint %s: %w", c.Path, err)
	}
	return nil
}
