package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore(t *testing.T) {
	t.Run("test rejects empty work dir", func(t *testing.T) {
		if _, err := NewStore(""); !errors.Is(err, ErrEmptyWorkDir) {
			t.Errorf("expected ErrEmptyWorkDir, got %v", err)
		}
	})

	t.Run("test creates work and log dirs", func(t *testing.T) {
		workDir := filepath.Join(t.TempDir(), "run1")
		if _, err := NewStore(workDir); err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		if _, err := os.Stat(filepath.Join(workDir, "log")); err != nil {
			t.Errorf("log dir not created: %v", err)
		}
	})

	t.Run("test save writes artifact before returning", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}

		state := []byte("model-state-bytes")
		ck, err := store.Save(state, 2)
		if err != nil {
			t.Fatalf("failed to save checkpoint: %v", err)
		}
		if ck.TrainStep != 2 {
			t.Errorf("checkpoint train step = %d, want 2", ck.TrainStep)
		}
		if filepath.Base(ck.Path) != "agent_state.iter2.bin" {
			t.Errorf("unexpected checkpoint name %q", filepath.Base(ck.Path))
		}

		got, err := os.ReadFile(ck.Path)
		if err != nil {
			t.Fatalf("checkpoint artifact missing: %v", err)
		}
		if string(got) != string(state) {
			t.Errorf("artifact content = %q, want %q", got, state)
		}
	})

	t.Run("test retire removes the file", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}

		ck, err := store.Save([]byte("state"), 1)
		if err != nil {
			t.Fatalf("failed to save checkpoint: %v", err)
		}
		if err := store.Retire(ck); err != nil {
			t.Fatalf("failed to retire checkpoint: %v", err)
		}
		if _, err := os.Stat(ck.Path); !os.IsNotExist(err) {
			t.Errorf("retired checkpoint still on disk: %v", err)
		}
	})

	t.Run("test retire of missing file reports error", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}

		if err := store.Retire(Checkpoint{Path: store.Path(99)}); err == nil {
			t.Error("expected error retiring a missing checkpoint, got nil")
		}
	})

	t.Run("test snapshot path layout", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		got := store.SnapshotPath(10)
		if filepath.Base(got) != "program_cache.iter10.json" {
			t.Errorf("snapshot file name = %q", filepath.Base(got))
		}
		if filepath.Base(filepath.Dir(got)) != "log" {
			t.Errorf("snapshot dir = %q, want log", filepath.Dir(got))
		}
	})
}
