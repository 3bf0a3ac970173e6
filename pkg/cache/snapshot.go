package cache

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteSnapshot serializes the full cache content to path as a
// pretty-printed JSON object mapping environment ids to program arrays.
// It reads a snapshot first, so the cache is never blocked or mutated
// while the file is written.
func WriteSnapshot(c Cache, path string) error {
	data, err := json.MarshalIndent(c.AllPrograms(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode program cache snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write program cache snapshot: %w", err)
	}
	return nil
}
