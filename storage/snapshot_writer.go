package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"divar-ingest/models"
)

// RawSnapshotWriter dumps each parsed raw field set to <token>.json on disk,
// before any normalization. The snapshots are a debugging aid and a replay
// source; a write failure is reported by the caller, never fatal.
// It is safe for concurrent use.
type RawSnapshotWriter struct {
	mu  sync.Mutex
	dir string
}

// NewRawSnapshotWriter creates the output directory if needed.
func NewRawSnapshotWriter(dir string) (*RawSnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("snapshot: create output dir: %w", err)
	}
	return &RawSnapshotWriter{dir: dir}, nil
}

// Write stores the raw field set as pretty-printed JSON named by its token.
// Tokens carrying path separators never reach the filesystem.
func (w *RawSnapshotWriter) Write(raw *models.RawFields) error {
	if raw.ExternalID == "" || raw.ExternalID != filepath.Base(raw.ExternalID) {
		return fmt.Errorf("snapshot: unsafe token %q", raw.ExternalID)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal %s: %w", raw.ExternalID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, raw.ExternalID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}
