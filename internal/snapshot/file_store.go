package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// FileStore keeps every snapshot in one JSON document on disk. Writes go to a
// temp file in the same directory and are renamed over the original.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates the parent directory if needed. The file itself is
// created on first save.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Save(_ context.Context, examID uuid.UUID, userID int, snap model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	all[config.CacheKey.SnapshotKey(examID, userID)] = snap
	return f.write(all)
}

func (f *FileStore) Load(_ context.Context, examID uuid.UUID, userID int) (model.Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return model.Snapshot{}, false, err
	}
	snap, ok := all[config.CacheKey.SnapshotKey(examID, userID)]
	return snap, ok, nil
}

func (f *FileStore) Clear(_ context.Context, examID uuid.UUID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	key := config.CacheKey.SnapshotKey(examID, userID)
	if _, ok := all[key]; !ok {
		return nil
	}
	delete(all, key)
	return f.write(all)
}

func (f *FileStore) read() (map[string]model.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]model.Snapshot), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	all := make(map[string]model.Snapshot)
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return all, nil
}

func (f *FileStore) write(all map[string]model.Snapshot) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshots: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".snapshots-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}
