package snapshot

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]model.Snapshot)}
}

func (m *MemoryStore) Save(_ context.Context, examID uuid.UUID, userID int, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[config.CacheKey.SnapshotKey(examID, userID)] = cloneSnapshot(snap)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, examID uuid.UUID, userID int) (model.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.data[config.CacheKey.SnapshotKey(examID, userID)]
	if !ok {
		return model.Snapshot{}, false, nil
	}
	return cloneSnapshot(snap), true, nil
}

func (m *MemoryStore) Clear(_ context.Context, examID uuid.UUID, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, config.CacheKey.SnapshotKey(examID, userID))
	return nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func cloneSnapshot(s model.Snapshot) model.Snapshot {
	out := s
	out.SelectedOptions = make(map[int]model.OptionKey, len(s.SelectedOptions))
	for k, v := range s.SelectedOptions {
		out.SelectedOptions[k] = v
	}
	out.MarkedForReview = append([]int(nil), s.MarkedForReview...)
	return out
}
