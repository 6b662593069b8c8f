// Package snapshot persists in-progress attempt snapshots for autosave and recovery.
package snapshot

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/model"
)

// ErrCorrupt is returned by Load when a stored snapshot cannot be decoded.
var ErrCorrupt = errors.New("snapshot: corrupt record")

// Store is the durable key-value store behind autosave and recovery. Records
// are keyed by (examID, userID); Load reports found=false for a missing key.
type Store interface {
	Save(ctx context.Context, examID uuid.UUID, userID int, snap model.Snapshot) error
	Load(ctx context.Context, examID uuid.UUID, userID int) (model.Snapshot, bool, error)
	Clear(ctx context.Context, examID uuid.UUID, userID int) error
}
