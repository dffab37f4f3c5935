package repositories

import (
	"context"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
)

// CheckpointRepository persists full indexer snapshots for warm restarts
type CheckpointRepository interface {
	// Save atomically replaces the stored checkpoint
	Save(ctx context.Context, state *entities.IndexerState, lastSyncedBlock int64, chainID int64) error

	// Load returns the stored checkpoint, or nil when it is absent, unreadable
	// or written by another format version
	Load(ctx context.Context) (*entities.Checkpoint, error)
}
