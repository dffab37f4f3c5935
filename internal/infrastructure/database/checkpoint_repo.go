package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
)

// Ensure CheckpointRepo implements CheckpointRepository
var _ repositories.CheckpointRepository = (*CheckpointRepo)(nil)

const checkpointSchema = `
	CREATE TABLE IF NOT EXISTS indexer_checkpoints (
		chain_id          BIGINT PRIMARY KEY,
		version           INTEGER NOT NULL,
		last_synced_block BIGINT NOT NULL,
		payload           JSONB NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

type checkpointRow struct {
	Version int    `db:"version"`
	Payload []byte `db:"payload"`
}

// CheckpointRepo stores one checkpoint row per chain in PostgreSQL
type CheckpointRepo struct {
	db      *sqlx.DB
	chainID int64
	logger  *zap.Logger
	now     func() time.Time
}

// NewCheckpointRepo creates a checkpoint repository for one chain
func NewCheckpointRepo(db *sqlx.DB, chainID int64, logger *zap.Logger) *CheckpointRepo {
	return &CheckpointRepo{db: db, chainID: chainID, logger: logger, now: time.Now}
}

// EnsureSchema creates the checkpoint table if it does not exist
func (r *CheckpointRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, checkpointSchema); err != nil {
		return fmt.Errorf("failed to create checkpoint table: %w", err)
	}
	return nil
}

// Save upserts the chain's checkpoint in a single transaction
func (r *CheckpointRepo) Save(ctx context.Context, state *entities.IndexerState, lastSyncedBlock int64, chainID int64) error {
	payload, err := entities.EncodeCheckpoint(state, lastSyncedBlock, chainID, r.now())
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO indexer_checkpoints (chain_id, version, last_synced_block, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id) DO UPDATE SET
			version = EXCLUDED.version,
			last_synced_block = EXCLUDED.last_synced_block,
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`
	if _, err := tx.ExecContext(ctx, query, chainID, entities.CheckpointVersion, lastSyncedBlock, payload); err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Load returns the chain's checkpoint; missing or unusable rows are reported as absent
func (r *CheckpointRepo) Load(ctx context.Context) (*entities.Checkpoint, error) {
	var row checkpointRow
	query := `SELECT version, payload FROM indexer_checkpoints WHERE chain_id = $1`

	if err := r.db.GetContext(ctx, &row, query, r.chainID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("Failed to read checkpoint", zap.Int64("chain_id", r.chainID), zap.Error(err))
		}
		return nil, nil
	}

	if row.Version != entities.CheckpointVersion {
		r.logger.Warn("Ignoring checkpoint from another version",
			zap.Int64("chain_id", r.chainID),
			zap.Int("version", row.Version),
		)
		return nil, nil
	}

	cp, err := entities.DecodeCheckpoint(row.Payload)
	if err != nil {
		r.logger.Warn("Ignoring unusable checkpoint", zap.Int64("chain_id", r.chainID), zap.Error(err))
		return nil, nil
	}
	return cp, nil
}
