// Package checkpoint stores indexer snapshots on the local filesystem
package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
)

// Ensure FileStore implements CheckpointRepository
var _ repositories.CheckpointRepository = (*FileStore)(nil)

// FileStore keeps one checkpoint file per chain under a base directory
type FileStore struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewFileStore creates a store writing checkpoint-<chainID>.json under baseDir
func NewFileStore(baseDir string, chainID int64, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   filepath.Join(baseDir, "checkpoint-"+strconv.FormatInt(chainID, 10)+".json"),
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the checkpoint file location
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the snapshot to a temp file beside the destination, then renames it into place
func (s *FileStore) Save(_ context.Context, state *entities.IndexerState, lastSyncedBlock int64, chainID int64) error {
	data, err := entities.EncodeCheckpoint(state, lastSyncedBlock, chainID, s.now())
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	return nil
}

// Load reads the checkpoint. Any read or decode problem is logged and reported as absent.
func (s *FileStore) Load(_ context.Context) (*entities.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read checkpoint", zap.String("path", s.path), zap.Error(err))
		}
		return nil, nil
	}

	cp, err := entities.DecodeCheckpoint(data)
	if err != nil {
		s.logger.Warn("Ignoring unusable checkpoint", zap.String("path", s.path), zap.Error(err))
		return nil, nil
	}

	return cp, nil
}
