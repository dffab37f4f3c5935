package services

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/domain/events"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

// LogSource fetches tagged protocol logs
type LogSource interface {
	FetchLogs(ctx context.Context, source events.Source, addresses []common.Address, fromBlock, toBlock int64) ([]ethereum.TaggedLog, error)
}

// BlockTimestamper resolves block timestamps
type BlockTimestamper interface {
	BlockTimestamps(ctx context.Context, blocks []uint64) (map[uint64]uint64, error)
}

// SyncContracts are the emitters a range is read from. Zero addresses are skipped.
type SyncContracts struct {
	Morpho                common.Address
	AdaptiveCurveIrm      common.Address
	PreLiquidationFactory common.Address
	Vaults                []common.Address
}

// RangeSyncer replays every tracked event of a block range into a state
type RangeSyncer struct {
	logs   LogSource
	blocks BlockTimestamper
	logger *zap.Logger
}

// NewRangeSyncer creates a new range syncer
func NewRangeSyncer(logs LogSource, blocks BlockTimestamper, logger *zap.Logger) *RangeSyncer {
	return &RangeSyncer{
		logs:   logs,
		blocks: blocks,
		logger: logger,
	}
}

// SyncRange applies [fromBlock, toBlock] to state in (block, log index) order.
// state is left partially mutated on error, so callers pass a copy.
func (s *RangeSyncer) SyncRange(ctx context.Context, contracts SyncContracts, state *entities.IndexerState, fromBlock, toBlock int64) error {
	logs, err := s.fetch(ctx, contracts, fromBlock, toBlock)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	sort.SliceStable(logs, func(i, j int) bool {
		a, b := logs[i].Log, logs[j].Log
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.Index < b.Index
	})

	timestamps, err := s.blocks.BlockTimestamps(ctx, distinctBlocks(logs))
	if err != nil {
		return fmt.Errorf("failed to fetch block timestamps: %w", err)
	}

	applied := 0
	for _, tl := range logs {
		ev, err := ethereum.ParseLog(tl.Source, tl.Log)
		if err != nil {
			return fmt.Errorf("failed to decode log %s#%d: %w", tl.Log.TxHash.Hex(), tl.Log.Index, err)
		}
		if ev == nil {
			continue
		}

		ts, ok := timestamps[tl.Log.BlockNumber]
		if !ok {
			return fmt.Errorf("missing timestamp for block %d", tl.Log.BlockNumber)
		}
		if err := events.Apply(state, ev, new(big.Int).SetUint64(ts)); err != nil {
			return fmt.Errorf("failed to apply %s at block %d: %w", ev.EventName(), tl.Log.BlockNumber, err)
		}
		applied++
	}

	s.logger.Debug("Synced block range",
		zap.Int64("from", fromBlock),
		zap.Int64("to", toBlock),
		zap.Int("logs", len(logs)),
		zap.Int("applied", applied),
	)
	return nil
}

// fetch reads all sources concurrently and concatenates them in a fixed source order
func (s *RangeSyncer) fetch(ctx context.Context, contracts SyncContracts, fromBlock, toBlock int64) ([]ethereum.TaggedLog, error) {
	type request struct {
		source    events.Source
		addresses []common.Address
	}
	requests := []request{
		{events.SourceMorpho, nonZero(contracts.Morpho)},
		{events.SourceIrm, nonZero(contracts.AdaptiveCurveIrm)},
		{events.SourcePreLiquidation, nonZero(contracts.PreLiquidationFactory)},
		{events.SourceVault, contracts.Vaults},
	}

	results := make([][]ethereum.TaggedLog, len(requests))
	g, gCtx := errgroup.WithContext(ctx)
	for i, req := range requests {
		if len(req.addresses) == 0 {
			continue
		}
		i, req := i, req
		g.Go(func() error {
			logs, err := s.logs.FetchLogs(gCtx, req.source, req.addresses, fromBlock, toBlock)
			if err != nil {
				return err
			}
			results[i] = logs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []ethereum.TaggedLog
	for _, logs := range results {
		all = append(all, logs...)
	}
	return all, nil
}

func distinctBlocks(logs []ethereum.TaggedLog) []uint64 {
	blocks := make([]uint64, 0, len(logs))
	for i, tl := range logs {
		// logs are sorted
		if i > 0 && logs[i-1].Log.BlockNumber == tl.Log.BlockNumber {
			continue
		}
		blocks = append(blocks, tl.Log.BlockNumber)
	}
	return blocks
}

func nonZero(addr common.Address) []common.Address {
	if addr == (common.Address{}) {
		return nil
	}
	return []common.Address{addr}
}
