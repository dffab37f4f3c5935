package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Indexer is the indexer surface the runner drives
type Indexer interface {
	Init(ctx context.Context) error
	Sync(ctx context.Context) error
	LastSyncedBlock() int64
	Wait()
}

// Engine runs one liquidation cycle
type Engine interface {
	Run(ctx context.Context) ([]AttemptResult, error)
}

// ChainRunner drives the indexer and engine of one chain. A failing cycle is
// logged and retried on the next tick.
type ChainRunner struct {
	chainID       int64
	indexer       Indexer
	engine        Engine
	pollInterval  time.Duration
	blockInterval int64
	logger        *zap.Logger

	initialized bool
	lastRunAt   int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewChainRunner creates a runner. The engine runs once every blockInterval new blocks.
func NewChainRunner(chainID int64, indexer Indexer, engine Engine, pollInterval time.Duration, blockInterval int, logger *zap.Logger) *ChainRunner {
	if blockInterval <= 0 {
		blockInterval = 1
	}
	return &ChainRunner{
		chainID:       chainID,
		indexer:       indexer,
		engine:        engine,
		pollInterval:  pollInterval,
		blockInterval: int64(blockInterval),
		logger:        logger.With(zap.Int64("chain_id", chainID)),
		lastRunAt:     -1,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the polling loop
func (r *ChainRunner) Start(ctx context.Context) {
	r.logger.Info("Starting chain runner",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int64("block_interval", r.blockInterval),
	)

	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop gracefully stops the runner and waits for the indexer's background work
func (r *ChainRunner) Stop() {
	r.logger.Info("Stopping chain runner")
	close(r.stopCh)
	r.wg.Wait()
	r.indexer.Wait()
}

func (r *ChainRunner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	// Run immediately on start
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs one cycle, isolating panics so other chains keep running
func (r *ChainRunner) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Chain cycle panicked", zap.Any("panic", rec))
		}
	}()

	if err := r.cycle(ctx); err != nil {
		r.logger.Error("Chain cycle failed", zap.Error(err))
	}
}

func (r *ChainRunner) cycle(ctx context.Context) error {
	if !r.initialized {
		if err := r.indexer.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize indexer: %w", err)
		}
		r.initialized = true
	} else if err := r.indexer.Sync(ctx); err != nil {
		return fmt.Errorf("failed to sync indexer: %w", err)
	}

	block := r.indexer.LastSyncedBlock()
	if r.lastRunAt >= 0 && block-r.lastRunAt < r.blockInterval {
		return nil
	}
	r.lastRunAt = block

	results, err := r.engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run liquidation engine: %w", err)
	}

	var liquidated, skipped, failed int
	for _, res := range results {
		switch res.Outcome {
		case OutcomeLiquidated:
			liquidated++
		case OutcomeSkipped:
			skipped++
		default:
			failed++
		}
	}
	if len(results) > 0 {
		r.logger.Info("Liquidation cycle finished",
			zap.Int64("block", block),
			zap.Int("liquidated", liquidated),
			zap.Int("skipped", skipped),
			zap.Int("failed", failed),
		)
	}
	return nil
}
