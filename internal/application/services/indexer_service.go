package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/domain/morpho"
	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

const defaultMaxBlockRange = 10000

// Phase is the indexer lifecycle stage
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseCatchingUp    Phase = "catching-up"
	PhaseSteady        Phase = "steady"
)

// ChainHead reports the latest block
type ChainHead interface {
	HeadBlock(ctx context.Context) (int64, error)
}

// OracleReader reads oracle prices in one batch
type OracleReader interface {
	OraclePrices(ctx context.Context, oracles []common.Address) (map[common.Address]*big.Int, error)
}

// StateSyncer applies a block range to a state
type StateSyncer interface {
	SyncRange(ctx context.Context, contracts SyncContracts, state *entities.IndexerState, fromBlock, toBlock int64) error
}

// IndexerSettings holds the per-chain indexer parameters
type IndexerSettings struct {
	ChainID               int64
	Morpho                common.Address
	AdaptiveCurveIrm      common.Address
	PreLiquidationFactory common.Address
	StartBlock            int64
	MaxBlockRange         int64
	MaxRetries            int
	InitialBackoff        time.Duration
}

// ExtraPosition is a position reported by an off-chain source
type ExtraPosition struct {
	MarketID common.Hash
	User     common.Address
	Position *entities.PositionState
}

// LiquidationCandidate is a position a liquidator can seize collateral from
type LiquidationCandidate struct {
	Position *morpho.AccrualPosition
	Seizable *big.Int
}

// PreLiquidationCandidate is a position seizable through its pre-liquidation contract
type PreLiquidationCandidate struct {
	Position *morpho.PreLiquidationPosition
	Seizable *big.Int
}

// Candidates groups what one scan found
type Candidates struct {
	Liquidations    []LiquidationCandidate
	PreLiquidations []PreLiquidationCandidate
}

// IndexerStatus is a point-in-time view of the indexer
type IndexerStatus struct {
	ChainID         int64            `json:"chain_id"`
	Phase           Phase            `json:"phase"`
	LastSyncedBlock int64            `json:"last_synced_block"`
	Markets         int              `json:"markets"`
	Positions       int              `json:"positions"`
	PreLiquidations int              `json:"pre_liquidation_contracts"`
	Vaults          []common.Address `json:"vaults"`
	Syncing         bool             `json:"syncing"`
}

// IndexerService keeps an event-sourced copy of the protocol state for one chain
type IndexerService struct {
	settings    IndexerSettings
	head        ChainHead
	syncer      StateSyncer
	oracles     OracleReader
	checkpoints repositories.CheckpointRepository
	logger      *zap.Logger

	mu              sync.RWMutex
	state           *entities.IndexerState
	lastSyncedBlock int64
	vaults          []common.Address
	phase           Phase

	// syncMu serializes chunk application and vault backfills
	syncMu  sync.Mutex
	syncing atomic.Bool

	backfills sync.WaitGroup

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewIndexerService creates a new indexer service
func NewIndexerService(
	settings IndexerSettings,
	head ChainHead,
	syncer StateSyncer,
	oracles OracleReader,
	checkpoints repositories.CheckpointRepository,
	logger *zap.Logger,
) *IndexerService {
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = 1
	}
	if settings.MaxBlockRange <= 0 {
		settings.MaxBlockRange = defaultMaxBlockRange
	}
	return &IndexerService{
		settings:        settings,
		head:            head,
		syncer:          syncer,
		oracles:         oracles,
		checkpoints:     checkpoints,
		logger:          logger.With(zap.Int64("chain_id", settings.ChainID)),
		state:           entities.NewIndexerState(),
		lastSyncedBlock: settings.StartBlock - 1,
		phase:           PhaseUninitialized,
		sleep:           sleepContext,
		now:             time.Now,
	}
}

// Init restores the last checkpoint, or starts from the configured block, then catches up
func (s *IndexerService) Init(ctx context.Context) error {
	cp, err := s.checkpoints.Load(ctx)
	if err != nil {
		s.logger.Warn("Failed to load checkpoint, starting cold", zap.Error(err))
		cp = nil
	}
	if cp != nil && cp.ChainID != s.settings.ChainID {
		s.logger.Warn("Ignoring checkpoint of another chain", zap.Int64("checkpoint_chain_id", cp.ChainID))
		cp = nil
	}

	s.mu.Lock()
	if cp != nil {
		s.state = cp.State
		s.lastSyncedBlock = cp.LastSyncedBlock
		s.logger.Info("Restored checkpoint",
			zap.Int64("last_synced_block", cp.LastSyncedBlock),
			zap.Int("markets", len(cp.State.Markets)),
			zap.Int("positions", len(cp.State.Positions)),
		)
	} else {
		s.state = entities.NewIndexerState()
		s.lastSyncedBlock = s.settings.StartBlock - 1
		s.logger.Info("Starting from configured block", zap.Int64("start_block", s.settings.StartBlock))
	}
	s.phase = PhaseCatchingUp
	s.mu.Unlock()
	lastSyncedBlock.WithLabelValues(chainLabel(s.settings.ChainID)).Set(float64(s.LastSyncedBlock()))

	return s.Sync(ctx)
}

// Sync catches the state up to the chain head. A call made while another sync
// is running returns immediately.
func (s *IndexerService) Sync(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.syncing.Store(false)

	head, err := s.head.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get head block: %w", err)
	}

	from := s.LastSyncedBlock() + 1
	if from > head {
		s.setPhase(PhaseSteady)
		return nil
	}

	ranges := ethereum.SplitBlockRange(from, head, s.settings.MaxBlockRange)
	if len(ranges) > 1 {
		s.setPhase(PhaseCatchingUp)
	}

	for _, r := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.syncChunk(ctx, r); err != nil {
			return err
		}
	}

	s.setPhase(PhaseSteady)
	return nil
}

// syncChunk retries a chunk with exponential backoff until it is applied
func (s *IndexerService) syncChunk(ctx context.Context, r ethereum.BlockRange) error {
	var lastErr error
	for attempt := 1; attempt <= s.settings.MaxRetries; attempt++ {
		start := s.now()
		lastErr = s.applyChunk(ctx, r)
		if lastErr == nil {
			chunkDuration.WithLabelValues(chainLabel(s.settings.ChainID)).Observe(s.now().Sub(start).Seconds())
			return nil
		}

		chunkRetries.WithLabelValues(chainLabel(s.settings.ChainID)).Inc()
		if attempt == s.settings.MaxRetries {
			break
		}

		backoff := s.settings.InitialBackoff * time.Duration(1<<(attempt-1))
		s.logger.Warn("Chunk sync failed, retrying",
			zap.Int64("from", r.From),
			zap.Int64("to", r.To),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}
	}

	return fmt.Errorf("failed to sync blocks %d-%d after %d attempts: %w", r.From, r.To, s.settings.MaxRetries, lastErr)
}

// applyChunk syncs a copy of the state, persists it and only then makes it live
func (s *IndexerService) applyChunk(ctx context.Context, r ethereum.BlockRange) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.RLock()
	next := s.state.Clone()
	contracts := s.contractsLocked()
	s.mu.RUnlock()

	if err := s.syncer.SyncRange(ctx, contracts, next, r.From, r.To); err != nil {
		return err
	}
	if err := s.checkpoints.Save(ctx, next, r.To, s.settings.ChainID); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	s.mu.Lock()
	s.state = next
	s.lastSyncedBlock = r.To
	s.mu.Unlock()

	lastSyncedBlock.WithLabelValues(chainLabel(s.settings.ChainID)).Set(float64(r.To))
	s.logger.Debug("Applied chunk",
		zap.Int64("from", r.From),
		zap.Int64("to", r.To),
	)
	return nil
}

func (s *IndexerService) contractsLocked() SyncContracts {
	return SyncContracts{
		Morpho:                s.settings.Morpho,
		AdaptiveCurveIrm:      s.settings.AdaptiveCurveIrm,
		PreLiquidationFactory: s.settings.PreLiquidationFactory,
		Vaults:                append([]common.Address(nil), s.vaults...),
	}
}

// UpdateVaultAddresses starts tracking vaults not tracked yet and backfills their
// withdraw queues in the background
func (s *IndexerService) UpdateVaultAddresses(ctx context.Context, vaults []common.Address) {
	s.mu.Lock()
	known := make(map[common.Address]bool, len(s.vaults))
	for _, v := range s.vaults {
		known[v] = true
	}
	var added []common.Address
	for _, v := range vaults {
		if known[v] {
			continue
		}
		known[v] = true
		s.vaults = append(s.vaults, v)
		added = append(added, v)
	}
	s.mu.Unlock()

	for _, v := range added {
		s.logger.Info("Tracking vault", zap.String("vault", v.Hex()))
		s.backfills.Add(1)
		go func(vault common.Address) {
			defer s.backfills.Done()
			if err := s.backfillVault(ctx, vault); err != nil {
				s.logger.Error("Failed to backfill vault withdraw queue",
					zap.String("vault", vault.Hex()),
					zap.Error(err),
				)
			}
		}(v)
	}
}

// Wait blocks until every vault backfill started by UpdateVaultAddresses has returned
func (s *IndexerService) Wait() {
	s.backfills.Wait()
}

// backfillVault replays the vault's SetWithdrawQueue history up to the block the
// chunked sync had reached when the vault became tracked
func (s *IndexerService) backfillVault(ctx context.Context, vault common.Address) error {
	// Chunks started before the vault was added finish first; later chunks include it.
	s.syncMu.Lock()
	s.mu.RLock()
	until := s.lastSyncedBlock
	before := append([]common.Hash(nil), s.state.VaultWithdrawQueues[vault]...)
	s.mu.RUnlock()
	s.syncMu.Unlock()

	if until < s.settings.StartBlock {
		return nil
	}

	scratch := entities.NewIndexerState()
	contracts := SyncContracts{Vaults: []common.Address{vault}}
	for _, r := range ethereum.SplitBlockRange(s.settings.StartBlock, until, s.settings.MaxBlockRange) {
		if err := s.syncer.SyncRange(ctx, contracts, scratch, r.From, r.To); err != nil {
			return fmt.Errorf("failed to backfill blocks %d-%d: %w", r.From, r.To, err)
		}
	}

	queue, ok := scratch.VaultWithdrawQueues[vault]
	if !ok {
		return nil
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !equalHashes(s.state.VaultWithdrawQueues[vault], before) {
		s.logger.Debug("Vault queue changed during backfill, keeping synced value", zap.String("vault", vault.Hex()))
		return nil
	}

	next := s.state.Clone()
	next.VaultWithdrawQueues[vault] = queue
	s.state = next

	s.logger.Info("Backfilled vault withdraw queue",
		zap.String("vault", vault.Hex()),
		zap.Int("markets", len(queue)),
	)
	return nil
}

// GetMarketsForVaults returns the union of the indexed withdraw queues of vaults
func (s *IndexerService) GetMarketsForVaults(vaults []common.Address) []common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[common.Hash]bool)
	var markets []common.Hash
	for _, v := range vaults {
		for _, id := range s.state.VaultWithdrawQueues[v] {
			if seen[id] {
				continue
			}
			seen[id] = true
			markets = append(markets, id)
		}
	}
	return markets
}

// HasWithdrawQueue reports whether a withdraw queue has been indexed for vault
func (s *IndexerService) HasWithdrawQueue(vault common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.VaultWithdrawQueues[vault]
	return ok
}

type positionSnapshot struct {
	key      entities.PositionKey
	position *entities.PositionState
}

// GetLiquidatablePositions values every borrowing position of the covered markets at
// fresh oracle prices and returns those with collateral to seize
func (s *IndexerService) GetLiquidatablePositions(ctx context.Context, covered []common.Hash, extra []ExtraPosition) (*Candidates, error) {
	coveredSet := make(map[common.Hash]bool, len(covered))
	for _, id := range covered {
		coveredSet[id] = true
	}

	s.mu.RLock()
	markets := make(map[common.Hash]*entities.MarketState)
	for id := range coveredSet {
		if m, ok := s.state.Markets[id]; ok {
			markets[id] = m.Clone()
		}
	}

	var positions []positionSnapshot
	for key, pos := range s.state.Positions {
		if markets[key.MarketID] == nil || pos.BorrowShares.Sign() == 0 {
			continue
		}
		positions = append(positions, positionSnapshot{key: key, position: pos.Clone()})
	}
	for _, e := range extra {
		key := entities.PositionKey{MarketID: e.MarketID, User: e.User}
		if _, indexed := s.state.Positions[key]; indexed || markets[key.MarketID] == nil || e.Position == nil {
			continue
		}
		if e.Position.BorrowShares == nil || e.Position.BorrowShares.Sign() == 0 {
			continue
		}
		positions = append(positions, positionSnapshot{key: key, position: e.Position.Clone()})
	}

	preLiquidations := make(map[common.Hash]entities.PreLiquidationContract)
	for _, c := range s.state.PreLiquidationContracts {
		if _, ok := preLiquidations[c.MarketID]; ok || markets[c.MarketID] == nil {
			continue
		}
		preLiquidations[c.MarketID] = entities.PreLiquidationContract{
			MarketID: c.MarketID,
			Address:  c.Address,
			Params:   c.Params.Clone(),
		}
	}

	authorized := make(map[entities.PositionKey]bool)
	for _, p := range positions {
		if c, ok := preLiquidations[p.key.MarketID]; ok && s.state.IsAuthorized(p.key.User, c.Address) {
			authorized[p.key] = true
		}
	}
	s.mu.RUnlock()

	prices, err := s.oracles.OraclePrices(ctx, s.oraclesToPrice(markets, preLiquidations))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch oracle prices: %w", err)
	}

	now := big.NewInt(s.now().Unix())
	valued := make(map[common.Hash]*morpho.Market, len(markets))
	for id, m := range markets {
		valued[id] = morpho.NewMarket(id, m, usablePrice(prices[m.Params.Oracle])).AccrueInterest(now)
	}

	out := &Candidates{}
	for _, p := range positions {
		market := valued[p.key.MarketID]
		position := morpho.NewAccrualPosition(p.key.User, p.position, market)

		if seizable, ok := position.SeizableCollateral(); ok && seizable.Sign() > 0 {
			out.Liquidations = append(out.Liquidations, LiquidationCandidate{Position: position, Seizable: seizable})
		}

		if !authorized[p.key] {
			continue
		}
		c := preLiquidations[p.key.MarketID]
		oraclePrice := market.Price
		if c.Params.PreLiquidationOracle != market.Params.Oracle {
			oraclePrice = usablePrice(prices[c.Params.PreLiquidationOracle])
		}
		pre := &morpho.PreLiquidationPosition{
			AccrualPosition: position,
			PreLiquidation:  c.Address,
			Params:          c.Params,
			OraclePrice:     oraclePrice,
		}
		if seizable, ok := pre.SeizableCollateral(); ok && seizable.Sign() > 0 {
			out.PreLiquidations = append(out.PreLiquidations, PreLiquidationCandidate{Position: pre, Seizable: seizable})
		}
	}

	return out, nil
}

func (s *IndexerService) oraclesToPrice(markets map[common.Hash]*entities.MarketState, preLiquidations map[common.Hash]entities.PreLiquidationContract) []common.Address {
	seen := make(map[common.Address]bool)
	var oracles []common.Address
	add := func(oracle common.Address) {
		if oracle == (common.Address{}) || seen[oracle] {
			return
		}
		seen[oracle] = true
		oracles = append(oracles, oracle)
	}
	for _, m := range markets {
		add(m.Params.Oracle)
	}
	for _, c := range preLiquidations {
		add(c.Params.PreLiquidationOracle)
	}
	return oracles
}

// Market returns a copy of an indexed market
func (s *IndexerService) Market(id common.Hash) (*entities.MarketState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.Markets[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// LastSyncedBlock returns the last block applied to the live state
func (s *IndexerService) LastSyncedBlock() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncedBlock
}

// Status returns a snapshot of the indexer
func (s *IndexerService) Status() IndexerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IndexerStatus{
		ChainID:         s.settings.ChainID,
		Phase:           s.phase,
		LastSyncedBlock: s.lastSyncedBlock,
		Markets:         len(s.state.Markets),
		Positions:       len(s.state.Positions),
		PreLiquidations: len(s.state.PreLiquidationContracts),
		Vaults:          append([]common.Address{}, s.vaults...),
		Syncing:         s.syncing.Load(),
	}
}

func (s *IndexerService) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != p {
		s.logger.Info("Indexer phase changed", zap.String("from", string(s.phase)), zap.String("to", string(p)))
	}
	s.phase = p
}

// usablePrice maps a missing or zero oracle price to nil
func usablePrice(p *big.Int) *big.Int {
	if p == nil || p.Sign() == 0 {
		return nil
	}
	return p
}

func equalHashes(a, b []common.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
