package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/domain/morpho"
	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/morphoapi"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/pricers"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/venues"
)

var (
	// ErrSimulationFailed is returned when the executor call reverts in simulation
	ErrSimulationFailed = errors.New("simulation failed")

	// ErrNoRoute is returned when no venue sequence converts collateral into the loan token
	ErrNoRoute = errors.New("no conversion route")
)

const marketsCooldownKey = "covered-markets"

// Kinds of liquidation attempts
const (
	KindLiquidation    = "liquidation"
	KindPreLiquidation = "preLiquidation"
)

// Outcome is the result of one liquidation attempt
type Outcome string

const (
	OutcomeLiquidated Outcome = "liquidated"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// PositionIndex is the indexer surface the engine reads from
type PositionIndex interface {
	GetLiquidatablePositions(ctx context.Context, covered []common.Hash, extra []ExtraPosition) (*Candidates, error)
	GetMarketsForVaults(vaults []common.Address) []common.Hash
	HasWithdrawQueue(vault common.Address) bool
	UpdateVaultAddresses(ctx context.Context, vaults []common.Address)
}

// VaultReader reads a vault's withdraw queue on-chain
type VaultReader interface {
	WithdrawQueue(ctx context.Context, vault common.Address) ([]common.Hash, error)
}

// ChainWriter simulates, signs and sends executor transactions
type ChainWriter interface {
	HeadBlock(ctx context.Context) (int64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	SimulateCalls(ctx context.Context, calls []ethereum.SimulatedCall) ([]ethereum.SimulationResult, error)
	SignTransaction(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error)
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

// BundleSender submits signed transactions to a private relay
type BundleSender interface {
	SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock int64) (string, error)
}

// Discovery is the off-chain source of vaults and candidate positions
type Discovery interface {
	WhitelistedVaults(ctx context.Context, chainID int64) ([]common.Address, error)
	LiquidatablePositions(ctx context.Context, chainID int64, marketIDs []common.Hash) ([]morphoapi.Candidate, error)
}

// TokenDecimals reads ERC-20 decimals
type TokenDecimals interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// TokenSymbols names tokens in logs
type TokenSymbols interface {
	Symbol(ctx context.Context, token common.Address) string
}

// LiquidationSettings holds the per-chain engine parameters
type LiquidationSettings struct {
	ChainID              int64
	Morpho               common.Address
	Executor             common.Address
	Treasury             common.Address
	WrappedNative        common.Address
	Vaults               []common.Address
	VaultsFromAPI        bool
	AdditionalMarkets    []common.Hash
	UseDiscoveryAPI      bool
	BufferBps            int64
	AlwaysRealizeBadDebt bool
}

// LiquidationDeps are the collaborators of the engine. Nil Relay submits publicly,
// nil Cooldown disables the position cooldown, nil Discovery disables API features,
// nil Symbols logs raw token addresses.
type LiquidationDeps struct {
	Index           PositionIndex
	Vaults          VaultReader
	Chain           ChainWriter
	Relay           BundleSender
	Discovery       Discovery
	Decimals        TokenDecimals
	Symbols         TokenSymbols
	Venues          []venues.Venue
	Pricers         []pricers.Pricer
	Cooldown        repositories.CooldownRepository
	MarketsCooldown repositories.CooldownRepository
}

// AttemptResult reports what happened to one position
type AttemptResult struct {
	Kind     string
	MarketID common.Hash
	User     common.Address
	Outcome  Outcome
	// TxHash is the transaction or bundle hash of a submitted liquidation
	TxHash string
	Reason string
	Err    error
}

type target struct {
	kind           string
	position       *morpho.AccrualPosition
	seizable       *big.Int
	preLiquidation common.Address
}

// LiquidationService finds liquidatable positions and executes profitable liquidations
type LiquidationService struct {
	settings LiquidationSettings
	deps     LiquidationDeps
	logger   *zap.Logger

	mu      sync.Mutex
	covered []common.Hash

	now func() time.Time
}

// NewLiquidationService creates a new liquidation engine
func NewLiquidationService(settings LiquidationSettings, deps LiquidationDeps, logger *zap.Logger) *LiquidationService {
	if deps.MarketsCooldown == nil {
		deps.MarketsCooldown = NewCooldown(0)
	}
	return &LiquidationService{
		settings: settings,
		deps:     deps,
		logger:   logger.With(zap.Int64("chain_id", settings.ChainID)),
		now:      time.Now,
	}
}

// Run executes one engine cycle. Every candidate is attempted concurrently and
// independently; per-position failures are reported in the results.
func (s *LiquidationService) Run(ctx context.Context) ([]AttemptResult, error) {
	now := s.now()

	covered := s.coveredMarkets(ctx, now)
	if len(covered) == 0 {
		s.logger.Debug("No covered markets")
		return nil, nil
	}

	candidates, err := s.deps.Index.GetLiquidatablePositions(ctx, covered, s.discoveryPositions(ctx, covered))
	if err != nil {
		return nil, fmt.Errorf("failed to get liquidatable positions: %w", err)
	}

	chain := chainLabel(s.settings.ChainID)
	candidatesFound.WithLabelValues(chain, KindLiquidation).Set(float64(len(candidates.Liquidations)))
	candidatesFound.WithLabelValues(chain, KindPreLiquidation).Set(float64(len(candidates.PreLiquidations)))

	targets := make([]target, 0, len(candidates.Liquidations)+len(candidates.PreLiquidations))
	for _, c := range candidates.Liquidations {
		targets = append(targets, target{kind: KindLiquidation, position: c.Position, seizable: c.Seizable})
	}
	for _, c := range candidates.PreLiquidations {
		targets = append(targets, target{
			kind:           KindPreLiquidation,
			position:       c.Position.AccrualPosition,
			seizable:       c.Seizable,
			preLiquidation: c.Position.PreLiquidation,
		})
	}

	results := make([]AttemptResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			results[i] = s.attempt(ctx, t, now)
		}(i, t)
	}
	wg.Wait()

	return results, nil
}

func (s *LiquidationService) attempt(ctx context.Context, t target, now time.Time) (res AttemptResult) {
	res = AttemptResult{Kind: t.kind, MarketID: t.position.MarketID(), User: t.position.User}
	log := s.logger.With(
		zap.String("kind", t.kind),
		zap.String("market_id", res.MarketID.Hex()),
		zap.String("user", res.User.Hex()),
	)

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("panic: %v", r)
			log.Error("Liquidation attempt panicked", zap.Any("panic", r))
		}
		liquidationAttempts.WithLabelValues(chainLabel(s.settings.ChainID), t.kind, string(res.Outcome)).Inc()
	}()

	outcome, detail, err := s.execute(ctx, t, now)
	res.Outcome = outcome
	res.Err = err

	switch outcome {
	case OutcomeLiquidated:
		res.TxHash = detail
		log.Info("Position liquidated", append(s.positionFields(ctx, t), zap.String("tx", detail))...)
	case OutcomeSkipped:
		res.Reason = detail
		log.Debug("Position skipped", zap.String("reason", detail))
	default:
		log.Warn("Liquidation attempt failed", append(s.positionFields(ctx, t), zap.Error(err))...)
	}
	return res
}

// positionFields describes the tokens and amounts of an attempt
func (s *LiquidationService) positionFields(ctx context.Context, t target) []zap.Field {
	params := t.position.Market.Params
	loan, collateral := params.LoanToken.Hex(), params.CollateralToken.Hex()
	if s.deps.Symbols != nil {
		loan = s.deps.Symbols.Symbol(ctx, params.LoanToken)
		collateral = s.deps.Symbols.Symbol(ctx, params.CollateralToken)
	}
	return []zap.Field{
		zap.String("loan_token", loan),
		zap.String("collateral_token", collateral),
		zap.String("seizable", t.seizable.String()),
		zap.String("borrow_assets", t.position.BorrowAssets().String()),
	}
}

func (s *LiquidationService) execute(ctx context.Context, t target, now time.Time) (Outcome, string, error) {
	params := t.position.Market.Params

	// pre-liquidations never realize bad debt
	badDebt := t.kind == KindLiquidation && t.seizable.Cmp(t.position.Collateral) == 0
	seized := morpho.AdjustSeizable(t.seizable, s.settings.BufferBps, badDebt)
	if seized.Sign() <= 0 {
		return OutcomeSkipped, "nothing to seize", nil
	}

	if s.deps.Cooldown != nil {
		key := entities.PositionKey{MarketID: t.position.MarketID(), User: t.position.User}.String()
		ready, err := s.deps.Cooldown.Claim(ctx, key, now)
		if err != nil {
			return OutcomeFailed, "", fmt.Errorf("failed to claim cooldown: %w", err)
		}
		if !ready {
			return OutcomeSkipped, "cooldown", nil
		}
	}

	enc := ethereum.NewEncoder(s.settings.Executor)
	conversion := venues.Conversion{Src: params.CollateralToken, Dst: params.LoanToken, SrcAmount: seized}
	if err := s.route(ctx, enc, conversion); err != nil {
		return OutcomeFailed, "", err
	}

	data, err := s.encodeBatch(enc, t, seized)
	if err != nil {
		return OutcomeFailed, "", err
	}

	delta, gasUsed, err := s.simulate(ctx, params.LoanToken, data)
	if err != nil {
		return OutcomeFailed, "", err
	}

	profitable, err := s.isProfitable(ctx, params.LoanToken, delta, gasUsed, badDebt)
	if err != nil {
		return OutcomeFailed, "", err
	}
	if !profitable {
		return OutcomeSkipped, "unprofitable", nil
	}

	hash, err := s.submit(ctx, data)
	if err != nil {
		return OutcomeFailed, "", err
	}
	return OutcomeLiquidated, hash, nil
}

// route appends the calls converting the seized collateral into the loan token.
// Venues are tried once each in configured order.
func (s *LiquidationService) route(ctx context.Context, enc *ethereum.Encoder, c venues.Conversion) error {
	if c.Src == c.Dst {
		return nil
	}

	for _, v := range s.deps.Venues {
		ok, err := v.SupportsRoute(ctx, enc, c.Src, c.Dst)
		if err != nil {
			s.logger.Warn("Venue route check failed", zap.String("venue", v.Name()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		next, err := v.Convert(ctx, enc, c)
		if err != nil {
			s.logger.Warn("Venue conversion failed", zap.String("venue", v.Name()), zap.Error(err))
			continue
		}
		c = next
		if c.Src == c.Dst {
			return nil
		}
	}

	return fmt.Errorf("%w from %s to %s", ErrNoRoute, c.Src.Hex(), c.Dst.Hex())
}

// encodeBatch wraps the pending conversion calls into the liquidation callback and
// builds the executor call
func (s *LiquidationService) encodeBatch(enc *ethereum.Encoder, t target, seized *big.Int) ([]byte, error) {
	params := t.position.Market.Params
	callback := enc.Flush()
	zero := new(big.Int)

	spender := s.settings.Morpho
	if t.kind == KindPreLiquidation {
		spender = t.preLiquidation
	}
	if err := enc.ERC20Approve(params.LoanToken, spender, ethereum.MaxUint256); err != nil {
		return nil, err
	}

	var err error
	if t.kind == KindPreLiquidation {
		err = enc.PreLiquidate(t.preLiquidation, t.position.User, seized, zero, callback)
	} else {
		err = enc.MorphoBlueLiquidate(s.settings.Morpho, params, t.position.User, seized, zero, callback)
	}
	if err != nil {
		return nil, err
	}

	if err := enc.ERC20Skim(params.LoanToken, s.settings.Treasury); err != nil {
		return nil, err
	}
	return ethereum.EncodeExec(enc.Flush())
}

// simulate runs balanceOf, the executor call and balanceOf again, returning the
// treasury's loan token gain and the executor call's gas
func (s *LiquidationService) simulate(ctx context.Context, loanToken common.Address, data []byte) (*big.Int, uint64, error) {
	balanceOf, err := ethereum.ERC20ABI.Pack("balanceOf", s.settings.Treasury)
	if err != nil {
		return nil, 0, err
	}

	results, err := s.deps.Chain.SimulateCalls(ctx, []ethereum.SimulatedCall{
		{To: loanToken, Data: balanceOf},
		{To: s.settings.Executor, Data: data},
		{To: loanToken, Data: balanceOf},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to simulate: %w", err)
	}
	if len(results) != 3 {
		return nil, 0, fmt.Errorf("expected 3 simulation results, got %d", len(results))
	}
	if !results[1].Success {
		return nil, 0, fmt.Errorf("%w: %s", ErrSimulationFailed, ethereum.CleanRevertMessage(results[1].Error))
	}

	before, err := decodeBalance(results[0])
	if err != nil {
		return nil, 0, err
	}
	after, err := decodeBalance(results[2])
	if err != nil {
		return nil, 0, err
	}
	return new(big.Int).Sub(after, before), results[1].GasUsed, nil
}

func decodeBalance(r ethereum.SimulationResult) (*big.Int, error) {
	if !r.Success || len(r.ReturnData) < 32 {
		return nil, fmt.Errorf("failed to read balance: %s", r.Error)
	}
	return new(big.Int).SetBytes(r.ReturnData[:32]), nil
}

// isProfitable checks the USD value of delta covers the gas cost
func (s *LiquidationService) isProfitable(ctx context.Context, loanToken common.Address, delta *big.Int, gasUsed uint64, badDebt bool) (bool, error) {
	if s.settings.AlwaysRealizeBadDebt && badDebt {
		return true, nil
	}
	if len(s.deps.Pricers) == 0 {
		return true, nil
	}
	if delta.Sign() <= 0 {
		return false, nil
	}

	loanPrice, ok := s.price(ctx, loanToken)
	if !ok {
		s.logger.Debug("No price for loan token", zap.String("token", loanToken.Hex()))
		return false, nil
	}
	nativePrice, ok := s.price(ctx, s.settings.WrappedNative)
	if !ok {
		s.logger.Debug("No price for wrapped native token")
		return false, nil
	}

	loanDecimals, err := s.deps.Decimals.Decimals(ctx, loanToken)
	if err != nil {
		return false, fmt.Errorf("failed to get loan token decimals: %w", err)
	}
	nativeDecimals, err := s.deps.Decimals.Decimals(ctx, s.settings.WrappedNative)
	if err != nil {
		return false, fmt.Errorf("failed to get wrapped native decimals: %w", err)
	}

	gasPrice, err := s.deps.Chain.GasPrice(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get gas price: %w", err)
	}
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice)

	profitUsd := decimal.NewFromBigInt(delta, -int32(loanDecimals)).Mul(loanPrice)
	gasUsd := decimal.NewFromBigInt(gasCost, -int32(nativeDecimals)).Mul(nativePrice)

	return profitUsd.Sub(gasUsd).IsPositive(), nil
}

// price returns the first price any pricer knows
func (s *LiquidationService) price(ctx context.Context, asset common.Address) (decimal.Decimal, bool) {
	for _, p := range s.deps.Pricers {
		price, ok, err := p.Price(ctx, asset)
		if err != nil {
			s.logger.Debug("Pricer failed", zap.String("pricer", p.Name()), zap.Error(err))
			continue
		}
		if ok {
			return price, true
		}
	}
	return decimal.Zero, false
}

// submit sends the executor call as a private bundle when a relay is configured
func (s *LiquidationService) submit(ctx context.Context, data []byte) (string, error) {
	if s.deps.Relay == nil {
		hash, err := s.deps.Chain.SendTransaction(ctx, s.settings.Executor, data)
		if err != nil {
			return "", err
		}
		return hash.Hex(), nil
	}

	head, err := s.deps.Chain.HeadBlock(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get head block: %w", err)
	}
	tx, err := s.deps.Chain.SignTransaction(ctx, s.settings.Executor, data)
	if err != nil {
		return "", err
	}
	return s.deps.Relay.SendBundle(ctx, []*types.Transaction{tx}, head+1)
}

// coveredMarkets returns the markets the engine watches, refreshing them at most
// once per markets cooldown window
func (s *LiquidationService) coveredMarkets(ctx context.Context, now time.Time) []common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	ready, err := s.deps.MarketsCooldown.Claim(ctx, marketsCooldownKey, now)
	if err != nil {
		s.logger.Warn("Failed to claim markets cooldown", zap.Error(err))
	}
	if !ready && s.covered != nil {
		return s.covered
	}

	vaults, err := s.resolveVaults(ctx)
	if err != nil {
		s.logger.Error("Failed to resolve vault whitelist", zap.Error(err))
		if s.covered != nil {
			return s.covered
		}
	}
	s.deps.Index.UpdateVaultAddresses(ctx, vaults)

	markets := s.deps.Index.GetMarketsForVaults(vaults)
	for _, v := range vaults {
		if s.deps.Index.HasWithdrawQueue(v) || s.deps.Vaults == nil {
			continue
		}
		queue, err := s.deps.Vaults.WithdrawQueue(ctx, v)
		if err != nil {
			s.logger.Warn("Failed to read vault withdraw queue", zap.String("vault", v.Hex()), zap.Error(err))
			continue
		}
		markets = append(markets, queue...)
	}
	markets = append(markets, s.settings.AdditionalMarkets...)

	s.covered = uniqueHashes(markets)
	s.logger.Info("Refreshed covered markets",
		zap.Int("vaults", len(vaults)),
		zap.Int("markets", len(s.covered)),
	)
	return s.covered
}

func (s *LiquidationService) resolveVaults(ctx context.Context) ([]common.Address, error) {
	if !s.settings.VaultsFromAPI {
		return s.settings.Vaults, nil
	}
	if s.deps.Discovery == nil {
		return nil, errors.New("vault whitelist needs the Morpho API")
	}
	return s.deps.Discovery.WhitelistedVaults(ctx, s.settings.ChainID)
}

// discoveryPositions asks the API for candidates the index may not know yet
func (s *LiquidationService) discoveryPositions(ctx context.Context, covered []common.Hash) []ExtraPosition {
	if !s.settings.UseDiscoveryAPI || s.deps.Discovery == nil {
		return nil
	}

	found, err := s.deps.Discovery.LiquidatablePositions(ctx, s.settings.ChainID, covered)
	if err != nil {
		s.logger.Warn("Failed to fetch discovery candidates", zap.Error(err))
		return nil
	}

	extra := make([]ExtraPosition, 0, len(found))
	for _, c := range found {
		extra = append(extra, ExtraPosition{
			MarketID: c.MarketID,
			User:     c.User,
			Position: &entities.PositionState{
				SupplyShares: c.SupplyShares,
				BorrowShares: c.BorrowShares,
				Collateral:   c.Collateral,
			},
		})
	}
	return extra
}

func uniqueHashes(in []common.Hash) []common.Hash {
	seen := make(map[common.Hash]bool, len(in))
	out := make([]common.Hash, 0, len(in))
	for _, h := range in {
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
