package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

// Common test addresses
var (
	MorphoAddress         = common.HexToAddress("0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb")
	IrmAddress            = common.HexToAddress("0x870aC11D48B15DB9a138Cf899d20F13F79Ba00BC")
	PreLiquidationFactory = common.HexToAddress("0x6FF33615e792E35ed1026ea7cACCf42D9BF83476")
	PreLiquidationAddress = common.HexToAddress("0x00000000000000000000000000000000000F1e00")
	LoanToken             = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	CollateralToken       = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	WrappedNative         = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	OracleAddress         = common.HexToAddress("0x0000000000000000000000000000000000000Ac1")
	VaultAddress          = common.HexToAddress("0xBEEF01735c132Ada46AA9aA4c54623cAA92A64CB")
	ExecutorAddress       = common.HexToAddress("0x00000000000000000000000000000000000E8EC0")
	TreasuryAddress       = common.HexToAddress("0x0000000000000000000000000000000000007EA5")
	AliceAddress          = common.HexToAddress("0x1111111111111111111111111111111111111111")
	BobAddress            = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// OneToOnePrice is an oracle price valuing one collateral unit at one loan unit
var OneToOnePrice = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)

// TestMarketParams returns an 86% lltv market of LoanToken against CollateralToken
func TestMarketParams() entities.MarketParams {
	return entities.MarketParams{
		LoanToken:       LoanToken,
		CollateralToken: CollateralToken,
		Oracle:          OracleAddress,
		Irm:             IrmAddress,
		Lltv:            big.NewInt(860000000000000000),
	}
}

// TestMarketID returns the id of TestMarketParams
func TestMarketID() common.Hash {
	return TestMarketParams().ID()
}

// CreateTestMarket creates a market with 1000 supplied and 900 borrowed assets
func CreateTestMarket(opts ...MarketOption) *entities.MarketState {
	m := entities.NewMarketState(TestMarketParams(), big.NewInt(1_700_000_000))
	m.TotalSupplyAssets = big.NewInt(1000)
	m.TotalSupplyShares = big.NewInt(1000_000_000)
	m.TotalBorrowAssets = big.NewInt(900)
	m.TotalBorrowShares = big.NewInt(900_000_000)

	for _, opt := range opts {
		opt(m)
	}
	return m
}

type MarketOption func(*entities.MarketState)

func MarketWithParams(params entities.MarketParams) MarketOption {
	return func(m *entities.MarketState) {
		m.Params = params.Clone()
	}
}

func MarketWithRateAtTarget(rate *big.Int) MarketOption {
	return func(m *entities.MarketState) {
		m.RateAtTarget = new(big.Int).Set(rate)
	}
}

// CreateTestPosition creates a position owing every borrow share of CreateTestMarket
// against 1000 collateral, unhealthy at OneToOnePrice
func CreateTestPosition(opts ...PositionOption) *entities.PositionState {
	p := entities.NewPositionState()
	p.BorrowShares = big.NewInt(900_000_000)
	p.Collateral = big.NewInt(1000)

	for _, opt := range opts {
		opt(p)
	}
	return p
}

type PositionOption func(*entities.PositionState)

func PositionWithCollateral(collateral int64) PositionOption {
	return func(p *entities.PositionState) {
		p.Collateral = big.NewInt(collateral)
	}
}

func PositionWithBorrowShares(shares int64) PositionOption {
	return func(p *entities.PositionState) {
		p.BorrowShares = big.NewInt(shares)
	}
}

// CreateTestState returns a state holding CreateTestMarket and one Alice position
func CreateTestState(opts ...PositionOption) *entities.IndexerState {
	state := entities.NewIndexerState()
	state.Markets[TestMarketID()] = CreateTestMarket()
	state.Positions[entities.PositionKey{MarketID: TestMarketID(), User: AliceAddress}] = CreateTestPosition(opts...)
	return state
}

// TestPreLiquidationParams returns a curve starting at 80% ltv
func TestPreLiquidationParams(oracle common.Address) entities.PreLiquidationParams {
	return entities.PreLiquidationParams{
		PreLltv:              big.NewInt(800000000000000000),
		PreLCF1:              big.NewInt(100000000000000000),
		PreLCF2:              big.NewInt(500000000000000000),
		PreLIF1:              big.NewInt(1010000000000000000),
		PreLIF2:              big.NewInt(1040000000000000000),
		PreLiquidationOracle: oracle,
	}
}

// LogOption customizes a generated log
type LogOption func(*types.Log)

// AtBlock places the log at (block, index)
func AtBlock(block uint64, index uint) LogOption {
	return func(l *types.Log) {
		l.BlockNumber = block
		l.Index = index
	}
}

// EmittedBy overrides the emitting contract
func EmittedBy(addr common.Address) LogOption {
	return func(l *types.Log) {
		l.Address = addr
	}
}

// CreateMarketLog builds a Morpho CreateMarket log
func CreateMarketLog(params entities.MarketParams, opts ...LogOption) types.Log {
	tuple := struct {
		LoanToken       common.Address
		CollateralToken common.Address
		Oracle          common.Address
		Irm             common.Address
		Lltv            *big.Int
	}{params.LoanToken, params.CollateralToken, params.Oracle, params.Irm, params.Lltv}

	return buildLog(MorphoAddress, ethereum.MorphoABI.Events["CreateMarket"],
		[]common.Hash{params.ID()}, []interface{}{tuple}, opts)
}

// SupplyLog builds a Morpho Supply log
func SupplyLog(id common.Hash, onBehalf common.Address, assets, shares int64, opts ...LogOption) types.Log {
	return buildLog(MorphoAddress, ethereum.MorphoABI.Events["Supply"],
		[]common.Hash{id, addressTopic(onBehalf), addressTopic(onBehalf)},
		[]interface{}{big.NewInt(assets), big.NewInt(shares)}, opts)
}

// BorrowLog builds a Morpho Borrow log
func BorrowLog(id common.Hash, onBehalf common.Address, assets, shares int64, opts ...LogOption) types.Log {
	return buildLog(MorphoAddress, ethereum.MorphoABI.Events["Borrow"],
		[]common.Hash{id, addressTopic(onBehalf), addressTopic(onBehalf)},
		[]interface{}{onBehalf, big.NewInt(assets), big.NewInt(shares)}, opts)
}

// SupplyCollateralLog builds a Morpho SupplyCollateral log
func SupplyCollateralLog(id common.Hash, onBehalf common.Address, assets int64, opts ...LogOption) types.Log {
	return buildLog(MorphoAddress, ethereum.MorphoABI.Events["SupplyCollateral"],
		[]common.Hash{id, addressTopic(onBehalf), addressTopic(onBehalf)},
		[]interface{}{big.NewInt(assets)}, opts)
}

// SetAuthorizationLog builds a Morpho SetAuthorization log
func SetAuthorizationLog(authorizer, authorized common.Address, isAuthorized bool, opts ...LogOption) types.Log {
	return buildLog(MorphoAddress, ethereum.MorphoABI.Events["SetAuthorization"],
		[]common.Hash{addressTopic(authorizer), addressTopic(authorizer), addressTopic(authorized)},
		[]interface{}{isAuthorized}, opts)
}

// BorrowRateUpdateLog builds an adaptive curve rate model BorrowRateUpdate log
func BorrowRateUpdateLog(id common.Hash, avgBorrowRate, rateAtTarget *big.Int, opts ...LogOption) types.Log {
	return buildLog(IrmAddress, ethereum.IrmABI.Events["BorrowRateUpdate"],
		[]common.Hash{id}, []interface{}{avgBorrowRate, rateAtTarget}, opts)
}

// CreatePreLiquidationLog builds a pre-liquidation factory CreatePreLiquidation log
func CreatePreLiquidationLog(preLiquidation common.Address, id common.Hash, params entities.PreLiquidationParams, opts ...LogOption) types.Log {
	tuple := struct {
		PreLltv              *big.Int
		PreLCF1              *big.Int
		PreLCF2              *big.Int
		PreLIF1              *big.Int
		PreLIF2              *big.Int
		PreLiquidationOracle common.Address
	}{params.PreLltv, params.PreLCF1, params.PreLCF2, params.PreLIF1, params.PreLIF2, params.PreLiquidationOracle}

	return buildLog(PreLiquidationFactory, ethereum.PreLiquidationABI.Events["CreatePreLiquidation"],
		[]common.Hash{addressTopic(preLiquidation)}, []interface{}{[32]byte(id), tuple}, opts)
}

// SetWithdrawQueueLog builds a vault SetWithdrawQueue log emitted by vault
func SetWithdrawQueueLog(vault common.Address, queue []common.Hash, opts ...LogOption) types.Log {
	ids := make([][32]byte, len(queue))
	for i, id := range queue {
		ids[i] = id
	}
	return buildLog(vault, ethereum.VaultABI.Events["SetWithdrawQueue"],
		[]common.Hash{addressTopic(AliceAddress)}, []interface{}{ids}, opts)
}

func buildLog(emitter common.Address, ev abi.Event, indexed []common.Hash, data []interface{}, opts []LogOption) types.Log {
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}

	l := types.Log{
		Address: emitter,
		Topics:  append([]common.Hash{ev.ID}, indexed...),
		Data:    packed,
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
