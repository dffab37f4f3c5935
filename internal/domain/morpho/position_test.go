package morpho

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
)

var testUser = common.HexToAddress("0xAbCdEf0123456789aBCDef0123456789AbCdEf01")

// testMarket returns a market whose borrow shares are assets * 1e6
func testMarket(borrowAssets *big.Int, price *big.Int) *Market {
	params := entities.MarketParams{
		LoanToken:       common.HexToAddress("0x01"),
		CollateralToken: common.HexToAddress("0x02"),
		Oracle:          common.HexToAddress("0x03"),
		Irm:             common.HexToAddress("0x04"),
		Lltv:            big.NewInt(8e17),
	}
	state := entities.NewMarketState(params, big.NewInt(1_000))
	state.TotalSupplyAssets = wad(1000)
	state.TotalSupplyShares = new(big.Int).Mul(wad(1000), VirtualShares)
	state.TotalBorrowAssets = new(big.Int).Set(borrowAssets)
	state.TotalBorrowShares = new(big.Int).Mul(borrowAssets, VirtualShares)
	return NewMarket(params.ID(), state, price)
}

func testPosition(market *Market, collateral *big.Int) *AccrualPosition {
	pos := entities.NewPositionState()
	pos.BorrowShares = new(big.Int).Set(market.TotalBorrowShares)
	pos.Collateral = new(big.Int).Set(collateral)
	return NewAccrualPosition(testUser, pos, market)
}

func TestMarket_AccrueInterest(t *testing.T) {
	market := testMarket(wad(900), OraclePriceScale)
	market.RateAtTarget = new(big.Int).Set(InitialRateAtTarget)
	market.Fee = big.NewInt(1e17)

	accrued := market.AccrueInterest(big.NewInt(1_000 + secondsPerYear))

	require.Equal(t, "936729599989643622900", accrued.TotalBorrowAssets.String())
	require.Equal(t, "1036729599989643622900", accrued.TotalSupplyAssets.String())
	expectedShares := new(big.Int).Add(market.TotalSupplyShares, mustBigInt("3555429447699500311330128"))
	require.Equal(t, expectedShares.String(), accrued.TotalSupplyShares.String())
	require.Equal(t, int64(1_000+secondsPerYear), accrued.LastUpdate.Int64())

	// source market is untouched
	require.Equal(t, wad(900).String(), market.TotalBorrowAssets.String())
	require.Equal(t, int64(1_000), market.LastUpdate.Int64())
}

func TestMarket_AccrueInterest_UnknownRate(t *testing.T) {
	market := testMarket(wad(900), OraclePriceScale)
	require.Nil(t, market.RateAtTarget)

	accrued := market.AccrueInterest(big.NewInt(1_000 + secondsPerYear))
	require.Equal(t, wad(900).String(), accrued.TotalBorrowAssets.String())
	require.Nil(t, accrued.RateAtTarget)
	require.Equal(t, int64(1_000+secondsPerYear), accrued.LastUpdate.Int64())
}

func TestMarket_AccrueInterest_PastTimestamp(t *testing.T) {
	market := testMarket(wad(900), OraclePriceScale)
	market.RateAtTarget = new(big.Int).Set(InitialRateAtTarget)

	accrued := market.AccrueInterest(big.NewInt(10))
	require.Equal(t, wad(900).String(), accrued.TotalBorrowAssets.String())
	require.Equal(t, int64(1_000), accrued.LastUpdate.Int64())
}

func TestAccrualPosition_SeizableCollateral(t *testing.T) {
	tests := []struct {
		name       string
		borrow     *big.Int
		collateral *big.Int
		price      *big.Int
		ok         bool
		expected   string
	}{
		{"healthy", big.NewInt(7e17), WAD, OraclePriceScale, true, "0"},
		{"unhealthy", big.NewInt(9e17), WAD, OraclePriceScale, true, "957446808510638297"},
		{"bad debt seizes everything", wad(2), WAD, OraclePriceScale, true, "1000000000000000000"},
		{"missing price", big.NewInt(9e17), WAD, nil, false, ""},
		{"zero price", big.NewInt(9e17), WAD, big.NewInt(0), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := testPosition(testMarket(tt.borrow, tt.price), tt.collateral)
			seizable, ok := pos.SeizableCollateral()
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				require.Nil(t, seizable)
				return
			}
			require.Equal(t, tt.expected, seizable.String())
		})
	}
}

func TestPreLiquidationPosition_SeizableCollateral(t *testing.T) {
	params := entities.PreLiquidationParams{
		PreLltv:              big.NewInt(7e17),
		PreLCF1:              big.NewInt(1e16),
		PreLCF2:              big.NewInt(5e17),
		PreLIF1:              big.NewInt(101e16),
		PreLIF2:              big.NewInt(105e16),
		PreLiquidationOracle: common.HexToAddress("0x05"),
	}

	tests := []struct {
		name     string
		borrow   *big.Int
		price    *big.Int
		ok       bool
		expected string
	}{
		{"inside the pre-liquidation band", big.NewInt(75e16), OraclePriceScale, true, "196987500000000000"},
		{"below pre lltv", big.NewInt(6e17), OraclePriceScale, true, "0"},
		{"above lltv", big.NewInt(9e17), OraclePriceScale, true, "0"},
		{"missing oracle price", big.NewInt(75e16), nil, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			market := testMarket(tt.borrow, OraclePriceScale)
			pos := &PreLiquidationPosition{
				AccrualPosition: testPosition(market, WAD),
				PreLiquidation:  common.HexToAddress("0x06"),
				Params:          params,
				OraclePrice:     tt.price,
			}

			seizable, ok := pos.SeizableCollateral()
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.expected, seizable.String())
			}
		})
	}
}
