package morpho

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
)

// AccrualPosition is a borrower position valued against a Market
type AccrualPosition struct {
	User         common.Address
	SupplyShares *big.Int
	BorrowShares *big.Int
	Collateral   *big.Int
	Market       *Market
}

// NewAccrualPosition copies an indexed position into a valuation view
func NewAccrualPosition(user common.Address, pos *entities.PositionState, market *Market) *AccrualPosition {
	p := pos.Clone()
	return &AccrualPosition{
		User:         user,
		SupplyShares: p.SupplyShares,
		BorrowShares: p.BorrowShares,
		Collateral:   p.Collateral,
		Market:       market,
	}
}

// MarketID returns the id of the position's market
func (p *AccrualPosition) MarketID() common.Hash {
	return p.Market.ID
}

// AccrueInterest returns the position valued against its market accrued to timestamp
func (p *AccrualPosition) AccrueInterest(timestamp *big.Int) *AccrualPosition {
	out := *p
	out.Market = p.Market.AccrueInterest(timestamp)
	return &out
}

// BorrowAssets returns the debt rounded up, as the protocol does for health checks
func (p *AccrualPosition) BorrowAssets() *big.Int {
	return p.Market.ToBorrowAssetsUp(p.BorrowShares)
}

// IsHealthy reports whether the position is within its lltv; ok is false without a usable price
func (p *AccrualPosition) IsHealthy() (healthy bool, ok bool) {
	price := p.Market.Price
	if price == nil || price.Sign() == 0 {
		return false, false
	}
	collateralValue := MulDivDown(p.Collateral, price, OraclePriceScale)
	maxBorrow := WMulDown(collateralValue, p.Market.Params.Lltv)
	return maxBorrow.Cmp(p.BorrowAssets()) >= 0, true
}

// SeizableCollateral returns how much collateral a liquidator may seize.
// ok is false when the market price is unknown; healthy positions yield zero.
func (p *AccrualPosition) SeizableCollateral() (seizable *big.Int, ok bool) {
	healthy, ok := p.IsHealthy()
	if !ok {
		return nil, false
	}
	if healthy {
		return new(big.Int), true
	}

	repayable := WMulDown(p.Market.ToBorrowAssetsDown(p.BorrowShares), p.Market.LiquidationIncentiveFactor())
	seized := MulDivDown(repayable, OraclePriceScale, p.Market.Price)
	return minInt(p.Collateral, seized), true
}

// PreLiquidationPosition is a position eligible for an opt-in pre-liquidation contract
type PreLiquidationPosition struct {
	*AccrualPosition
	PreLiquidation common.Address
	Params         entities.PreLiquidationParams
	// OraclePrice is nil when the pre-liquidation oracle could not be read
	OraclePrice *big.Int
}

// SeizableCollateral returns the collateral seizable through the pre-liquidation curve.
// Positions below preLltv or above lltv yield zero.
func (p *PreLiquidationPosition) SeizableCollateral() (seizable *big.Int, ok bool) {
	price := p.OraclePrice
	if price == nil || price.Sign() == 0 {
		return nil, false
	}

	collateralQuoted := MulDivDown(p.Collateral, price, OraclePriceScale)
	borrowed := p.BorrowAssets()
	lltv := p.Market.Params.Lltv

	if borrowed.Cmp(WMulDown(collateralQuoted, p.Params.PreLltv)) <= 0 ||
		borrowed.Cmp(WMulDown(collateralQuoted, lltv)) > 0 {
		return new(big.Int), true
	}

	ltv := WDivUp(borrowed, collateralQuoted)
	quotient := WDivDown(new(big.Int).Sub(ltv, p.Params.PreLltv), new(big.Int).Sub(lltv, p.Params.PreLltv))

	preLIF := interpolate(quotient, p.Params.PreLIF1, p.Params.PreLIF2)
	preLCF := interpolate(quotient, p.Params.PreLCF1, p.Params.PreLCF2)

	repayableShares := WMulDown(p.BorrowShares, preLCF)
	repayableAssets := WMulDown(p.Market.ToBorrowAssetsDown(repayableShares), preLIF)
	seized := MulDivDown(repayableAssets, OraclePriceScale, price)

	return minInt(p.Collateral, seized), true
}

func interpolate(quotient, low, high *big.Int) *big.Int {
	v := WMulDown(quotient, new(big.Int).Sub(high, low))
	return v.Add(v, low)
}
