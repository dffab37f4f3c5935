package morpho

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
)

// Market is an ephemeral valuation view built from indexed totals and a fresh oracle price
type Market struct {
	ID                common.Hash
	Params            entities.MarketParams
	TotalSupplyAssets *big.Int
	TotalSupplyShares *big.Int
	TotalBorrowAssets *big.Int
	TotalBorrowShares *big.Int
	LastUpdate        *big.Int
	Fee               *big.Int
	RateAtTarget      *big.Int
	// Price is nil when the oracle could not be read
	Price *big.Int
}

// NewMarket copies indexed totals into a valuation view
func NewMarket(id common.Hash, state *entities.MarketState, price *big.Int) *Market {
	s := state.Clone()
	m := &Market{
		ID:                id,
		Params:            s.Params,
		TotalSupplyAssets: s.TotalSupplyAssets,
		TotalSupplyShares: s.TotalSupplyShares,
		TotalBorrowAssets: s.TotalBorrowAssets,
		TotalBorrowShares: s.TotalBorrowShares,
		LastUpdate:        s.LastUpdate,
		Fee:               s.Fee,
		RateAtTarget:      s.RateAtTarget,
	}
	if price != nil {
		m.Price = new(big.Int).Set(price)
	}
	return m
}

// Utilization returns borrow / supply in WAD, zero for an empty market
func (m *Market) Utilization() *big.Int {
	if m.TotalSupplyAssets.Sign() == 0 {
		return new(big.Int)
	}
	return WDivDown(m.TotalBorrowAssets, m.TotalSupplyAssets)
}

// LiquidationIncentiveFactor returns the market's LIF
func (m *Market) LiquidationIncentiveFactor() *big.Int {
	return LiquidationIncentiveFactor(m.Params.Lltv)
}

// AccrueInterest returns a copy of the market with interest accrued up to timestamp.
// Timestamps at or before the last update leave the totals untouched.
func (m *Market) AccrueInterest(timestamp *big.Int) *Market {
	out := m.clone()

	elapsed := new(big.Int).Sub(timestamp, m.LastUpdate)
	if elapsed.Sign() <= 0 {
		return out
	}

	avgRate := new(big.Int)
	if m.RateAtTarget != nil {
		var endRateAtTarget *big.Int
		avgRate, endRateAtTarget = BorrowRate(m.Utilization(), m.RateAtTarget, elapsed)
		out.RateAtTarget = endRateAtTarget
	}

	interest := WMulDown(m.TotalBorrowAssets, WTaylorCompounded(avgRate, elapsed))
	feeAmount := WMulDown(interest, m.Fee)

	supplyAfter := new(big.Int).Add(m.TotalSupplyAssets, interest)
	feeShares := ToSharesDown(feeAmount, new(big.Int).Sub(supplyAfter, feeAmount), m.TotalSupplyShares)

	out.TotalSupplyAssets = supplyAfter
	out.TotalBorrowAssets = new(big.Int).Add(m.TotalBorrowAssets, interest)
	out.TotalSupplyShares = new(big.Int).Add(m.TotalSupplyShares, feeShares)
	out.LastUpdate = new(big.Int).Set(timestamp)

	return out
}

// ToBorrowAssetsUp converts borrow shares to assets rounding up
func (m *Market) ToBorrowAssetsUp(shares *big.Int) *big.Int {
	return ToAssetsUp(shares, m.TotalBorrowAssets, m.TotalBorrowShares)
}

// ToBorrowAssetsDown converts borrow shares to assets rounding down
func (m *Market) ToBorrowAssetsDown(shares *big.Int) *big.Int {
	return ToAssetsDown(shares, m.TotalBorrowAssets, m.TotalBorrowShares)
}

func (m *Market) clone() *Market {
	out := *m
	out.Params = m.Params.Clone()
	out.TotalSupplyAssets = new(big.Int).Set(m.TotalSupplyAssets)
	out.TotalSupplyShares = new(big.Int).Set(m.TotalSupplyShares)
	out.TotalBorrowAssets = new(big.Int).Set(m.TotalBorrowAssets)
	out.TotalBorrowShares = new(big.Int).Set(m.TotalBorrowShares)
	out.LastUpdate = new(big.Int).Set(m.LastUpdate)
	out.Fee = new(big.Int).Set(m.Fee)
	if m.RateAtTarget != nil {
		out.RateAtTarget = new(big.Int).Set(m.RateAtTarget)
	}
	if m.Price != nil {
		out.Price = new(big.Int).Set(m.Price)
	}
	return &out
}
