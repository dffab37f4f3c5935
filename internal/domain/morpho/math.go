// Package morpho ports the Morpho Blue fixed-point math used to value positions
// off-chain from indexed totals.
package morpho

import (
	"math/big"
)

var (
	// WAD is the 18-decimal fixed-point unit
	WAD = big.NewInt(1e18)

	// OraclePriceScale is the scale of oracle prices (1e36)
	OraclePriceScale = mustBigInt("1000000000000000000000000000000000000")

	// VirtualShares and VirtualAssets offset share conversions
	VirtualShares = big.NewInt(1e6)
	VirtualAssets = big.NewInt(1)

	// LiquidationCursor is 0.3 WAD
	LiquidationCursor = big.NewInt(3e17)

	// MaxLiquidationIncentiveFactor is 1.15 WAD
	MaxLiquidationIncentiveFactor = big.NewInt(115e16)

	// bpsToWad converts basis points to WAD (1 bps = 1e14)
	bpsToWad = big.NewInt(1e14)
)

func mustBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid integer constant " + s)
	}
	return v
}

// MulDivDown returns x*y/d rounded down
func MulDivDown(x, y, d *big.Int) *big.Int {
	z := new(big.Int).Mul(x, y)
	return z.Div(z, d)
}

// MulDivUp returns x*y/d rounded up
func MulDivUp(x, y, d *big.Int) *big.Int {
	z := new(big.Int).Mul(x, y)
	z.Add(z, d)
	z.Sub(z, big.NewInt(1))
	return z.Div(z, d)
}

// WMulDown returns x*y/WAD rounded down
func WMulDown(x, y *big.Int) *big.Int {
	return MulDivDown(x, y, WAD)
}

// WDivDown returns x*WAD/y rounded down
func WDivDown(x, y *big.Int) *big.Int {
	return MulDivDown(x, WAD, y)
}

// WDivUp returns x*WAD/y rounded up
func WDivUp(x, y *big.Int) *big.Int {
	return MulDivUp(x, WAD, y)
}

// WTaylorCompounded approximates e^(x*n) - 1 with the first three Taylor terms
func WTaylorCompounded(x, n *big.Int) *big.Int {
	first := new(big.Int).Mul(x, n)
	second := MulDivDown(first, first, new(big.Int).Mul(big.NewInt(2), WAD))
	third := MulDivDown(second, first, new(big.Int).Mul(big.NewInt(3), WAD))

	sum := new(big.Int).Add(first, second)
	return sum.Add(sum, third)
}

// ToAssetsDown converts shares to assets rounding down
func ToAssetsDown(shares, totalAssets, totalShares *big.Int) *big.Int {
	return MulDivDown(shares, new(big.Int).Add(totalAssets, VirtualAssets), new(big.Int).Add(totalShares, VirtualShares))
}

// ToAssetsUp converts shares to assets rounding up
func ToAssetsUp(shares, totalAssets, totalShares *big.Int) *big.Int {
	return MulDivUp(shares, new(big.Int).Add(totalAssets, VirtualAssets), new(big.Int).Add(totalShares, VirtualShares))
}

// ToSharesDown converts assets to shares rounding down
func ToSharesDown(assets, totalAssets, totalShares *big.Int) *big.Int {
	return MulDivDown(assets, new(big.Int).Add(totalShares, VirtualShares), new(big.Int).Add(totalAssets, VirtualAssets))
}

// ToSharesUp converts assets to shares rounding up
func ToSharesUp(assets, totalAssets, totalShares *big.Int) *big.Int {
	return MulDivUp(assets, new(big.Int).Add(totalShares, VirtualShares), new(big.Int).Add(totalAssets, VirtualAssets))
}

// LiquidationIncentiveFactor returns min(1.15, 1 / (1 - cursor*(1 - lltv)))
func LiquidationIncentiveFactor(lltv *big.Int) *big.Int {
	discount := WMulDown(LiquidationCursor, new(big.Int).Sub(WAD, lltv))
	lif := WDivDown(WAD, new(big.Int).Sub(WAD, discount))
	return minInt(lif, MaxLiquidationIncentiveFactor)
}

// AdjustSeizable reduces seizable collateral by bufferBps basis points.
// Bad debt positions seize everything, so the buffer is skipped.
// A buffer of 10000 bps or more leaves nothing to seize.
func AdjustSeizable(seizable *big.Int, bufferBps int64, badDebt bool) *big.Int {
	if badDebt || bufferBps <= 0 {
		return new(big.Int).Set(seizable)
	}
	if bufferBps >= 10000 {
		return new(big.Int)
	}
	buffer := new(big.Int).Mul(big.NewInt(bufferBps), bpsToWad)
	return WMulDown(seizable, new(big.Int).Sub(WAD, buffer))
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func maxInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
