package morpho

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWExp(t *testing.T) {
	require.Equal(t, WAD.String(), WExp(big.NewInt(0)).String())
	require.Equal(t, wad(2).String(), WExp(ln2Int).String())
	require.Equal(t, "500000000000000000", WExp(new(big.Int).Neg(ln2Int)).String())

	belowMin := new(big.Int).Sub(lnWeiInt, big.NewInt(1))
	require.Zero(t, WExp(belowMin).Sign())
	require.Equal(t, wExpUpperValue.String(), WExp(wExpUpperBound).String())
}

func TestBorrowRate_Curve(t *testing.T) {
	rate := big.NewInt(4000)
	zero := big.NewInt(0)

	// at target the curve returns the rate at target
	avg, end := BorrowRate(TargetUtilization, rate, zero)
	require.Equal(t, "4000", avg.String())
	require.Equal(t, "4000", end.String())

	// full utilization multiplies by the steepness
	avg, _ = BorrowRate(WAD, rate, zero)
	require.Equal(t, "16000", avg.String())

	// zero utilization divides by the steepness
	avg, _ = BorrowRate(big.NewInt(0), rate, zero)
	require.Equal(t, "1000", avg.String())
}

func TestBorrowRate_FirstInteraction(t *testing.T) {
	avg, end := BorrowRate(TargetUtilization, big.NewInt(0), big.NewInt(100))
	require.Equal(t, InitialRateAtTarget.String(), avg.String())
	require.Equal(t, InitialRateAtTarget.String(), end.String())
}

func TestBorrowRate_Adaptation(t *testing.T) {
	day := big.NewInt(24 * 60 * 60)

	_, up := BorrowRate(WAD, InitialRateAtTarget, day)
	require.Equal(t, 1, up.Cmp(InitialRateAtTarget), "rate at target should rise above target utilization")

	_, down := BorrowRate(big.NewInt(0), InitialRateAtTarget, day)
	require.Equal(t, -1, down.Cmp(InitialRateAtTarget), "rate at target should fall below target utilization")

	decade := big.NewInt(10 * secondsPerYear)
	_, capped := BorrowRate(WAD, InitialRateAtTarget, decade)
	require.Equal(t, MaxRateAtTarget.String(), capped.String())

	_, floored := BorrowRate(big.NewInt(0), InitialRateAtTarget, decade)
	require.Equal(t, MinRateAtTarget.String(), floored.String())
}
