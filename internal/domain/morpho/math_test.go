package morpho

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), WAD)
}

func TestMulDiv_Rounding(t *testing.T) {
	require.Equal(t, "3", MulDivDown(big.NewInt(7), big.NewInt(1), big.NewInt(2)).String())
	require.Equal(t, "4", MulDivUp(big.NewInt(7), big.NewInt(1), big.NewInt(2)).String())
	require.Equal(t, "3", MulDivUp(big.NewInt(6), big.NewInt(1), big.NewInt(2)).String())
}

func TestShareConversions(t *testing.T) {
	totalAssets := wad(900)
	totalShares := new(big.Int).Mul(wad(900), VirtualShares)

	shares := ToSharesDown(wad(1), totalAssets, totalShares)
	require.Equal(t, "1000000000000000000000000", shares.String())

	require.True(t, ToAssetsUp(shares, totalAssets, totalShares).Cmp(ToAssetsDown(shares, totalAssets, totalShares)) >= 0)
	require.True(t, ToSharesUp(wad(1), totalAssets, totalShares).Cmp(shares) >= 0)
}

func TestWTaylorCompounded(t *testing.T) {
	require.Zero(t, WTaylorCompounded(InitialRateAtTarget, big.NewInt(0)).Sign())

	// 4% over one year on 900 borrowed
	interest := WMulDown(wad(900), WTaylorCompounded(InitialRateAtTarget, big.NewInt(secondsPerYear)))
	require.Equal(t, "36729599989643622900", interest.String())
}

func TestLiquidationIncentiveFactor(t *testing.T) {
	tests := []struct {
		lltv     string
		expected string
	}{
		{"800000000000000000", "1063829787234042553"},
		{"945000000000000000", "1016776817488561260"},
		{"0", "1150000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.lltv, func(t *testing.T) {
			require.Equal(t, tt.expected, LiquidationIncentiveFactor(mustBigInt(tt.lltv)).String())
		})
	}
}

func TestAdjustSeizable(t *testing.T) {
	require.Equal(t, "995", AdjustSeizable(big.NewInt(1000), 50, false).String())
	require.Equal(t, "1000", AdjustSeizable(big.NewInt(1000), 50, true).String())
	require.Equal(t, "1000", AdjustSeizable(big.NewInt(1000), 0, false).String())
	require.Equal(t, "0", AdjustSeizable(big.NewInt(1000), 10000, false).String())
	require.Equal(t, "0", AdjustSeizable(big.NewInt(1000), 20000, false).String())

	in := big.NewInt(1000)
	out := AdjustSeizable(in, 50, true)
	out.SetInt64(1)
	require.Equal(t, "1000", in.String())
}
