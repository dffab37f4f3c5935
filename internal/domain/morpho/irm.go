package morpho

import (
	"math/big"
)

const secondsPerYear = 365 * 24 * 60 * 60

// AdaptiveCurveIRM parameters, rates are per second
var (
	CurveSteepness      = big.NewInt(4e18)
	AdjustmentSpeed     = new(big.Int).Div(mustBigInt("50000000000000000000"), big.NewInt(secondsPerYear))
	TargetUtilization   = big.NewInt(9e17)
	InitialRateAtTarget = new(big.Int).Div(big.NewInt(4e16), big.NewInt(secondsPerYear))
	MinRateAtTarget     = new(big.Int).Div(big.NewInt(1e15), big.NewInt(secondsPerYear))
	MaxRateAtTarget     = new(big.Int).Div(big.NewInt(2e18), big.NewInt(secondsPerYear))
)

// wExp bounds
var (
	ln2Int          = mustBigInt("693147180559945309")
	lnWeiInt        = mustBigInt("-41446531673892822312")
	wExpUpperBound  = mustBigInt("93859467695000404319")
	wExpUpperValue  = mustBigInt("57716089161558943949701069502944508345128422502756744429568")
	halfLn2         = new(big.Int).Div(ln2Int, big.NewInt(2))
	negativeHalfLn2 = new(big.Int).Neg(halfLn2)
)

// wMulToZero returns x*y/WAD rounded towards zero
func wMulToZero(x, y *big.Int) *big.Int {
	z := new(big.Int).Mul(x, y)
	return z.Quo(z, WAD)
}

// wDivToZero returns x*WAD/y rounded towards zero
func wDivToZero(x, y *big.Int) *big.Int {
	z := new(big.Int).Mul(x, WAD)
	return z.Quo(z, y)
}

// WExp approximates e^x for a WAD-scaled signed x
func WExp(x *big.Int) *big.Int {
	if x.Cmp(lnWeiInt) < 0 {
		return new(big.Int)
	}
	if x.Cmp(wExpUpperBound) >= 0 {
		return new(big.Int).Set(wExpUpperValue)
	}

	// x = q*ln(2) + r with -ln(2)/2 <= r <= ln(2)/2
	rounding := halfLn2
	if x.Sign() < 0 {
		rounding = negativeHalfLn2
	}
	q := new(big.Int).Add(x, rounding)
	q.Quo(q, ln2Int)
	r := new(big.Int).Sub(x, new(big.Int).Mul(q, ln2Int))

	// e^r ~ 1 + r + r^2/2
	square := new(big.Int).Mul(r, r)
	square.Quo(square, WAD)
	square.Quo(square, big.NewInt(2))
	expR := new(big.Int).Add(WAD, r)
	expR.Add(expR, square)

	shift := uint(new(big.Int).Abs(q).Uint64())
	if q.Sign() >= 0 {
		return expR.Lsh(expR, shift)
	}
	return expR.Rsh(expR, shift)
}

// BorrowRate evaluates the adaptive curve for a utilization over elapsed seconds.
// It returns the average borrow rate over the period and the rate at target at its end.
func BorrowRate(utilization, startRateAtTarget, elapsed *big.Int) (avgRate, endRateAtTarget *big.Int) {
	errNormFactor := TargetUtilization
	if utilization.Cmp(TargetUtilization) > 0 {
		errNormFactor = new(big.Int).Sub(WAD, TargetUtilization)
	}
	errUtil := wDivToZero(new(big.Int).Sub(utilization, TargetUtilization), errNormFactor)

	var avgRateAtTarget *big.Int
	if startRateAtTarget.Sign() == 0 {
		// first interaction with the market
		avgRateAtTarget = new(big.Int).Set(InitialRateAtTarget)
		endRateAtTarget = new(big.Int).Set(InitialRateAtTarget)
	} else {
		speed := wMulToZero(AdjustmentSpeed, errUtil)
		linearAdaptation := new(big.Int).Mul(speed, elapsed)

		if linearAdaptation.Sign() == 0 {
			avgRateAtTarget = new(big.Int).Set(startRateAtTarget)
			endRateAtTarget = new(big.Int).Set(startRateAtTarget)
		} else {
			endRateAtTarget = newRateAtTarget(startRateAtTarget, linearAdaptation)
			midRateAtTarget := newRateAtTarget(startRateAtTarget, new(big.Int).Quo(linearAdaptation, big.NewInt(2)))

			avgRateAtTarget = new(big.Int).Add(startRateAtTarget, endRateAtTarget)
			avgRateAtTarget.Add(avgRateAtTarget, new(big.Int).Mul(big.NewInt(2), midRateAtTarget))
			avgRateAtTarget.Quo(avgRateAtTarget, big.NewInt(4))
		}
	}

	return curve(avgRateAtTarget, errUtil), endRateAtTarget
}

func newRateAtTarget(start, linearAdaptation *big.Int) *big.Int {
	rate := wMulToZero(start, WExp(linearAdaptation))
	return minInt(maxInt(rate, MinRateAtTarget), MaxRateAtTarget)
}

func curve(rateAtTarget, errUtil *big.Int) *big.Int {
	var coeff *big.Int
	if errUtil.Sign() < 0 {
		coeff = new(big.Int).Sub(WAD, wDivToZero(WAD, CurveSteepness))
	} else {
		coeff = new(big.Int).Sub(CurveSteepness, WAD)
	}
	factor := wMulToZero(coeff, errUtil)
	factor.Add(factor, WAD)
	return wMulToZero(factor, rateAtTarget)
}
