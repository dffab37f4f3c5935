package pricers

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

// TokenDecimals reads ERC-20 decimals
type TokenDecimals interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// UniswapV3 prices an asset by quoting one whole unit into a USD stablecoin,
// which is taken to be worth exactly one dollar
type UniswapV3 struct {
	quoter   *ethereum.UniswapV3Quoter
	usdToken common.Address
	decimals TokenDecimals
}

// NewUniswapV3 creates the pricer
func NewUniswapV3(caller ethereum.ContractCaller, factory, quoter, usdToken common.Address, decimals TokenDecimals) *UniswapV3 {
	return &UniswapV3{
		quoter:   ethereum.NewUniswapV3Quoter(caller, factory, quoter),
		usdToken: usdToken,
		decimals: decimals,
	}
}

func (p *UniswapV3) Name() string { return NameUniswapV3 }

func (p *UniswapV3) Price(ctx context.Context, asset common.Address) (decimal.Decimal, bool, error) {
	if asset == p.usdToken {
		return decimal.NewFromInt(1), true, nil
	}

	assetDecimals, err := p.decimals.Decimals(ctx, asset)
	if err != nil {
		return decimal.Zero, false, err
	}
	usdDecimals, err := p.decimals.Decimals(ctx, p.usdToken)
	if err != nil {
		return decimal.Zero, false, err
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(assetDecimals)), nil)
	quote, err := p.quoter.BestQuote(ctx, asset, p.usdToken, unit)
	if errors.Is(err, ethereum.ErrNoPool) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	return decimal.NewFromBigInt(quote.AmountOut, -int32(usdDecimals)), true, nil
}
