package venues

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

// UniswapV3 swaps src into dst through the best single Uniswap V3 pool
type UniswapV3 struct {
	quoter *ethereum.UniswapV3Quoter
	router common.Address
}

// NewUniswapV3 creates the venue for one factory, QuoterV2 and SwapRouter02 deployment
func NewUniswapV3(caller ethereum.ContractCaller, factory, quoter, router common.Address) *UniswapV3 {
	return &UniswapV3{
		quoter: ethereum.NewUniswapV3Quoter(caller, factory, quoter),
		router: router,
	}
}

func (v *UniswapV3) Name() string { return NameUniswapV3 }

func (v *UniswapV3) SupportsRoute(ctx context.Context, _ *ethereum.Encoder, src, dst common.Address) (bool, error) {
	if src == dst {
		return false, nil
	}
	fees, err := v.quoter.Pools(ctx, src, dst)
	if err != nil {
		return false, err
	}
	return len(fees) > 0, nil
}

// Convert swaps the whole amount, requiring at least the quoted output
func (v *UniswapV3) Convert(ctx context.Context, enc *ethereum.Encoder, c Conversion) (Conversion, error) {
	if c.SrcAmount == nil || c.SrcAmount.Sign() <= 0 {
		return c, errors.New("nothing to swap")
	}

	quote, err := v.quoter.BestQuote(ctx, c.Src, c.Dst, c.SrcAmount)
	if err != nil {
		return c, err
	}

	if err := enc.ERC20Approve(c.Src, v.router, c.SrcAmount); err != nil {
		return c, err
	}
	if err := enc.UniswapV3ExactInputSingle(v.router, c.Src, c.Dst, quote.Fee, c.SrcAmount, quote.AmountOut); err != nil {
		return c, err
	}
	return Conversion{Src: c.Dst, Dst: c.Dst, SrcAmount: quote.AmountOut}, nil
}
