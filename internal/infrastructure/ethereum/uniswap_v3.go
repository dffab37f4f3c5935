package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UniswapV3FeeTiers are the pool fees checked for a pair, in hundredths of a bip
var UniswapV3FeeTiers = []uint32{100, 500, 3000, 10000}

// ErrNoPool is returned when no fee tier has a pool for a pair
var ErrNoPool = errors.New("no uniswap v3 pool")

// UniswapV3Quote is the best single-pool quote for a swap
type UniswapV3Quote struct {
	Fee       uint32
	AmountOut *big.Int
}

// UniswapV3Quoter finds pools through the factory and quotes them with QuoterV2
type UniswapV3Quoter struct {
	caller  ContractCaller
	factory common.Address
	quoter  common.Address
}

// NewUniswapV3Quoter creates a quoter for one deployment
func NewUniswapV3Quoter(caller ContractCaller, factory, quoter common.Address) *UniswapV3Quoter {
	return &UniswapV3Quoter{caller: caller, factory: factory, quoter: quoter}
}

// Pools returns the fee tiers that have a deployed pool for the pair
func (q *UniswapV3Quoter) Pools(ctx context.Context, tokenA, tokenB common.Address) ([]uint32, error) {
	var fees []uint32
	for _, fee := range UniswapV3FeeTiers {
		data, err := UniswapV3ABI.Pack("getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
		if err != nil {
			return nil, err
		}
		out, err := q.caller.CallContract(ctx, q.factory, data)
		if err != nil {
			return nil, fmt.Errorf("failed to read pool %s/%s fee %d: %w", tokenA.Hex(), tokenB.Hex(), fee, err)
		}
		if len(out) < 32 {
			return nil, fmt.Errorf("invalid getPool response for fee %d", fee)
		}
		if common.BytesToAddress(out[:32]) != (common.Address{}) {
			fees = append(fees, fee)
		}
	}
	return fees, nil
}

// BestQuote quotes amountIn on every existing pool of the pair and keeps the largest output.
// Pools whose quote reverts are ignored.
func (q *UniswapV3Quoter) BestQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (UniswapV3Quote, error) {
	fees, err := q.Pools(ctx, tokenIn, tokenOut)
	if err != nil {
		return UniswapV3Quote{}, err
	}

	var best UniswapV3Quote
	for _, fee := range fees {
		out, err := q.quote(ctx, tokenIn, tokenOut, fee, amountIn)
		if err != nil {
			continue
		}
		if best.AmountOut == nil || out.Cmp(best.AmountOut) > 0 {
			best = UniswapV3Quote{Fee: fee, AmountOut: out}
		}
	}
	if best.AmountOut == nil || best.AmountOut.Sign() == 0 {
		return UniswapV3Quote{}, fmt.Errorf("%w for %s/%s", ErrNoPool, tokenIn.Hex(), tokenOut.Hex())
	}
	return best, nil
}

func (q *UniswapV3Quoter) quote(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	data, err := UniswapV3ABI.Pack("quoteExactInputSingle", quoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, err
	}
	raw, err := q.caller.CallContract(ctx, q.quoter, data)
	if err != nil {
		return nil, err
	}
	out, err := UniswapV3ABI.Unpack("quoteExactInputSingle", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quote output %T", out[0])
	}
	return amountOut, nil
}
