package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
)

// MaxUint256 is used for unlimited approvals
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var executorCallArgs = abi.Arguments{
	{Type: mustType("address")},
	{Type: mustType("uint256")},
	{Type: mustType("bytes")},
}

var callbackArgs = abi.Arguments{{Type: mustType("bytes[]")}}

// Encoder accumulates the calls an executor contract runs in one transaction.
// Each call is abi.encode(target, value, data); nested batches are handed to
// protocol callbacks as abi.encode(bytes[]).
type Encoder struct {
	executor common.Address
	calls    [][]byte
}

// NewEncoder creates an empty batch for the given executor
func NewEncoder(executor common.Address) *Encoder {
	return &Encoder{executor: executor}
}

// Address returns the executor the batch targets
func (e *Encoder) Address() common.Address {
	return e.executor
}

// Len returns the number of pending calls
func (e *Encoder) Len() int {
	return len(e.calls)
}

// Flush returns the pending calls and resets the batch
func (e *Encoder) Flush() [][]byte {
	calls := e.calls
	e.calls = nil
	return calls
}

// PushCall appends a raw call
func (e *Encoder) PushCall(target common.Address, value *big.Int, data []byte) error {
	if value == nil {
		value = new(big.Int)
	}
	encoded, err := executorCallArgs.Pack(target, value, data)
	if err != nil {
		return fmt.Errorf("failed to encode call to %s: %w", target.Hex(), err)
	}
	e.calls = append(e.calls, encoded)
	return nil
}

func (e *Encoder) push(target common.Address, contract abi.ABI, method string, args ...interface{}) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", method, err)
	}
	return e.PushCall(target, nil, data)
}

// ERC20Approve approves spender on token
func (e *Encoder) ERC20Approve(token, spender common.Address, amount *big.Int) error {
	return e.push(token, ERC20ABI, "approve", spender, amount)
}

// ERC20Skim sends the executor's whole token balance to recipient
func (e *Encoder) ERC20Skim(token, recipient common.Address) error {
	return e.push(e.executor, ExecutorABI, "skim", token, recipient)
}

// ERC20WrapperWithdrawTo unwraps amount of wrapper into its underlying for account
func (e *Encoder) ERC20WrapperWithdrawTo(wrapper, account common.Address, amount *big.Int) error {
	return e.push(wrapper, ERC20ABI, "withdrawTo", account, amount)
}

// ERC4626Redeem redeems vault shares held by the executor
func (e *Encoder) ERC4626Redeem(vault common.Address, shares *big.Int) error {
	return e.push(vault, VaultABI, "redeem", shares, e.executor, e.executor)
}

// UniswapV3ExactInputSingle swaps amountIn of tokenIn held by the executor through
// a SwapRouter02 pool, sending the output back to the executor
func (e *Encoder) UniswapV3ExactInputSingle(router, tokenIn, tokenOut common.Address, fee uint32, amountIn, amountOutMin *big.Int) error {
	params := exactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		Recipient:         e.executor,
		AmountIn:          amountIn,
		AmountOutMinimum:  amountOutMin,
		SqrtPriceLimitX96: new(big.Int),
	}
	return e.push(router, UniswapV3ABI, "exactInputSingle", params)
}

// MorphoBlueLiquidate liquidates borrower, running callback during the liquidation
func (e *Encoder) MorphoBlueLiquidate(morpho common.Address, params entities.MarketParams, borrower common.Address, seizedAssets, repaidShares *big.Int, callback [][]byte) error {
	data, err := encodeCallback(callback)
	if err != nil {
		return err
	}
	tuple := marketParamsTuple{
		LoanToken:       params.LoanToken,
		CollateralToken: params.CollateralToken,
		Oracle:          params.Oracle,
		Irm:             params.Irm,
		Lltv:            params.Lltv,
	}
	return e.push(morpho, MorphoABI, "liquidate", tuple, borrower, seizedAssets, repaidShares, data)
}

// PreLiquidate pre-liquidates borrower through a pre-liquidation contract
func (e *Encoder) PreLiquidate(preLiquidation, borrower common.Address, seizedAssets, repaidShares *big.Int, callback [][]byte) error {
	data, err := encodeCallback(callback)
	if err != nil {
		return err
	}
	return e.push(preLiquidation, PreLiquidationABI, "preLiquidate", borrower, seizedAssets, repaidShares, data)
}

// EncodeExec encodes the executor entrypoint for a batch
func EncodeExec(calls [][]byte) ([]byte, error) {
	if calls == nil {
		calls = [][]byte{}
	}
	data, err := ExecutorABI.Pack("exec_606BaXt", calls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode executor batch: %w", err)
	}
	return data, nil
}

func encodeCallback(calls [][]byte) ([]byte, error) {
	if len(calls) == 0 {
		return []byte{}, nil
	}
	data, err := callbackArgs.Pack(calls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode callback: %w", err)
	}
	return data, nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
