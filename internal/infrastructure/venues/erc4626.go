package venues

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

// ERC4626 redeems vault shares for the vault's underlying asset
type ERC4626 struct {
	caller ethereum.ContractCaller
}

// NewERC4626 creates the venue
func NewERC4626(caller ethereum.ContractCaller) *ERC4626 {
	return &ERC4626{caller: caller}
}

func (v *ERC4626) Name() string { return NameERC4626 }

// SupportsRoute holds when src answers asset(); a revert means src is not a vault
func (v *ERC4626) SupportsRoute(ctx context.Context, _ *ethereum.Encoder, src, dst common.Address) (bool, error) {
	if src == dst {
		return false, nil
	}
	_, err := v.asset(ctx, src)
	return err == nil, nil
}

func (v *ERC4626) Convert(ctx context.Context, enc *ethereum.Encoder, c Conversion) (Conversion, error) {
	asset, err := v.asset(ctx, c.Src)
	if err != nil {
		return c, err
	}

	data, err := ethereum.VaultABI.Pack("previewRedeem", c.SrcAmount)
	if err != nil {
		return c, err
	}
	out, err := v.caller.CallContract(ctx, c.Src, data)
	if err != nil {
		return c, fmt.Errorf("failed to preview redeem on %s: %w", c.Src.Hex(), err)
	}
	if len(out) < 32 {
		return c, fmt.Errorf("invalid previewRedeem response from %s", c.Src.Hex())
	}
	assets := new(big.Int).SetBytes(out[:32])

	if err := enc.ERC4626Redeem(c.Src, c.SrcAmount); err != nil {
		return c, err
	}
	return Conversion{Src: asset, Dst: c.Dst, SrcAmount: assets}, nil
}

func (v *ERC4626) asset(ctx context.Context, vault common.Address) (common.Address, error) {
	data, err := ethereum.VaultABI.Pack("asset")
	if err != nil {
		return common.Address{}, err
	}
	out, err := v.caller.CallContract(ctx, vault, data)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("invalid asset response from %s", vault.Hex())
	}
	return common.BytesToAddress(out[:32]), nil
}
