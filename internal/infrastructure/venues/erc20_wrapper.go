package venues

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

// ERC20Wrapper unwraps configured wrapper tokens into their underlying with withdrawTo
type ERC20Wrapper struct {
	underlying map[common.Address]common.Address
}

// NewERC20Wrapper creates the venue from a wrapper -> underlying address map
func NewERC20Wrapper(wrappers map[string]string) *ERC20Wrapper {
	underlying := make(map[common.Address]common.Address, len(wrappers))
	for wrapper, token := range wrappers {
		underlying[common.HexToAddress(wrapper)] = common.HexToAddress(token)
	}
	return &ERC20Wrapper{underlying: underlying}
}

func (v *ERC20Wrapper) Name() string { return NameERC20Wrapper }

func (v *ERC20Wrapper) SupportsRoute(_ context.Context, _ *ethereum.Encoder, src, dst common.Address) (bool, error) {
	if src == dst {
		return false, nil
	}
	_, ok := v.underlying[src]
	return ok, nil
}

func (v *ERC20Wrapper) Convert(_ context.Context, enc *ethereum.Encoder, c Conversion) (Conversion, error) {
	token, ok := v.underlying[c.Src]
	if !ok {
		return c, fmt.Errorf("%s is not a known wrapper", c.Src.Hex())
	}
	if err := enc.ERC20WrapperWithdrawTo(c.Src, enc.Address(), c.SrcAmount); err != nil {
		return c, err
	}
	return Conversion{Src: token, Dst: c.Dst, SrcAmount: c.SrcAmount}, nil
}
