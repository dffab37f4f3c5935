// Package venues converts seized collateral into the loan token inside the executor batch
package venues

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

// Conversion is the amount of src still to be turned into dst
type Conversion struct {
	Src       common.Address
	Dst       common.Address
	SrcAmount *big.Int
}

// Venue is one liquidity source. Convert appends its calls to the encoder and
// returns the remaining conversion.
type Venue interface {
	Name() string
	SupportsRoute(ctx context.Context, enc *ethereum.Encoder, src, dst common.Address) (bool, error)
	Convert(ctx context.Context, enc *ethereum.Encoder, c Conversion) (Conversion, error)
}

// Names of the available venues
const (
	NameERC20Wrapper = "erc20Wrapper"
	NameERC4626      = "erc4626"
	NameUniswapV3    = "uniswapV3"
)

// Deps holds what venue constructors may need
type Deps struct {
	Caller   ethereum.ContractCaller
	Wrappers map[string]string

	UniswapV3Factory common.Address
	UniswapV3Quoter  common.Address
	UniswapV3Router  common.Address
}

// New creates a venue by name
func New(name string, deps Deps) (Venue, error) {
	switch name {
	case NameERC20Wrapper:
		return NewERC20Wrapper(deps.Wrappers), nil
	case NameERC4626:
		return NewERC4626(deps.Caller), nil
	case NameUniswapV3:
		zero := common.Address{}
		if deps.UniswapV3Factory == zero || deps.UniswapV3Quoter == zero || deps.UniswapV3Router == zero {
			return nil, fmt.Errorf("uniswapV3 venue needs uniswap_v3 factory, quoter and router")
		}
		return NewUniswapV3(deps.Caller, deps.UniswapV3Factory, deps.UniswapV3Quoter, deps.UniswapV3Router), nil
	default:
		return nil, fmt.Errorf("unknown liquidity venue: %s", name)
	}
}

// Build creates the venues in configured order
func Build(names []string, deps Deps) ([]Venue, error) {
	out := make([]Venue, 0, len(names))
	for _, name := range names {
		v, err := New(strings.TrimSpace(name), deps)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
