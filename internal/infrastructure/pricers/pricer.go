// Package pricers prices assets in USD for the profitability check
package pricers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/morphoapi"
)

// Pricer returns the USD price of one whole unit of asset. ok is false when the
// pricer has no price for it.
type Pricer interface {
	Name() string
	Price(ctx context.Context, asset common.Address) (price decimal.Decimal, ok bool, err error)
}

// Names of the available pricers
const (
	NameFixed     = "fixed"
	NameChainlink = "chainlink"
	NameDefiLlama = "defillama"
	NameMorphoAPI = "morphoApi"
	NameUniswapV3 = "uniswapV3"
)

// Deps holds what pricer constructors may need
type Deps struct {
	ChainID        int64
	Caller         ethereum.ContractCaller
	MorphoAPI      *morphoapi.Client
	FixedPrices    map[string]string
	ChainlinkFeeds map[string]string
	DefiLlamaChain string
	Decimals       TokenDecimals
	Logger         *zap.Logger

	UniswapV3Factory common.Address
	UniswapV3Quoter  common.Address
	USDToken         common.Address
}

// New creates a pricer by name
func New(name string, deps Deps) (Pricer, error) {
	switch name {
	case NameFixed:
		return NewFixed(deps.FixedPrices)
	case NameChainlink:
		return NewChainlink(deps.Caller, deps.ChainlinkFeeds), nil
	case NameDefiLlama:
		if deps.DefiLlamaChain == "" {
			return nil, fmt.Errorf("defillama pricer needs defillama_chain")
		}
		return NewDefiLlama(DefiLlamaURL, deps.DefiLlamaChain, deps.Logger), nil
	case NameMorphoAPI:
		if deps.MorphoAPI == nil {
			return nil, fmt.Errorf("morphoApi pricer needs a Morpho API client")
		}
		return NewMorphoAPI(deps.MorphoAPI, deps.ChainID), nil
	case NameUniswapV3:
		zero := common.Address{}
		if deps.UniswapV3Factory == zero || deps.UniswapV3Quoter == zero || deps.USDToken == zero || deps.Decimals == nil {
			return nil, fmt.Errorf("uniswapV3 pricer needs uniswap_v3 factory, quoter and usd_token")
		}
		return NewUniswapV3(deps.Caller, deps.UniswapV3Factory, deps.UniswapV3Quoter, deps.USDToken, deps.Decimals), nil
	default:
		return nil, fmt.Errorf("unknown pricer: %s", name)
	}
}

// Build creates the pricers in configured order
func Build(names []string, deps Deps) ([]Pricer, error) {
	out := make([]Pricer, 0, len(names))
	for _, name := range names {
		p, err := New(strings.TrimSpace(name), deps)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func addressKeyed(values map[string]string) map[common.Address]string {
	out := make(map[common.Address]string, len(values))
	for addr, v := range values {
		out[common.HexToAddress(addr)] = v
	}
	return out
}
