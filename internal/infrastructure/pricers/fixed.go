package pricers

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Fixed serves statically configured prices, typically for stablecoins
type Fixed struct {
	prices map[common.Address]decimal.Decimal
}

// NewFixed parses an address -> decimal string map
func NewFixed(prices map[string]string) (*Fixed, error) {
	parsed := make(map[common.Address]decimal.Decimal, len(prices))
	for addr, raw := range addressKeyed(prices) {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fixed price for %s: %w", addr.Hex(), err)
		}
		parsed[addr] = p
	}
	return &Fixed{prices: parsed}, nil
}

func (p *Fixed) Name() string { return NameFixed }

func (p *Fixed) Price(_ context.Context, asset common.Address) (decimal.Decimal, bool, error) {
	price, ok := p.prices[asset]
	return price, ok, nil
}
