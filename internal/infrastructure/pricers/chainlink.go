package pricers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

// Chainlink reads USD prices from configured aggregator feeds
type Chainlink struct {
	caller ethereum.ContractCaller
	feeds  map[common.Address]common.Address
}

// NewChainlink creates the pricer from an asset -> feed address map
func NewChainlink(caller ethereum.ContractCaller, feeds map[string]string) *Chainlink {
	parsed := make(map[common.Address]common.Address, len(feeds))
	for asset, feed := range addressKeyed(feeds) {
		parsed[asset] = common.HexToAddress(feed)
	}
	return &Chainlink{caller: caller, feeds: parsed}
}

func (p *Chainlink) Name() string { return NameChainlink }

func (p *Chainlink) Price(ctx context.Context, asset common.Address) (decimal.Decimal, bool, error) {
	feed, ok := p.feeds[asset]
	if !ok {
		return decimal.Zero, false, nil
	}

	round, err := p.call(ctx, feed, "latestRoundData")
	if err != nil {
		return decimal.Zero, false, err
	}
	answer, ok := round[1].(*big.Int)
	if !ok {
		return decimal.Zero, false, fmt.Errorf("unexpected latestRoundData answer from %s", feed.Hex())
	}
	if answer.Sign() <= 0 {
		return decimal.Zero, false, nil
	}

	out, err := p.call(ctx, feed, "decimals")
	if err != nil {
		return decimal.Zero, false, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return decimal.Zero, false, fmt.Errorf("unexpected decimals from %s", feed.Hex())
	}

	return decimal.NewFromBigInt(answer, -int32(dec)), true, nil
}

func (p *Chainlink) call(ctx context.Context, feed common.Address, method string) ([]interface{}, error) {
	data, err := ethereum.OracleABI.Pack(method)
	if err != nil {
		return nil, err
	}
	raw, err := p.caller.CallContract(ctx, feed, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on feed %s: %w", method, feed.Hex(), err)
	}
	out, err := ethereum.OracleABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s from feed %s: %w", method, feed.Hex(), err)
	}
	return out, nil
}
