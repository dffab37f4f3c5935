package pricers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefiLlamaURL is the public coins API
const DefiLlamaURL = "https://coins.llama.fi"

// DefiLlama prices assets with the DefiLlama coins API
type DefiLlama struct {
	baseURL string
	chain   string
	http    *http.Client
	logger  *zap.Logger
}

// NewDefiLlama creates the pricer. chain is DefiLlama's chain slug, e.g. "ethereum".
func NewDefiLlama(baseURL, chain string, logger *zap.Logger) *DefiLlama {
	return &DefiLlama{
		baseURL: strings.TrimRight(baseURL, "/"),
		chain:   chain,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

func (p *DefiLlama) Name() string { return NameDefiLlama }

func (p *DefiLlama) Price(ctx context.Context, asset common.Address) (decimal.Decimal, bool, error) {
	coin := p.chain + ":" + strings.ToLower(asset.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/prices/current/"+coin, nil)
	if err != nil {
		return decimal.Zero, false, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to fetch defillama price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, false, fmt.Errorf("defillama request failed: status=%d", resp.StatusCode)
	}

	var body struct {
		Coins map[string]struct {
			Price json.Number `json:"price"`
		} `json:"coins"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to decode defillama response: %w", err)
	}

	entry, ok := body.Coins[coin]
	if !ok {
		p.logger.Debug("No defillama price", zap.String("coin", coin))
		return decimal.Zero, false, nil
	}
	price, err := decimal.NewFromString(entry.Price.String())
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid defillama price %q: %w", entry.Price, err)
	}
	return price, true, nil
}
