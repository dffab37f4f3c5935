// Package morphoapi queries the Morpho GraphQL API for whitelisted vaults,
// liquidation candidates and asset prices
package morphoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const pageSize = 100

// Candidate is a position the API reports as liquidatable
type Candidate struct {
	MarketID     common.Hash
	User         common.Address
	SupplyShares *big.Int
	BorrowShares *big.Int
	Collateral   *big.Int
}

// Client is a minimal GraphQL client
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a client for the API at url
func NewClient(url string, logger *zap.Logger) *Client {
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

const whitelistedVaultsQuery = `query whitelistedVaults($chainId: Int!, $skip: Int, $first: Int) {
  vaults(skip: $skip, first: $first, where: {chainId_in: [$chainId], whitelisted: true}) {
    items { address }
  }
}`

// WhitelistedVaults returns every vault the API lists as whitelisted on a chain
func (c *Client) WhitelistedVaults(ctx context.Context, chainID int64) ([]common.Address, error) {
	var vaults []common.Address
	for skip := 0; ; skip += pageSize {
		var out struct {
			Vaults struct {
				Items []struct {
					Address string `json:"address"`
				} `json:"items"`
			} `json:"vaults"`
		}
		vars := map[string]interface{}{"chainId": chainID, "skip": skip, "first": pageSize}
		if err := c.query(ctx, whitelistedVaultsQuery, vars, &out); err != nil {
			return nil, fmt.Errorf("failed to fetch whitelisted vaults: %w", err)
		}
		for _, item := range out.Vaults.Items {
			if common.IsHexAddress(item.Address) {
				vaults = append(vaults, common.HexToAddress(item.Address))
			}
		}
		if len(out.Vaults.Items) < pageSize {
			return vaults, nil
		}
	}
}

const liquidatablePositionsQuery = `query getLiquidatablePositions($chainId: Int!, $marketIds: [String!], $skip: Int, $first: Int) {
  marketPositions(skip: $skip, first: $first, where: {chainId_in: [$chainId], marketUniqueKey_in: $marketIds, healthFactor_lte: 1}) {
    items {
      user { address }
      market { uniqueKey }
      state { borrowShares collateral supplyShares }
    }
  }
}`

type positionItem struct {
	User struct {
		Address string `json:"address"`
	} `json:"user"`
	Market struct {
		UniqueKey string `json:"uniqueKey"`
	} `json:"market"`
	State *struct {
		BorrowShares json.Number `json:"borrowShares"`
		Collateral   json.Number `json:"collateral"`
		SupplyShares json.Number `json:"supplyShares"`
	} `json:"state"`
}

// LiquidatablePositions returns API candidates with health factor <= 1 in the given markets
func (c *Client) LiquidatablePositions(ctx context.Context, chainID int64, marketIDs []common.Hash) ([]Candidate, error) {
	if len(marketIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(marketIDs))
	for i, id := range marketIDs {
		ids[i] = id.Hex()
	}

	var candidates []Candidate
	for skip := 0; ; skip += pageSize {
		var out struct {
			MarketPositions struct {
				Items []positionItem `json:"items"`
			} `json:"marketPositions"`
		}
		vars := map[string]interface{}{"chainId": chainID, "marketIds": ids, "skip": skip, "first": pageSize}
		if err := c.query(ctx, liquidatablePositionsQuery, vars, &out); err != nil {
			return nil, fmt.Errorf("failed to fetch liquidatable positions: %w", err)
		}

		for _, item := range out.MarketPositions.Items {
			candidate, ok := toCandidate(item)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate)
		}
		if len(out.MarketPositions.Items) < pageSize {
			c.logger.Debug("Fetched liquidation candidates",
				zap.Int64("chain_id", chainID),
				zap.Int("count", len(candidates)),
			)
			return candidates, nil
		}
	}
}

func toCandidate(item positionItem) (Candidate, bool) {
	if item.State == nil || item.Market.UniqueKey == "" || !common.IsHexAddress(item.User.Address) {
		return Candidate{}, false
	}
	borrow, ok1 := parseAmount(item.State.BorrowShares)
	collateral, ok2 := parseAmount(item.State.Collateral)
	supply, ok3 := parseAmount(item.State.SupplyShares)
	if !ok1 || !ok2 || !ok3 {
		return Candidate{}, false
	}
	return Candidate{
		MarketID:     common.HexToHash(item.Market.UniqueKey),
		User:         common.HexToAddress(item.User.Address),
		SupplyShares: supply,
		BorrowShares: borrow,
		Collateral:   collateral,
	}, true
}

func parseAmount(n json.Number) (*big.Int, bool) {
	if n == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(n.String(), 10)
}

const assetPriceQuery = `query assetPrice($address: String!, $chainId: Int) {
  assetByAddress(address: $address, chainId: $chainId) { priceUsd }
}`

// AssetPrice returns the USD price the API reports for an asset
func (c *Client) AssetPrice(ctx context.Context, chainID int64, asset common.Address) (decimal.Decimal, bool, error) {
	var out struct {
		AssetByAddress *struct {
			PriceUsd *float64 `json:"priceUsd"`
		} `json:"assetByAddress"`
	}
	vars := map[string]interface{}{"address": strings.ToLower(asset.Hex()), "chainId": chainID}
	if err := c.query(ctx, assetPriceQuery, vars, &out); err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to fetch asset price: %w", err)
	}
	if out.AssetByAddress == nil || out.AssetByAddress.PriceUsd == nil {
		return decimal.Zero, false, nil
	}
	return decimal.NewFromFloat(*out.AssetByAddress.PriceUsd), true, nil
}

func (c *Client) query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	buf, err := json.Marshal(map[string]interface{}{"query": query, "variables": variables})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graphql request failed: status=%d", resp.StatusCode)
	}

	var gqlResp struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&gqlResp); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	if len(gqlResp.Data) == 0 {
		return fmt.Errorf("graphql response has no data")
	}

	dataDec := json.NewDecoder(bytes.NewReader(gqlResp.Data))
	dataDec.UseNumber()
	return dataDec.Decode(out)
}
