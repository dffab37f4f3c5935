package morphoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func newTestServer(t *testing.T, handler func(req graphqlRequest) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(handler(req)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_WhitelistedVaults(t *testing.T) {
	srv := newTestServer(t, func(req graphqlRequest) string {
		if req.Variables["chainId"] != float64(8453) {
			t.Errorf("expected chainId 8453, got %v", req.Variables["chainId"])
		}
		return `{"data":{"vaults":{"items":[{"address":"0x0000000000000000000000000000000000000Fa7"},{"address":"not-an-address"}]}}}`
	})

	vaults, err := NewClient(srv.URL, zap.NewNop()).WhitelistedVaults(context.Background(), 8453)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vaults) != 1 || vaults[0] != common.HexToAddress("0xFa7") {
		t.Errorf("unexpected vaults %v", vaults)
	}
}

func TestClient_LiquidatablePositions(t *testing.T) {
	market := common.HexToHash("0x9103c3b4e834476c9a62ea009ba2c884ee42e94e6e314a26f04d312434191836")
	srv := newTestServer(t, func(req graphqlRequest) string {
		ids, _ := req.Variables["marketIds"].([]interface{})
		if len(ids) != 1 || ids[0] != market.Hex() {
			t.Errorf("unexpected market ids %v", req.Variables["marketIds"])
		}
		return `{"data":{"marketPositions":{"items":[
			{"user":{"address":"0x0000000000000000000000000000000000000b0b"},"market":{"uniqueKey":"` + market.Hex() + `"},
			 "state":{"borrowShares":"1000000000000000000000000","collateral":42,"supplyShares":"0"}},
			{"user":{"address":"0x0000000000000000000000000000000000000a11"},"market":{"uniqueKey":"` + market.Hex() + `"},"state":null}
		]}}}`
	})

	candidates, err := NewClient(srv.URL, zap.NewNop()).LiquidatablePositions(context.Background(), 1, []common.Hash{market})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.MarketID != market || c.User != common.HexToAddress("0xb0b") {
		t.Errorf("unexpected candidate %+v", c)
	}
	if c.BorrowShares.String() != "1000000000000000000000000" || c.Collateral.Int64() != 42 {
		t.Errorf("unexpected amounts %s %s", c.BorrowShares, c.Collateral)
	}
}

func TestClient_LiquidatablePositionsNoMarkets(t *testing.T) {
	candidates, err := NewClient("http://127.0.0.1:0", zap.NewNop()).LiquidatablePositions(context.Background(), 1, nil)
	if err != nil || candidates != nil {
		t.Errorf("expected no candidates and no error, got %v %v", candidates, err)
	}
}

func TestClient_AssetPrice(t *testing.T) {
	srv := newTestServer(t, func(req graphqlRequest) string {
		if req.Variables["address"] == "0x0000000000000000000000000000000000000001" {
			return `{"data":{"assetByAddress":{"priceUsd":1.0002}}}`
		}
		return `{"data":{"assetByAddress":{"priceUsd":null}}}`
	})
	client := NewClient(srv.URL, zap.NewNop())

	price, ok, err := client.AssetPrice(context.Background(), 1, common.HexToAddress("0x01"))
	if err != nil || !ok {
		t.Fatalf("expected price, got ok=%v err=%v", ok, err)
	}
	if price.String() != "1.0002" {
		t.Errorf("expected 1.0002, got %s", price)
	}

	_, ok, err = client.AssetPrice(context.Background(), 1, common.HexToAddress("0x02"))
	if err != nil || ok {
		t.Errorf("expected unknown price, got ok=%v err=%v", ok, err)
	}
}

func TestClient_GraphQLError(t *testing.T) {
	srv := newTestServer(t, func(graphqlRequest) string {
		return `{"errors":[{"message":"rate limited"}]}`
	})

	if _, err := NewClient(srv.URL, zap.NewNop()).WhitelistedVaults(context.Background(), 1); err == nil {
		t.Error("expected error")
	}
}
