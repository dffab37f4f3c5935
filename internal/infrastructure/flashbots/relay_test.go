package flashbots

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

func signedTx(t *testing.T) *types.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	to := common.HexToAddress("0x01")
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(1)), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return signed
}

func TestRelay_SendBundle(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := signedTx(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		// the header signs the hex-encoded body hash with the relay key
		parts := strings.SplitN(r.Header.Get("X-Flashbots-Signature"), ":", 2)
		if len(parts) != 2 {
			t.Fatalf("malformed signature header %q", r.Header.Get("X-Flashbots-Signature"))
		}
		sig, err := hexutil.Decode(parts[1])
		if err != nil {
			t.Fatalf("bad signature encoding: %v", err)
		}
		digest := accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(body))))
		pub, err := crypto.SigToPub(digest, sig)
		if err != nil {
			t.Fatalf("failed to recover signer: %v", err)
		}
		if crypto.PubkeyToAddress(*pub).Hex() != parts[0] {
			t.Errorf("signature does not match header address %s", parts[0])
		}

		var req struct {
			Method string `json:"method"`
			Params []struct {
				Txs         []string `json:"txs"`
				BlockNumber string   `json:"blockNumber"`
			} `json:"params"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Method != "eth_sendBundle" {
			t.Errorf("expected eth_sendBundle, got %s", req.Method)
		}
		if len(req.Params) != 1 || req.Params[0].BlockNumber != "0x65" || len(req.Params[0].Txs) != 1 {
			t.Errorf("unexpected params %+v", req.Params)
		}

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"bundleHash":"0xabc"}}`))
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, key, zap.NewNop())
	hash, err := relay.SendBundle(context.Background(), []*types.Transaction{tx}, 101)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "0xabc" {
		t.Errorf("expected 0xabc, got %s", hash)
	}
}

func TestRelay_SendBundleError(t *testing.T) {
	key, _ := crypto.GenerateKey()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"bundle rejected"}}`))
	}))
	defer srv.Close()

	_, err := NewRelay(srv.URL, key, zap.NewNop()).SendBundle(context.Background(), []*types.Transaction{signedTx(t)}, 1)
	if err == nil || !strings.Contains(err.Error(), "bundle rejected") {
		t.Errorf("expected relay error, got %v", err)
	}
}
