// Package flashbots submits signed transaction bundles to a private relay
package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Relay sends eth_sendBundle requests authenticated with a reputation key
type Relay struct {
	url    string
	key    *ecdsa.PrivateKey
	http   *http.Client
	logger *zap.Logger
	nextID atomic.Int64
}

// NewRelay creates a relay client. key only identifies the searcher and holds no funds.
func NewRelay(url string, key *ecdsa.PrivateKey, logger *zap.Logger) *Relay {
	return &Relay{
		url:    url,
		key:    key,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type bundleParams struct {
	Txs         []string `json:"txs"`
	BlockNumber string   `json:"blockNumber"`
}

// SendBundle submits txs for inclusion in targetBlock and returns the bundle hash
func (r *Relay) SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock int64) (string, error) {
	params := bundleParams{
		Txs:         make([]string, len(txs)),
		BlockNumber: hexutil.EncodeUint64(uint64(targetBlock)),
	}
	for i, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("failed to encode bundle transaction: %w", err)
		}
		params.Txs[i] = hexutil.Encode(raw)
	}

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      r.nextID.Add(1),
		"method":  "eth_sendBundle",
		"params":  []interface{}{params},
	})
	if err != nil {
		return "", err
	}

	signature, err := r.sign(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", signature)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send bundle: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result *struct {
			BundleHash string `json:"bundleHash"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("failed to decode relay response (status %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("relay error: %s", rpcResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK || rpcResp.Result == nil {
		return "", fmt.Errorf("relay request failed: status=%d", resp.StatusCode)
	}

	r.logger.Debug("Bundle submitted",
		zap.String("bundle_hash", rpcResp.Result.BundleHash),
		zap.Int64("target_block", targetBlock),
	)
	return rpcResp.Result.BundleHash, nil
}

// sign produces the X-Flashbots-Signature header value: address:signature over the hex body hash
func (r *Relay) sign(body []byte) (string, error) {
	digest := accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(body))))
	sig, err := crypto.Sign(digest, r.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign bundle: %w", err)
	}
	return r.Address().Hex() + ":" + hexutil.Encode(sig), nil
}

// Address returns the relay identity address
func (r *Relay) Address() common.Address {
	return crypto.PubkeyToAddress(r.key.PublicKey)
}
