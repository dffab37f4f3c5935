package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bimakw/blue-liquidator/internal/config"
)

// Client wraps the Ethereum client with retry logic, rate limiting and the signing account
type Client struct {
	rpc     *rpc.Client
	client  *ethclient.Client
	config  config.EthereumConfig
	limiter *rate.Limiter
	logger  *zap.Logger
	chainID *big.Int
	key     *ecdsa.PrivateKey
	account common.Address
	nonces  nonceTracker
}

// Call is one read in a Multicall3 batch
type Call struct {
	Target common.Address
	Data   []byte
}

// CallResult is the outcome of one Multicall3 read
type CallResult struct {
	Success bool
	Data    []byte
}

// SimulatedCall is one call of an eth_simulateV1 request
type SimulatedCall struct {
	To   common.Address
	Data []byte
}

// SimulationResult is the outcome of one simulated call
type SimulationResult struct {
	Success    bool
	ReturnData []byte
	GasUsed    uint64
	Error      string
}

// NewClient dials the chain RPC and checks it serves the expected chain
func NewClient(ctx context.Context, cfg config.EthereumConfig, rpcURL string, expectedChainID int64, key *ecdsa.PrivateKey, logger *zap.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	client := ethclient.NewClient(rpcClient)

	idCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(idCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	if chainID.Int64() != expectedChainID {
		client.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", expectedChainID, chainID.Int64())
	}

	c := &Client{
		rpc:     rpcClient,
		client:  client,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSec), cfg.MaxBurstRequests),
		logger:  logger,
		chainID: chainID,
		key:     key,
	}
	if key != nil {
		c.account = crypto.PubkeyToAddress(key.PublicKey)
	}

	logger.Info("Connected to Ethereum node",
		zap.Int64("chain_id", chainID.Int64()),
		zap.String("account", c.account.Hex()),
	)

	return c, nil
}

// Close closes the Ethereum client connection
func (c *Client) Close() {
	c.client.Close()
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Account returns the signing address
func (c *Client) Account() common.Address {
	return c.account
}

// withRetry runs fn under the rate limiter and request timeout, retrying on failure
func withRetry[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return result, werr
		}

		callCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		result, err = fn(callCtx)
		cancel()
		if err == nil {
			return result, nil
		}

		c.logger.Warn("RPC request failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	return result, fmt.Errorf("failed to %s after %d retries: %w", op, c.config.MaxRetries, err)
}

// HeadBlock returns the latest block number
func (c *Client) HeadBlock(ctx context.Context) (int64, error) {
	n, err := withRetry(ctx, c, "get latest block number", func(ctx context.Context) (uint64, error) {
		return c.client.BlockNumber(ctx)
	})
	return int64(n), err
}

// FilterLogs retrieves logs matching the filter query
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return withRetry(ctx, c, "get logs", func(ctx context.Context) ([]types.Log, error) {
		return c.client.FilterLogs(ctx, query)
	})
}

type blockTimestamp struct {
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// BlockTimestamps resolves block timestamps with JSON-RPC batches
func (c *Client) BlockTimestamps(ctx context.Context, blocks []uint64) (map[uint64]uint64, error) {
	sorted := append([]uint64(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	batchSize := c.config.TimestampBatch
	if batchSize <= 0 {
		batchSize = 50
	}

	timestamps := make(map[uint64]uint64, len(sorted))
	for start := 0; start < len(sorted); start += batchSize {
		end := start + batchSize
		if end > len(sorted) {
			end = len(sorted)
		}
		chunk := sorted[start:end]

		results, err := withRetry(ctx, c, "get block timestamps", func(ctx context.Context) ([]blockTimestamp, error) {
			out := make([]blockTimestamp, len(chunk))
			batch := make([]rpc.BatchElem, len(chunk))
			for i, n := range chunk {
				batch[i] = rpc.BatchElem{
					Method: "eth_getBlockByNumber",
					Args:   []interface{}{hexutil.EncodeUint64(n), false},
					Result: &out[i],
				}
			}
			if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
				return nil, err
			}
			for i := range batch {
				if batch[i].Error != nil {
					return nil, fmt.Errorf("block %d: %w", chunk[i], batch[i].Error)
				}
			}
			return out, nil
		})
		if err != nil {
			return nil, err
		}

		for i, n := range chunk {
			timestamps[n] = uint64(results[i].Timestamp)
		}
	}

	return timestamps, nil
}

// CallContract executes a read-only call at the latest block
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return withRetry(ctx, c, "call contract", func(ctx context.Context) ([]byte, error) {
		return c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
}

// Multicall batches reads through Multicall3; each call may fail independently
func (c *Client) Multicall(ctx context.Context, calls []Call) ([]CallResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	packed := make([]call3, len(calls))
	for i, call := range calls {
		packed[i] = call3{Target: call.Target, AllowFailure: true, CallData: call.Data}
	}

	input, err := MulticallABI.Pack("aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("failed to pack multicall: %w", err)
	}

	output, err := c.CallContract(ctx, Multicall3Address, input)
	if err != nil {
		return nil, err
	}

	return decodeAggregate3(output, len(calls))
}

func decodeAggregate3(output []byte, expected int) ([]CallResult, error) {
	values, err := MulticallABI.Unpack("aggregate3", output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multicall: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected multicall output length %d", len(values))
	}

	var raw []call3Result
	if err := convertInto(values[0], &raw); err != nil {
		return nil, err
	}
	if len(raw) != expected {
		return nil, fmt.Errorf("multicall returned %d results for %d calls", len(raw), expected)
	}

	results := make([]CallResult, len(raw))
	for i, r := range raw {
		results[i] = CallResult{Success: r.Success, Data: r.ReturnData}
	}
	return results, nil
}

type simulateCall struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Input hexutil.Bytes  `json:"input"`
}

type simulateBlock struct {
	Calls []simulateCall `json:"calls"`
}

type simulateRequest struct {
	BlockStateCalls []simulateBlock `json:"blockStateCalls"`
	Validation      bool            `json:"validation"`
}

type simulateCallResult struct {
	ReturnData hexutil.Bytes  `json:"returnData"`
	GasUsed    hexutil.Uint64 `json:"gasUsed"`
	Status     hexutil.Uint64 `json:"status"`
	Error      *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type simulateBlockResult struct {
	Calls []simulateCallResult `json:"calls"`
}

// SimulateCalls runs calls sequentially from the signing account in one simulated block (eth_simulateV1)
func (c *Client) SimulateCalls(ctx context.Context, calls []SimulatedCall) ([]SimulationResult, error) {
	req := simulateRequest{BlockStateCalls: []simulateBlock{{Calls: make([]simulateCall, len(calls))}}}
	for i, call := range calls {
		req.BlockStateCalls[0].Calls[i] = simulateCall{From: c.account, To: call.To, Input: call.Data}
	}

	blocks, err := withRetry(ctx, c, "simulate calls", func(ctx context.Context) ([]simulateBlockResult, error) {
		var out []simulateBlockResult
		err := c.rpc.CallContext(ctx, &out, "eth_simulateV1", req, "latest")
		return out, err
	})
	if err != nil {
		return nil, err
	}
	if len(blocks) != 1 || len(blocks[0].Calls) != len(calls) {
		return nil, errors.New("unexpected eth_simulateV1 response shape")
	}

	results := make([]SimulationResult, len(calls))
	for i, r := range blocks[0].Calls {
		results[i] = SimulationResult{
			Success:    r.Status == 1,
			ReturnData: r.ReturnData,
			GasUsed:    uint64(r.GasUsed),
		}
		if r.Error != nil {
			results[i].Error = r.Error.Message
		}
	}
	return results, nil
}

// GasPrice returns the suggested gas price
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return withRetry(ctx, c, "get gas price", func(ctx context.Context) (*big.Int, error) {
		return c.client.SuggestGasPrice(ctx)
	})
}

func (c *Client) pendingNonce(ctx context.Context) (uint64, error) {
	return withRetry(ctx, c, "get nonce", func(ctx context.Context) (uint64, error) {
		return c.client.PendingNonceAt(ctx, c.account)
	})
}

// SignTransaction builds and signs a call at the pending nonce without sending it.
// Bundles use it: a bundle that is not included does not consume its nonce.
func (c *Client) SignTransaction(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	if c.key == nil {
		return nil, errors.New("no signing key configured")
	}
	nonce, err := c.pendingNonce(ctx)
	if err != nil {
		return nil, err
	}
	return c.signAt(ctx, to, data, nonce)
}

func (c *Client) signAt(ctx context.Context, to common.Address, data []byte, nonce uint64) (*types.Transaction, error) {
	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gas, err := withRetry(ctx, c, "estimate gas", func(ctx context.Context) (uint64, error) {
		return c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.account, To: &to, Data: data})
	})
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// SendTransaction signs and broadcasts a call from the signing account.
// Concurrent sends get consecutive nonces.
func (c *Client) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, errors.New("no signing key configured")
	}

	nonce, err := c.nonces.reserve(ctx, c.pendingNonce)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.signAt(ctx, to, data, nonce)
	if err != nil {
		c.nonces.reset()
		return common.Hash{}, err
	}

	// Broadcast is attempted once
	if err := c.limiter.Wait(ctx); err != nil {
		c.nonces.reset()
		return common.Hash{}, err
	}
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		c.nonces.reset()
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return tx.Hash(), nil
}

// nonceTracker hands out nonces for public sends. The next nonce is the larger of the
// node's pending nonce and the last one handed out plus one.
type nonceTracker struct {
	mu    sync.Mutex
	next  uint64
	known bool
}

func (n *nonceTracker) reserve(ctx context.Context, pending func(ctx context.Context) (uint64, error)) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, err := pending(ctx)
	if err != nil {
		return 0, err
	}
	if !n.known || p > n.next {
		n.next = p
	}
	nonce := n.next
	n.next++
	n.known = true
	return nonce, nil
}

// reset drops the local counter so the next reservation follows the node again
func (n *nonceTracker) reset() {
	n.mu.Lock()
	n.known = false
	n.mu.Unlock()
}

// CleanRevertMessage trims node diagnostics that follow the revert reason
func CleanRevertMessage(msg string) string {
	if i := strings.Index(msg, "Contract Call:"); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimRight(msg, " \t\r\n")
}
