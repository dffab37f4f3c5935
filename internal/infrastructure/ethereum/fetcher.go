package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/domain/events"
)

// ChainReader is the subset of Client the fetcher reads through
type ChainReader interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Multicall(ctx context.Context, calls []Call) ([]CallResult, error)
}

// TaggedLog is a raw log together with the contract family it was fetched from
type TaggedLog struct {
	Source events.Source
	Log    types.Log
}

// Fetcher reads protocol logs and on-chain views
type Fetcher struct {
	client ChainReader
	logger *zap.Logger
}

// NewFetcher creates a new blockchain data fetcher
func NewFetcher(client ChainReader, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		logger: logger,
	}
}

// FetchLogs fetches every tracked event of source emitted by addresses in [fromBlock, toBlock]
func (f *Fetcher) FetchLogs(ctx context.Context, source events.Source, addresses []common.Address, fromBlock, toBlock int64) ([]TaggedLog, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: addresses,
		Topics:    [][]common.Hash{TrackedTopics(source)},
	}

	f.logger.Debug("Fetching logs",
		zap.String("source", string(source)),
		zap.Int64("from_block", fromBlock),
		zap.Int64("to_block", toBlock),
		zap.Int("address_count", len(addresses)),
	)

	logs, err := f.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s logs: %w", source, err)
	}

	tagged := make([]TaggedLog, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		tagged = append(tagged, TaggedLog{Source: source, Log: log})
	}
	return tagged, nil
}

// OraclePrices reads price() of every oracle in one multicall. Oracles that revert are left out.
func (f *Fetcher) OraclePrices(ctx context.Context, oracles []common.Address) (map[common.Address]*big.Int, error) {
	prices := make(map[common.Address]*big.Int, len(oracles))
	if len(oracles) == 0 {
		return prices, nil
	}

	data, err := OracleABI.Pack("price")
	if err != nil {
		return nil, err
	}
	calls := make([]Call, len(oracles))
	for i, oracle := range oracles {
		calls[i] = Call{Target: oracle, Data: data}
	}

	results, err := f.client.Multicall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch oracle prices: %w", err)
	}

	for i, r := range results {
		if !r.Success || len(r.Data) < 32 {
			f.logger.Debug("Oracle price unavailable", zap.String("oracle", oracles[i].Hex()))
			continue
		}
		prices[oracles[i]] = new(big.Int).SetBytes(r.Data[:32])
	}
	return prices, nil
}

// WithdrawQueue reads a vault's withdraw queue directly from the contract
func (f *Fetcher) WithdrawQueue(ctx context.Context, vault common.Address) ([]common.Hash, error) {
	lengthData, err := VaultABI.Pack("withdrawQueueLength")
	if err != nil {
		return nil, err
	}
	raw, err := f.client.CallContract(ctx, vault, lengthData)
	if err != nil {
		return nil, fmt.Errorf("failed to read withdraw queue length of %s: %w", vault.Hex(), err)
	}
	if len(raw) < 32 {
		return nil, fmt.Errorf("invalid withdraw queue length response from %s", vault.Hex())
	}
	length := new(big.Int).SetBytes(raw[:32])
	if !length.IsInt64() || length.Int64() > 1024 {
		return nil, fmt.Errorf("implausible withdraw queue length %s for %s", length, vault.Hex())
	}

	calls := make([]Call, length.Int64())
	for i := range calls {
		data, err := VaultABI.Pack("withdrawQueue", big.NewInt(int64(i)))
		if err != nil {
			return nil, err
		}
		calls[i] = Call{Target: vault, Data: data}
	}

	results, err := f.client.Multicall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to read withdraw queue of %s: %w", vault.Hex(), err)
	}

	queue := make([]common.Hash, 0, len(results))
	for i, r := range results {
		if !r.Success || len(r.Data) < 32 {
			return nil, fmt.Errorf("failed to read withdraw queue entry %d of %s", i, vault.Hex())
		}
		queue = append(queue, common.BytesToHash(r.Data[:32]))
	}
	return queue, nil
}

// BlockRange represents a range of blocks to fetch
type BlockRange struct {
	From int64
	To   int64
}

// SplitBlockRange splits a range into batches
func SplitBlockRange(fromBlock, toBlock int64, batchSize int64) []BlockRange {
	if fromBlock > toBlock || batchSize <= 0 {
		return nil
	}

	var ranges []BlockRange
	for current := fromBlock; current <= toBlock; current += batchSize {
		end := current + batchSize - 1
		if end > toBlock {
			end = toBlock
		}
		ranges = append(ranges, BlockRange{From: current, To: end})
	}

	return ranges
}
