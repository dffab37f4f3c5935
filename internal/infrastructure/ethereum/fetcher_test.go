package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/domain/events"
)

type fakeChainReader struct {
	filterLogsFunc   func(query ethereum.FilterQuery) ([]types.Log, error)
	callContractFunc func(to common.Address, data []byte) ([]byte, error)
	multicallFunc    func(calls []Call) ([]CallResult, error)
}

func (f *fakeChainReader) FilterLogs(_ context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return f.filterLogsFunc(query)
}

func (f *fakeChainReader) CallContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	return f.callContractFunc(to, data)
}

func (f *fakeChainReader) Multicall(_ context.Context, calls []Call) ([]CallResult, error) {
	return f.multicallFunc(calls)
}

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func TestFetcher_FetchLogsTagsSourceAndDropsRemoved(t *testing.T) {
	irm := common.HexToAddress("0x0000000000000000000000000000000000000ee1")
	reader := &fakeChainReader{filterLogsFunc: func(query ethereum.FilterQuery) ([]types.Log, error) {
		if query.FromBlock.Int64() != 10 || query.ToBlock.Int64() != 20 {
			t.Errorf("unexpected range %s-%s", query.FromBlock, query.ToBlock)
		}
		if len(query.Addresses) != 1 || query.Addresses[0] != irm {
			t.Errorf("unexpected addresses %v", query.Addresses)
		}
		if len(query.Topics) != 1 || len(query.Topics[0]) != 1 || query.Topics[0][0] != IrmABI.Events["BorrowRateUpdate"].ID {
			t.Errorf("unexpected topics %v", query.Topics)
		}
		return []types.Log{{BlockNumber: 11}, {BlockNumber: 12, Removed: true}}, nil
	}}

	f := NewFetcher(reader, zap.NewNop())
	logs, err := f.FetchLogs(context.Background(), events.SourceIrm, []common.Address{irm}, 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].Source != events.SourceIrm || logs[0].Log.BlockNumber != 11 {
		t.Errorf("unexpected log %+v", logs[0])
	}
}

func TestFetcher_FetchLogsWithoutAddresses(t *testing.T) {
	reader := &fakeChainReader{filterLogsFunc: func(ethereum.FilterQuery) ([]types.Log, error) {
		t.Fatal("unexpected FilterLogs call")
		return nil, nil
	}}

	logs, err := NewFetcher(reader, zap.NewNop()).FetchLogs(context.Background(), events.SourceVault, nil, 1, 2)
	if err != nil || logs != nil {
		t.Errorf("expected no logs and no error, got %v %v", logs, err)
	}
}

func TestFetcher_FetchLogsError(t *testing.T) {
	reader := &fakeChainReader{filterLogsFunc: func(ethereum.FilterQuery) ([]types.Log, error) {
		return nil, errors.New("rpc down")
	}}

	_, err := NewFetcher(reader, zap.NewNop()).FetchLogs(context.Background(), events.SourceMorpho, []common.Address{{}}, 1, 2)
	if err == nil {
		t.Error("expected error")
	}
}

func TestFetcher_OraclePricesSkipsFailures(t *testing.T) {
	good := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bad := common.HexToAddress("0x0000000000000000000000000000000000000a02")

	reader := &fakeChainReader{multicallFunc: func(calls []Call) ([]CallResult, error) {
		if len(calls) != 2 {
			t.Fatalf("expected 2 calls, got %d", len(calls))
		}
		return []CallResult{{Success: true, Data: word(4200)}, {Success: false}}, nil
	}}

	prices, err := NewFetcher(reader, zap.NewNop()).OraclePrices(context.Background(), []common.Address{good, bad})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prices[good] == nil || prices[good].Int64() != 4200 {
		t.Errorf("expected price 4200, got %v", prices[good])
	}
	if _, ok := prices[bad]; ok {
		t.Error("expected reverting oracle to be absent")
	}
}

func TestFetcher_WithdrawQueue(t *testing.T) {
	vault := common.HexToAddress("0x0000000000000000000000000000000000000Fa7")
	first := common.HexToHash("0x01")
	second := common.HexToHash("0x02")

	reader := &fakeChainReader{
		callContractFunc: func(to common.Address, _ []byte) ([]byte, error) {
			if to != vault {
				t.Errorf("unexpected target %s", to.Hex())
			}
			return word(2), nil
		},
		multicallFunc: func(calls []Call) ([]CallResult, error) {
			if len(calls) != 2 {
				t.Fatalf("expected 2 calls, got %d", len(calls))
			}
			return []CallResult{{Success: true, Data: first.Bytes()}, {Success: true, Data: second.Bytes()}}, nil
		},
	}

	queue, err := NewFetcher(reader, zap.NewNop()).WithdrawQueue(context.Background(), vault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue) != 2 || queue[0] != first || queue[1] != second {
		t.Errorf("unexpected queue %v", queue)
	}
}

func TestSplitBlockRange(t *testing.T) {
	tests := []struct {
		name      string
		from, to  int64
		batchSize int64
		expected  []BlockRange
	}{
		{"single batch", 1, 5, 10, []BlockRange{{1, 5}}},
		{"exact batches", 1, 10, 5, []BlockRange{{1, 5}, {6, 10}}},
		{"remainder", 1, 11, 5, []BlockRange{{1, 5}, {6, 10}, {11, 11}}},
		{"single block", 7, 7, 5, []BlockRange{{7, 7}}},
		{"empty range", 10, 9, 5, nil},
		{"zero batch", 1, 10, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitBlockRange(tt.from, tt.to, tt.batchSize)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d ranges, got %d", len(tt.expected), len(got))
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("range %d: expected %+v, got %+v", i, tt.expected[i], got[i])
				}
			}
		})
	}
}
