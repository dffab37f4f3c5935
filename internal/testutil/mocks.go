package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/domain/events"
	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// Ensure MockCheckpointRepository implements the interface
var _ repositories.CheckpointRepository = (*MockCheckpointRepository)(nil)

// MockCheckpointRepository keeps the last saved checkpoint in memory
type MockCheckpointRepository struct {
	mu         sync.RWMutex
	checkpoint *entities.Checkpoint

	// Function hooks for custom behavior
	SaveFunc func(ctx context.Context, state *entities.IndexerState, lastSyncedBlock, chainID int64) error
	LoadFunc func(ctx context.Context) (*entities.Checkpoint, error)

	// Call tracking
	Calls []MockCall
}

func NewMockCheckpointRepository() *MockCheckpointRepository {
	return &MockCheckpointRepository{Calls: make([]MockCall, 0)}
}

func (m *MockCheckpointRepository) Save(ctx context.Context, state *entities.IndexerState, lastSyncedBlock, chainID int64) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Save", Args: []interface{}{lastSyncedBlock, chainID}})
	m.mu.Unlock()

	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, state, lastSyncedBlock, chainID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint = &entities.Checkpoint{
		Version:         entities.CheckpointVersion,
		ChainID:         chainID,
		LastSyncedBlock: lastSyncedBlock,
		Timestamp:       time.Now(),
		State:           state.Clone(),
	}
	return nil
}

func (m *MockCheckpointRepository) Load(ctx context.Context) (*entities.Checkpoint, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Load"})
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpoint, nil
}

// Stored returns the last saved checkpoint
func (m *MockCheckpointRepository) Stored() *entities.Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpoint
}

// CallCount returns how many times method was called
func (m *MockCheckpointRepository) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MockLogSource serves logs by source and answers block timestamps as base + 12s per block
type MockLogSource struct {
	mu   sync.RWMutex
	logs map[events.Source][]types.Log

	FetchLogsFunc       func(ctx context.Context, source events.Source, addresses []common.Address, fromBlock, toBlock int64) ([]ethereum.TaggedLog, error)
	BlockTimestampsFunc func(ctx context.Context, blocks []uint64) (map[uint64]uint64, error)

	Calls []MockCall
}

func NewMockLogSource() *MockLogSource {
	return &MockLogSource{
		logs:  make(map[events.Source][]types.Log),
		Calls: make([]MockCall, 0),
	}
}

// AddLogs registers logs for source
func (m *MockLogSource) AddLogs(source events.Source, logs ...types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[source] = append(m.logs[source], logs...)
}

func (m *MockLogSource) FetchLogs(ctx context.Context, source events.Source, addresses []common.Address, fromBlock, toBlock int64) ([]ethereum.TaggedLog, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "FetchLogs", Args: []interface{}{source, fromBlock, toBlock}})
	m.mu.Unlock()

	if m.FetchLogsFunc != nil {
		return m.FetchLogsFunc(ctx, source, addresses, fromBlock, toBlock)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ethereum.TaggedLog
	for _, l := range m.logs[source] {
		if int64(l.BlockNumber) < fromBlock || int64(l.BlockNumber) > toBlock {
			continue
		}
		if !containsAddress(addresses, l.Address) {
			continue
		}
		out = append(out, ethereum.TaggedLog{Source: source, Log: l})
	}
	return out, nil
}

func (m *MockLogSource) BlockTimestamps(ctx context.Context, blocks []uint64) (map[uint64]uint64, error) {
	if m.BlockTimestampsFunc != nil {
		return m.BlockTimestampsFunc(ctx, blocks)
	}
	out := make(map[uint64]uint64, len(blocks))
	for _, b := range blocks {
		out[b] = 1_700_000_000 + b*12
	}
	return out, nil
}

// FetchCount returns how many FetchLogs calls were made
func (m *MockLogSource) FetchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Calls)
}

// MockChain fakes the ledger client used by the services
type MockChain struct {
	mu   sync.Mutex
	Head int64

	HeadBlockFunc       func(ctx context.Context) (int64, error)
	GasPriceFunc        func(ctx context.Context) (*big.Int, error)
	SimulateCallsFunc   func(ctx context.Context, calls []ethereum.SimulatedCall) ([]ethereum.SimulationResult, error)
	SignTransactionFunc func(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error)
	SendTransactionFunc func(ctx context.Context, to common.Address, data []byte) (common.Hash, error)

	// Sent holds the calldata of every SendTransaction call
	Sent [][]byte
	// Simulated holds every simulation request
	Simulated [][]ethereum.SimulatedCall
}

func NewMockChain(head int64) *MockChain {
	return &MockChain{Head: head}
}

func (m *MockChain) HeadBlock(ctx context.Context) (int64, error) {
	if m.HeadBlockFunc != nil {
		return m.HeadBlockFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Head, nil
}

// SetHead moves the chain head
func (m *MockChain) SetHead(head int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Head = head
}

func (m *MockChain) GasPrice(ctx context.Context) (*big.Int, error) {
	if m.GasPriceFunc != nil {
		return m.GasPriceFunc(ctx)
	}
	return big.NewInt(1), nil
}

func (m *MockChain) SimulateCalls(ctx context.Context, calls []ethereum.SimulatedCall) ([]ethereum.SimulationResult, error) {
	m.mu.Lock()
	m.Simulated = append(m.Simulated, calls)
	m.mu.Unlock()

	if m.SimulateCallsFunc != nil {
		return m.SimulateCallsFunc(ctx, calls)
	}
	return nil, errors.New("simulation not configured")
}

func (m *MockChain) SignTransaction(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	if m.SignTransactionFunc != nil {
		return m.SignTransactionFunc(ctx, to, data)
	}
	return types.NewTx(&types.LegacyTx{To: &to, Data: data, Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (m *MockChain) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	m.mu.Lock()
	m.Sent = append(m.Sent, data)
	m.mu.Unlock()

	if m.SendTransactionFunc != nil {
		return m.SendTransactionFunc(ctx, to, data)
	}
	return common.HexToHash("0x01"), nil
}

// SentCount returns the number of broadcast transactions
func (m *MockChain) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// SimulationCount returns the number of simulation requests
func (m *MockChain) SimulationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Simulated)
}

// BalanceSimulation returns a SimulateCallsFunc where the executor call succeeds,
// uses gasUsed and raises the balance read by delta
func BalanceSimulation(delta int64, gasUsed uint64) func(ctx context.Context, calls []ethereum.SimulatedCall) ([]ethereum.SimulationResult, error) {
	return func(_ context.Context, calls []ethereum.SimulatedCall) ([]ethereum.SimulationResult, error) {
		before := big.NewInt(1_000_000)
		after := new(big.Int).Add(before, big.NewInt(delta))
		return []ethereum.SimulationResult{
			{Success: true, ReturnData: common.LeftPadBytes(before.Bytes(), 32)},
			{Success: true, GasUsed: gasUsed},
			{Success: true, ReturnData: common.LeftPadBytes(after.Bytes(), 32)},
		}, nil
	}
}

// RevertSimulation returns a SimulateCallsFunc where the executor call reverts with msg
func RevertSimulation(msg string) func(ctx context.Context, calls []ethereum.SimulatedCall) ([]ethereum.SimulationResult, error) {
	return func(_ context.Context, calls []ethereum.SimulatedCall) ([]ethereum.SimulationResult, error) {
		balance := common.LeftPadBytes(big.NewInt(1).Bytes(), 32)
		return []ethereum.SimulationResult{
			{Success: true, ReturnData: balance},
			{Success: false, Error: msg},
			{Success: true, ReturnData: balance},
		}, nil
	}
}

// MockViews serves oracle prices and vault withdraw queues
type MockViews struct {
	mu             sync.Mutex
	Prices         map[common.Address]*big.Int
	WithdrawQueues map[common.Address][]common.Hash

	OraclePricesFunc func(ctx context.Context, oracles []common.Address) (map[common.Address]*big.Int, error)

	// Requested holds the oracle list of every OraclePrices call
	Requested [][]common.Address
}

func NewMockViews() *MockViews {
	return &MockViews{
		Prices:         make(map[common.Address]*big.Int),
		WithdrawQueues: make(map[common.Address][]common.Hash),
	}
}

func (m *MockViews) OraclePrices(ctx context.Context, oracles []common.Address) (map[common.Address]*big.Int, error) {
	m.mu.Lock()
	m.Requested = append(m.Requested, append([]common.Address(nil), oracles...))
	m.mu.Unlock()

	if m.OraclePricesFunc != nil {
		return m.OraclePricesFunc(ctx, oracles)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[common.Address]*big.Int)
	for _, o := range oracles {
		if p, ok := m.Prices[o]; ok {
			out[o] = new(big.Int).Set(p)
		}
	}
	return out, nil
}

func (m *MockViews) WithdrawQueue(_ context.Context, vault common.Address) ([]common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue, ok := m.WithdrawQueues[vault]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return append([]common.Hash(nil), queue...), nil
}

// MockBundleSender records submitted bundles
type MockBundleSender struct {
	mu sync.Mutex

	SendBundleFunc func(ctx context.Context, txs []*types.Transaction, targetBlock int64) (string, error)

	TargetBlocks []int64
}

func (m *MockBundleSender) SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock int64) (string, error) {
	m.mu.Lock()
	m.TargetBlocks = append(m.TargetBlocks, targetBlock)
	m.mu.Unlock()

	if m.SendBundleFunc != nil {
		return m.SendBundleFunc(ctx, txs, targetBlock)
	}
	return "0xbundle", nil
}

// MockDecimals answers 18 decimals unless overridden
type MockDecimals struct {
	Values map[common.Address]uint8
}

func (m *MockDecimals) Decimals(_ context.Context, token common.Address) (uint8, error) {
	if d, ok := m.Values[token]; ok {
		return d, nil
	}
	return 18, nil
}

func containsAddress(addresses []common.Address, addr common.Address) bool {
	for _, a := range addresses {
		if a == addr {
			return true
		}
	}
	return false
}

// MockHealthChecker fails its health check when unhealthy
type MockHealthChecker struct {
	mu sync.RWMutex

	Error error
	Calls []MockCall
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	m := &MockHealthChecker{Calls: make([]MockCall, 0)}
	m.SetHealthy(healthy)
	return m
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "HealthCheck"})
	return m.Error
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if healthy {
		m.Error = nil
	} else {
		m.Error = errors.New("health check failed")
	}
}
