package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CheckpointVersion is the only checkpoint format this build reads
const CheckpointVersion = 1

// ErrCheckpointVersion is returned when a checkpoint was written by another format version
var ErrCheckpointVersion = errors.New("unsupported checkpoint version")

// Checkpoint is a durable snapshot of the indexed state
type Checkpoint struct {
	Version         int
	ChainID         int64
	LastSyncedBlock int64
	Timestamp       time.Time
	State           *IndexerState
}

// pair encodes as a two element JSON array [key, value]
type pair[K, V any] struct {
	Key   K
	Value V
}

func (p pair[K, V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Key, p.Value})
}

func (p *pair[K, V]) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("expected [key, value] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Value)
}

type checkpointJSON struct {
	Version                 int                          `json:"version"`
	ChainID                 int64                        `json:"chainId"`
	LastSyncedBlock         string                       `json:"lastSyncedBlock"`
	Timestamp               int64                        `json:"timestamp"`
	Markets                 []pair[string, marketJSON]   `json:"markets"`
	Positions               []pair[string, positionJSON] `json:"positions"`
	Authorizations          []pair[string, bool]         `json:"authorizations"`
	PreLiquidationContracts []preLiquidationContractJSON `json:"preLiquidationContracts"`
	VaultWithdrawQueues     []pair[string, []string]     `json:"vaultWithdrawQueues"`
}

type marketParamsJSON struct {
	LoanToken       string `json:"loanToken"`
	CollateralToken string `json:"collateralToken"`
	Oracle          string `json:"oracle"`
	Irm             string `json:"irm"`
	Lltv            string `json:"lltv"`
}

type marketJSON struct {
	Params            marketParamsJSON `json:"params"`
	TotalSupplyAssets string           `json:"totalSupplyAssets"`
	TotalSupplyShares string           `json:"totalSupplyShares"`
	TotalBorrowAssets string           `json:"totalBorrowAssets"`
	TotalBorrowShares string           `json:"totalBorrowShares"`
	LastUpdate        string           `json:"lastUpdate"`
	Fee               string           `json:"fee"`
	RateAtTarget      *string          `json:"rateAtTarget"`
}

type positionJSON struct {
	SupplyShares string `json:"supplyShares"`
	BorrowShares string `json:"borrowShares"`
	Collateral   string `json:"collateral"`
}

type preLiquidationParamsJSON struct {
	PreLltv              string `json:"preLltv"`
	PreLCF1              string `json:"preLCF1"`
	PreLCF2              string `json:"preLCF2"`
	PreLIF1              string `json:"preLIF1"`
	PreLIF2              string `json:"preLIF2"`
	PreLiquidationOracle string `json:"preLiquidationOracle"`
}

type preLiquidationContractJSON struct {
	MarketID             string                   `json:"marketId"`
	Address              string                   `json:"address"`
	PreLiquidationParams preLiquidationParamsJSON `json:"preLiquidationParams"`
}

// EncodeCheckpoint serializes state with every integer rendered as a decimal string.
// Map-backed collections are sorted by key so equal states encode identically.
func EncodeCheckpoint(state *IndexerState, lastSyncedBlock, chainID int64, now time.Time) ([]byte, error) {
	doc := checkpointJSON{
		Version:                 CheckpointVersion,
		ChainID:                 chainID,
		LastSyncedBlock:         strconv.FormatInt(lastSyncedBlock, 10),
		Timestamp:               now.UnixMilli(),
		Markets:                 make([]pair[string, marketJSON], 0, len(state.Markets)),
		Positions:               make([]pair[string, positionJSON], 0, len(state.Positions)),
		Authorizations:          make([]pair[string, bool], 0, len(state.Authorizations)),
		PreLiquidationContracts: make([]preLiquidationContractJSON, 0, len(state.PreLiquidationContracts)),
		VaultWithdrawQueues:     make([]pair[string, []string], 0, len(state.VaultWithdrawQueues)),
	}

	for id, m := range state.Markets {
		doc.Markets = append(doc.Markets, pair[string, marketJSON]{Key: id.Hex(), Value: encodeMarket(m)})
	}
	for key, p := range state.Positions {
		doc.Positions = append(doc.Positions, pair[string, positionJSON]{
			Key: key.String(),
			Value: positionJSON{
				SupplyShares: intString(p.SupplyShares),
				BorrowShares: intString(p.BorrowShares),
				Collateral:   intString(p.Collateral),
			},
		})
	}
	for key, v := range state.Authorizations {
		doc.Authorizations = append(doc.Authorizations, pair[string, bool]{Key: key.String(), Value: v})
	}
	for _, c := range state.PreLiquidationContracts {
		doc.PreLiquidationContracts = append(doc.PreLiquidationContracts, preLiquidationContractJSON{
			MarketID: c.MarketID.Hex(),
			Address:  c.Address.Hex(),
			PreLiquidationParams: preLiquidationParamsJSON{
				PreLltv:              intString(c.Params.PreLltv),
				PreLCF1:              intString(c.Params.PreLCF1),
				PreLCF2:              intString(c.Params.PreLCF2),
				PreLIF1:              intString(c.Params.PreLIF1),
				PreLIF2:              intString(c.Params.PreLIF2),
				PreLiquidationOracle: c.Params.PreLiquidationOracle.Hex(),
			},
		})
	}
	for vault, queue := range state.VaultWithdrawQueues {
		ids := make([]string, len(queue))
		for i, id := range queue {
			ids[i] = id.Hex()
		}
		doc.VaultWithdrawQueues = append(doc.VaultWithdrawQueues, pair[string, []string]{Key: vault.Hex(), Value: ids})
	}

	sortPairs(doc.Markets)
	sortPairs(doc.Positions)
	sortPairs(doc.Authorizations)
	sortPairs(doc.VaultWithdrawQueues)

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return data, nil
}

// DecodeCheckpoint parses a checkpoint; a version other than CheckpointVersion yields ErrCheckpointVersion
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var doc checkpointJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if doc.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: %d", ErrCheckpointVersion, doc.Version)
	}

	block, err := strconv.ParseInt(doc.LastSyncedBlock, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lastSyncedBlock %q: %w", doc.LastSyncedBlock, err)
	}

	state := NewIndexerState()
	for _, entry := range doc.Markets {
		if !isHash(entry.Key) {
			return nil, fmt.Errorf("invalid market id %q", entry.Key)
		}
		m, err := decodeMarket(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", entry.Key, err)
		}
		state.Markets[common.HexToHash(entry.Key)] = m
	}
	for _, entry := range doc.Positions {
		key, err := ParsePositionKey(entry.Key)
		if err != nil {
			return nil, err
		}
		var p PositionState
		if p.SupplyShares, err = parseInt(entry.Value.SupplyShares); err != nil {
			return nil, fmt.Errorf("position %s: %w", entry.Key, err)
		}
		if p.BorrowShares, err = parseInt(entry.Value.BorrowShares); err != nil {
			return nil, fmt.Errorf("position %s: %w", entry.Key, err)
		}
		if p.Collateral, err = parseInt(entry.Value.Collateral); err != nil {
			return nil, fmt.Errorf("position %s: %w", entry.Key, err)
		}
		state.Positions[key] = &p
	}
	for _, entry := range doc.Authorizations {
		key, err := ParseAuthorizationKey(entry.Key)
		if err != nil {
			return nil, err
		}
		state.Authorizations[key] = entry.Value
	}
	for _, c := range doc.PreLiquidationContracts {
		contract, err := decodePreLiquidationContract(c)
		if err != nil {
			return nil, err
		}
		state.PreLiquidationContracts = append(state.PreLiquidationContracts, contract)
	}
	for _, entry := range doc.VaultWithdrawQueues {
		if !common.IsHexAddress(entry.Key) {
			return nil, fmt.Errorf("invalid vault address %q", entry.Key)
		}
		queue := make([]common.Hash, 0, len(entry.Value))
		for _, id := range entry.Value {
			if !isHash(id) {
				return nil, fmt.Errorf("invalid market id %q in vault queue", id)
			}
			queue = append(queue, common.HexToHash(id))
		}
		state.VaultWithdrawQueues[common.HexToAddress(entry.Key)] = queue
	}

	return &Checkpoint{
		Version:         doc.Version,
		ChainID:         doc.ChainID,
		LastSyncedBlock: block,
		Timestamp:       time.UnixMilli(doc.Timestamp),
		State:           state,
	}, nil
}

func encodeMarket(m *MarketState) marketJSON {
	out := marketJSON{
		Params: marketParamsJSON{
			LoanToken:       m.Params.LoanToken.Hex(),
			CollateralToken: m.Params.CollateralToken.Hex(),
			Oracle:          m.Params.Oracle.Hex(),
			Irm:             m.Params.Irm.Hex(),
			Lltv:            intString(m.Params.Lltv),
		},
		TotalSupplyAssets: intString(m.TotalSupplyAssets),
		TotalSupplyShares: intString(m.TotalSupplyShares),
		TotalBorrowAssets: intString(m.TotalBorrowAssets),
		TotalBorrowShares: intString(m.TotalBorrowShares),
		LastUpdate:        intString(m.LastUpdate),
		Fee:               intString(m.Fee),
	}
	if m.RateAtTarget != nil {
		rate := m.RateAtTarget.String()
		out.RateAtTarget = &rate
	}
	return out
}

func decodeMarket(in marketJSON) (*MarketState, error) {
	for _, addr := range []string{in.Params.LoanToken, in.Params.CollateralToken, in.Params.Oracle, in.Params.Irm} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid address %q", addr)
		}
	}

	m := &MarketState{
		Params: MarketParams{
			LoanToken:       common.HexToAddress(in.Params.LoanToken),
			CollateralToken: common.HexToAddress(in.Params.CollateralToken),
			Oracle:          common.HexToAddress(in.Params.Oracle),
			Irm:             common.HexToAddress(in.Params.Irm),
		},
	}

	fields := []struct {
		dst **big.Int
		src string
	}{
		{&m.Params.Lltv, in.Params.Lltv},
		{&m.TotalSupplyAssets, in.TotalSupplyAssets},
		{&m.TotalSupplyShares, in.TotalSupplyShares},
		{&m.TotalBorrowAssets, in.TotalBorrowAssets},
		{&m.TotalBorrowShares, in.TotalBorrowShares},
		{&m.LastUpdate, in.LastUpdate},
		{&m.Fee, in.Fee},
	}
	for _, f := range fields {
		v, err := parseInt(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	if in.RateAtTarget != nil {
		rate, err := parseInt(*in.RateAtTarget)
		if err != nil {
			return nil, err
		}
		m.RateAtTarget = rate
	}
	return m, nil
}

func decodePreLiquidationContract(in preLiquidationContractJSON) (PreLiquidationContract, error) {
	if !isHash(in.MarketID) || !common.IsHexAddress(in.Address) ||
		!common.IsHexAddress(in.PreLiquidationParams.PreLiquidationOracle) {
		return PreLiquidationContract{}, fmt.Errorf("invalid pre-liquidation contract %s", in.Address)
	}

	c := PreLiquidationContract{
		MarketID: common.HexToHash(in.MarketID),
		Address:  common.HexToAddress(in.Address),
		Params: PreLiquidationParams{
			PreLiquidationOracle: common.HexToAddress(in.PreLiquidationParams.PreLiquidationOracle),
		},
	}
	p := in.PreLiquidationParams
	var err error
	if c.Params.PreLltv, err = parseInt(p.PreLltv); err != nil {
		return c, err
	}
	if c.Params.PreLCF1, err = parseInt(p.PreLCF1); err != nil {
		return c, err
	}
	if c.Params.PreLCF2, err = parseInt(p.PreLCF2); err != nil {
		return c, err
	}
	if c.Params.PreLIF1, err = parseInt(p.PreLIF1); err != nil {
		return c, err
	}
	if c.Params.PreLIF2, err = parseInt(p.PreLIF2); err != nil {
		return c, err
	}
	return c, nil
}

func sortPairs[V any](pairs []pair[string, V]) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func isHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}
