package entities

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func mustBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid integer " + s)
	}
	return v
}

func requireIntEqual(t *testing.T, expected, actual *big.Int, field string) {
	t.Helper()
	if expected == nil || actual == nil {
		require.Equal(t, expected == nil, actual == nil, field)
		return
	}
	require.Zero(t, expected.Cmp(actual), "%s: expected %s, got %s", field, expected, actual)
}

func requireStateEqual(t *testing.T, expected, actual *IndexerState) {
	t.Helper()

	require.Len(t, actual.Markets, len(expected.Markets))
	for id, want := range expected.Markets {
		got, ok := actual.Markets[id]
		require.True(t, ok, "missing market %s", id.Hex())
		require.Equal(t, want.Params.LoanToken, got.Params.LoanToken)
		require.Equal(t, want.Params.CollateralToken, got.Params.CollateralToken)
		require.Equal(t, want.Params.Oracle, got.Params.Oracle)
		require.Equal(t, want.Params.Irm, got.Params.Irm)
		requireIntEqual(t, want.Params.Lltv, got.Params.Lltv, "lltv")
		requireIntEqual(t, want.TotalSupplyAssets, got.TotalSupplyAssets, "totalSupplyAssets")
		requireIntEqual(t, want.TotalSupplyShares, got.TotalSupplyShares, "totalSupplyShares")
		requireIntEqual(t, want.TotalBorrowAssets, got.TotalBorrowAssets, "totalBorrowAssets")
		requireIntEqual(t, want.TotalBorrowShares, got.TotalBorrowShares, "totalBorrowShares")
		requireIntEqual(t, want.LastUpdate, got.LastUpdate, "lastUpdate")
		requireIntEqual(t, want.Fee, got.Fee, "fee")
		requireIntEqual(t, want.RateAtTarget, got.RateAtTarget, "rateAtTarget")
	}

	require.Len(t, actual.Positions, len(expected.Positions))
	for key, want := range expected.Positions {
		got, ok := actual.Positions[key]
		require.True(t, ok, "missing position %s", key)
		requireIntEqual(t, want.SupplyShares, got.SupplyShares, "supplyShares")
		requireIntEqual(t, want.BorrowShares, got.BorrowShares, "borrowShares")
		requireIntEqual(t, want.Collateral, got.Collateral, "collateral")
	}

	require.Equal(t, expected.Authorizations, actual.Authorizations)
	require.Equal(t, expected.VaultWithdrawQueues, actual.VaultWithdrawQueues)

	require.Len(t, actual.PreLiquidationContracts, len(expected.PreLiquidationContracts))
	for i, want := range expected.PreLiquidationContracts {
		got := actual.PreLiquidationContracts[i]
		require.Equal(t, want.MarketID, got.MarketID)
		require.Equal(t, want.Address, got.Address)
		require.Equal(t, want.Params.PreLiquidationOracle, got.Params.PreLiquidationOracle)
		requireIntEqual(t, want.Params.PreLltv, got.Params.PreLltv, "preLltv")
		requireIntEqual(t, want.Params.PreLCF1, got.Params.PreLCF1, "preLCF1")
		requireIntEqual(t, want.Params.PreLCF2, got.Params.PreLCF2, "preLCF2")
		requireIntEqual(t, want.Params.PreLIF1, got.Params.PreLIF1, "preLIF1")
		requireIntEqual(t, want.Params.PreLIF2, got.Params.PreLIF2, "preLIF2")
	}
}

func sampleState() *IndexerState {
	state := NewIndexerState()

	params := MarketParams{
		LoanToken:       common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		CollateralToken: common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0"),
		Oracle:          common.HexToAddress("0x2a01EB9496094dA03c4E364Def50f5aD1280AD72"),
		Irm:             common.HexToAddress("0x870aC11D48B15DB9a138Cf899d20F13F79Ba00BC"),
		Lltv:            mustBigInt("945000000000000000"),
	}
	id := params.ID()

	market := NewMarketState(params, big.NewInt(1_700_000_000))
	market.TotalSupplyAssets = mustBigInt("123456789012345678901234567890")
	market.TotalSupplyShares = mustBigInt("123456789012345678901234567890000000")
	market.TotalBorrowAssets = mustBigInt("98765432109876543210")
	market.TotalBorrowShares = mustBigInt("98765432109876543210000000")
	market.Fee = mustBigInt("50000000000000000")
	state.Markets[id] = market

	// second market without a known rate at target
	other := params.Clone()
	other.Lltv = mustBigInt("860000000000000000")
	otherMarket := NewMarketState(other, big.NewInt(1_700_000_100))
	otherMarket.RateAtTarget = nil
	state.Markets[other.ID()] = otherMarket
	market.RateAtTarget = mustBigInt("1268391679")

	user := common.HexToAddress("0xAbCdEf0123456789aBCDef0123456789AbCdEf01")
	pos := state.GetOrCreatePosition(PositionKey{MarketID: id, User: user})
	pos.SupplyShares = mustBigInt("1000000")
	pos.BorrowShares = mustBigInt("999999999999999999999999")
	pos.Collateral = mustBigInt("42")

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	state.Authorizations[AuthorizationKey{Authorizer: user, Authorized: contract}] = true
	state.Authorizations[AuthorizationKey{Authorizer: contract, Authorized: user}] = false

	state.PreLiquidationContracts = append(state.PreLiquidationContracts, PreLiquidationContract{
		MarketID: id,
		Address:  contract,
		Params: PreLiquidationParams{
			PreLltv:              mustBigInt("800000000000000000"),
			PreLCF1:              mustBigInt("10000000000000000"),
			PreLCF2:              mustBigInt("500000000000000000"),
			PreLIF1:              mustBigInt("1010000000000000000"),
			PreLIF2:              mustBigInt("1050000000000000000"),
			PreLiquidationOracle: params.Oracle,
		},
	})

	vault := common.HexToAddress("0x2222222222222222222222222222222222222222")
	state.VaultWithdrawQueues[vault] = []common.Hash{id, other.ID()}

	return state
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	state := sampleState()
	now := time.UnixMilli(1_710_000_000_123)

	data, err := EncodeCheckpoint(state, 19_000_000, 1, now)
	require.NoError(t, err)

	cp, err := DecodeCheckpoint(data)
	require.NoError(t, err)
	require.Equal(t, CheckpointVersion, cp.Version)
	require.Equal(t, int64(1), cp.ChainID)
	require.Equal(t, int64(19_000_000), cp.LastSyncedBlock)
	require.Equal(t, now.UnixMilli(), cp.Timestamp.UnixMilli())
	requireStateEqual(t, state, cp.State)
}

func TestCheckpoint_EncodingIsStable(t *testing.T) {
	state := sampleState()
	now := time.UnixMilli(1_710_000_000_000)

	first, err := EncodeCheckpoint(state, 10, 1, now)
	require.NoError(t, err)
	second, err := EncodeCheckpoint(state.Clone(), 10, 1, now)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestCheckpoint_WireFormat(t *testing.T) {
	state := sampleState()
	data, err := EncodeCheckpoint(state, 12345, 8453, time.UnixMilli(0))
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	require.JSONEq(t, `"12345"`, string(doc["lastSyncedBlock"]))
	require.JSONEq(t, `8453`, string(doc["chainId"]))

	var markets [][]json.RawMessage
	require.NoError(t, json.Unmarshal(doc["markets"], &markets))
	require.Len(t, markets, 2)
	for _, entry := range markets {
		require.Len(t, entry, 2)
		var m map[string]any
		require.NoError(t, json.Unmarshal(entry[1], &m))
		require.IsType(t, "", m["totalSupplyAssets"])
		require.Contains(t, m, "rateAtTarget")
	}

	var positions [][]json.RawMessage
	require.NoError(t, json.Unmarshal(doc["positions"], &positions))
	require.Len(t, positions, 1)
	var key string
	require.NoError(t, json.Unmarshal(positions[0][0], &key))
	require.Contains(t, key, "-0xabcdef0123456789abcdef0123456789abcdef01")
}

func TestCheckpoint_VersionMismatch(t *testing.T) {
	data, err := EncodeCheckpoint(sampleState(), 1, 1, time.Now())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["version"] = CheckpointVersion + 1
	bumped, err := json.Marshal(doc)
	require.NoError(t, err)

	cp, err := DecodeCheckpoint(bumped)
	require.Nil(t, cp)
	require.True(t, errors.Is(err, ErrCheckpointVersion))
}

func TestCheckpoint_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"truncated", `{"version":1,"chainId":1,"lastSynced`},
		{"bad block", `{"version":1,"chainId":1,"lastSyncedBlock":"abc","markets":[]}`},
		{"bad pair", `{"version":1,"chainId":1,"lastSyncedBlock":"1","markets":[["0x01"]]}`},
		{"bad position key", `{"version":1,"chainId":1,"lastSyncedBlock":"1","positions":[["nope",{"supplyShares":"0","borrowShares":"0","collateral":"0"}]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp, err := DecodeCheckpoint([]byte(tt.data))
			require.Error(t, err)
			require.Nil(t, cp)
		})
	}
}
