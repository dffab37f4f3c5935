package entities

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestIndexerState_CloneIsIndependent(t *testing.T) {
	state := sampleState()
	clone := state.Clone()

	for id, m := range clone.Markets {
		m.TotalBorrowAssets.Add(m.TotalBorrowAssets, big.NewInt(1))
		m.Params.Lltv.SetInt64(0)
		if state.Markets[id].Params.Lltv.Sign() == 0 {
			t.Fatal("clone shares lltv with the original")
		}
	}
	for key, p := range clone.Positions {
		p.Collateral.SetInt64(7)
		if state.Positions[key].Collateral.Int64() == 7 {
			t.Fatal("clone shares collateral with the original")
		}
	}
	for vault, queue := range clone.VaultWithdrawQueues {
		queue[0] = common.Hash{}
		if state.VaultWithdrawQueues[vault][0] == (common.Hash{}) {
			t.Fatal("clone shares vault queue with the original")
		}
	}
	clone.PreLiquidationContracts[0].Params.PreLltv.SetInt64(1)
	if state.PreLiquidationContracts[0].Params.PreLltv.Int64() == 1 {
		t.Fatal("clone shares pre-liquidation params with the original")
	}

	clone.Positions[PositionKey{User: common.HexToAddress("0x01")}] = NewPositionState()
	if len(state.Positions) != 1 {
		t.Errorf("expected original to keep 1 position, got %d", len(state.Positions))
	}
}

func TestIndexerState_CloneKeepsUnknownRate(t *testing.T) {
	market := NewMarketState(MarketParams{Lltv: big.NewInt(1)}, big.NewInt(0))
	if market.Clone().RateAtTarget != nil {
		t.Error("expected nil rate at target to stay nil")
	}

	market.RateAtTarget = big.NewInt(5)
	if market.Clone().RateAtTarget.Int64() != 5 {
		t.Error("expected rate at target to be copied")
	}
}

func TestMarketParams_ID(t *testing.T) {
	params := sampleState().Markets
	seen := make(map[common.Hash]bool)
	for id, m := range params {
		if m.Params.ID() != id {
			t.Errorf("expected id %s, got %s", id.Hex(), m.Params.ID().Hex())
		}
		seen[id] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected distinct ids for distinct lltv, got %d", len(seen))
	}
}

func TestPositionKey_RoundTrip(t *testing.T) {
	key := PositionKey{
		MarketID: common.HexToHash("0x9103c3b4e834476c9a62ea009ba2c884ee42e94e6e314a26f04d312434191836"),
		User:     common.HexToAddress("0xAbCdEf0123456789aBCDef0123456789AbCdEf01"),
	}

	s := key.String()
	if s != "0x9103c3b4e834476c9a62ea009ba2c884ee42e94e6e314a26f04d312434191836-0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("unexpected key format %s", s)
	}

	parsed, err := ParsePositionKey(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != key {
		t.Errorf("expected %v, got %v", key, parsed)
	}

	for _, bad := range []string{"", "0x01-0x02", s[:len(s)-1], s[:66] + "_" + s[67:]} {
		if _, err := ParsePositionKey(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestAuthorizationKey_RoundTrip(t *testing.T) {
	key := AuthorizationKey{
		Authorizer: common.HexToAddress("0xAbCdEf0123456789aBCDef0123456789AbCdEf01"),
		Authorized: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}

	parsed, err := ParseAuthorizationKey(key.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != key {
		t.Errorf("expected %v, got %v", key, parsed)
	}

	if _, err := ParseAuthorizationKey("0x01"); err == nil {
		t.Error("expected error for key without separator")
	}
}

func TestIndexerState_GetOrCreatePosition(t *testing.T) {
	state := NewIndexerState()
	key := PositionKey{User: common.HexToAddress("0x01")}

	first := state.GetOrCreatePosition(key)
	first.Collateral.SetInt64(10)

	second := state.GetOrCreatePosition(key)
	if second.Collateral.Int64() != 10 {
		t.Errorf("expected existing position, got collateral %s", second.Collateral)
	}
	if len(state.Positions) != 1 {
		t.Errorf("expected 1 position, got %d", len(state.Positions))
	}
}
