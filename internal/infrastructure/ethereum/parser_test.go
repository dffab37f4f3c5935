package ethereum

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bimakw/blue-liquidator/internal/domain/events"
)

var (
	testMarketID = common.HexToHash("0x9103c3b4e834476c9a62ea009ba2c884ee42e94e6e314a26f04d312434191836")
	testUser     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testCaller   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func TestEventSignatures(t *testing.T) {
	tests := []struct {
		signature string
		id        common.Hash
	}{
		{"CreateMarket(bytes32,(address,address,address,address,uint256))", MorphoABI.Events["CreateMarket"].ID},
		{"Supply(bytes32,address,address,uint256,uint256)", MorphoABI.Events["Supply"].ID},
		{"Liquidate(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)", MorphoABI.Events["Liquidate"].ID},
		{"SetAuthorization(address,address,address,bool)", MorphoABI.Events["SetAuthorization"].ID},
		{"BorrowRateUpdate(bytes32,uint256,uint256)", IrmABI.Events["BorrowRateUpdate"].ID},
		{"CreatePreLiquidation(address,bytes32,(uint256,uint256,uint256,uint256,uint256,address))", PreLiquidationABI.Events["CreatePreLiquidation"].ID},
		{"SetWithdrawQueue(address,bytes32[])", VaultABI.Events["SetWithdrawQueue"].ID},
	}

	for _, tt := range tests {
		expected := crypto.Keccak256Hash([]byte(tt.signature))
		if tt.id != expected {
			t.Errorf("%s: expected %s, got %s", tt.signature, expected.Hex(), tt.id.Hex())
		}
	}
}

func TestABISelectors(t *testing.T) {
	tests := []struct {
		name     string
		selector []byte
		expected string
	}{
		{"decimals()", ERC20ABI.Methods["decimals"].ID, "313ce567"},
		{"balanceOf(address)", ERC20ABI.Methods["balanceOf"].ID, "70a08231"},
		{"approve(address,uint256)", ERC20ABI.Methods["approve"].ID, "095ea7b3"},
		{"price()", OracleABI.Methods["price"].ID, "a035b1fe"},
		{"aggregate3((address,bool,bytes)[])", MulticallABI.Methods["aggregate3"].ID, "82ad56cb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := common.Bytes2Hex(tt.selector)
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseLog_Supply(t *testing.T) {
	ev := MorphoABI.Events["Supply"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(1000), big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := types.Log{
		Topics: []common.Hash{ev.ID, testMarketID, addressTopic(testCaller), addressTopic(testUser)},
		Data:   data,
	}

	parsed, err := ParseLog(events.SourceMorpho, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	supply, ok := parsed.(*events.Supply)
	if !ok {
		t.Fatalf("expected *events.Supply, got %T", parsed)
	}
	if supply.ID != testMarketID {
		t.Errorf("expected id %s, got %s", testMarketID.Hex(), supply.ID.Hex())
	}
	if supply.Caller != testCaller || supply.OnBehalf != testUser {
		t.Errorf("unexpected addresses: caller %s onBehalf %s", supply.Caller.Hex(), supply.OnBehalf.Hex())
	}
	if supply.Assets.Int64() != 1000 || supply.Shares.Int64() != 1_000_000 {
		t.Errorf("unexpected amounts: %s %s", supply.Assets, supply.Shares)
	}
}

func TestParseLog_CreateMarket(t *testing.T) {
	ev := MorphoABI.Events["CreateMarket"]
	params := marketParamsTuple{
		LoanToken:       common.HexToAddress("0x01"),
		CollateralToken: common.HexToAddress("0x02"),
		Oracle:          common.HexToAddress("0x03"),
		Irm:             common.HexToAddress("0x04"),
		Lltv:            big.NewInt(86e16),
	}
	data, err := ev.Inputs.NonIndexed().Pack(params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := ParseLog(events.SourceMorpho, types.Log{Topics: []common.Hash{ev.ID, testMarketID}, Data: data})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	created, ok := parsed.(*events.CreateMarket)
	if !ok {
		t.Fatalf("expected *events.CreateMarket, got %T", parsed)
	}
	if created.Params.Oracle != params.Oracle || created.Params.Irm != params.Irm {
		t.Errorf("unexpected params: %+v", created.Params)
	}
	if created.Params.Lltv.Cmp(params.Lltv) != 0 {
		t.Errorf("expected lltv %s, got %s", params.Lltv, created.Params.Lltv)
	}
}

func TestParseLog_SetWithdrawQueueUsesEmitter(t *testing.T) {
	ev := VaultABI.Events["SetWithdrawQueue"]
	queue := [][32]byte{testMarketID, {}}
	data, err := ev.Inputs.NonIndexed().Pack(queue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vault := common.HexToAddress("0x0000000000000000000000000000000000000Fa7")
	parsed, err := ParseLog(events.SourceVault, types.Log{
		Address: vault,
		Topics:  []common.Hash{ev.ID, addressTopic(testCaller)},
		Data:    data,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set, ok := parsed.(*events.SetWithdrawQueue)
	if !ok {
		t.Fatalf("expected *events.SetWithdrawQueue, got %T", parsed)
	}
	if set.Vault != vault {
		t.Errorf("expected vault %s, got %s", vault.Hex(), set.Vault.Hex())
	}
	if len(set.NewWithdrawQueue) != 2 || set.NewWithdrawQueue[0] != testMarketID {
		t.Errorf("unexpected queue: %v", set.NewWithdrawQueue)
	}
}

func TestParseLog_UntrackedTopic(t *testing.T) {
	// A Transfer log showing up in a morpho query is ignored
	transfer := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	parsed, err := ParseLog(events.SourceMorpho, types.Log{Topics: []common.Hash{transfer}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != nil {
		t.Errorf("expected nil event, got %T", parsed)
	}

	// IRM events are only decoded for the irm source
	parsed, err = ParseLog(events.SourceMorpho, types.Log{Topics: []common.Hash{IrmABI.Events["BorrowRateUpdate"].ID}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != nil {
		t.Errorf("expected nil event, got %T", parsed)
	}
}

func TestParseLog_Malformed(t *testing.T) {
	ev := MorphoABI.Events["SetFee"]

	tests := []struct {
		name string
		log  types.Log
	}{
		{
			name: "missing indexed id",
			log:  types.Log{Topics: []common.Hash{ev.ID}, Data: common.LeftPadBytes([]byte{5}, 32)},
		},
		{
			name: "truncated data",
			log:  types.Log{Topics: []common.Hash{ev.ID, testMarketID}, Data: []byte{1, 2, 3}},
		},
		{
			name: "missing data",
			log:  types.Log{Topics: []common.Hash{ev.ID, testMarketID}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseLog(events.SourceMorpho, tt.log); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTrackedTopics(t *testing.T) {
	if got := len(TrackedTopics(events.SourceMorpho)); got != 11 {
		t.Errorf("expected 11 morpho topics, got %d", got)
	}
	if got := len(TrackedTopics(events.SourceVault)); got != 1 {
		t.Errorf("expected 1 vault topic, got %d", got)
	}
	if TrackedTopics(events.Source("unknown")) != nil {
		t.Error("expected no topics for an unknown source")
	}
}
