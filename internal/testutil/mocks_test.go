package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/domain/events"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
)

func TestMockLogSource_FiltersRangeAndEmitter(t *testing.T) {
	src := NewMockLogSource()
	src.AddLogs(events.SourceMorpho,
		CreateMarketLog(TestMarketParams(), AtBlock(10, 0)),
		SupplyLog(TestMarketID(), AliceAddress, 100, 100, AtBlock(20, 1)),
		SupplyLog(TestMarketID(), AliceAddress, 100, 100, AtBlock(30, 0), EmittedBy(BobAddress)),
	)

	ctx := context.Background()
	logs, err := src.FetchLogs(ctx, events.SourceMorpho, []common.Address{MorphoAddress}, 0, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("expected 2 logs, got %d", len(logs))
	}

	logs, _ = src.FetchLogs(ctx, events.SourceMorpho, []common.Address{MorphoAddress}, 21, 40)
	if len(logs) != 0 {
		t.Errorf("expected 0 logs, got %d", len(logs))
	}
	if src.FetchCount() != 2 {
		t.Errorf("expected 2 calls, got %d", src.FetchCount())
	}
}

func TestFixtures_LogsDecode(t *testing.T) {
	tests := []struct {
		name   string
		source events.Source
		log    types.Log
		want   string
	}{
		{"create market", events.SourceMorpho, CreateMarketLog(TestMarketParams()), "CreateMarket"},
		{"borrow", events.SourceMorpho, BorrowLog(TestMarketID(), AliceAddress, 900, 900_000_000), "Borrow"},
		{"set authorization", events.SourceMorpho, SetAuthorizationLog(AliceAddress, PreLiquidationAddress, true), "SetAuthorization"},
		{"create pre-liquidation", events.SourcePreLiquidation,
			CreatePreLiquidationLog(PreLiquidationAddress, TestMarketID(), TestPreLiquidationParams(OracleAddress)), "CreatePreLiquidation"},
		{"set withdraw queue", events.SourceVault, SetWithdrawQueueLog(VaultAddress, []common.Hash{TestMarketID()}), "SetWithdrawQueue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ethereum.ParseLog(tt.source, tt.log)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev == nil || ev.EventName() != tt.want {
				t.Errorf("expected %s, got %v", tt.want, ev)
			}
		})
	}
}

func TestMockCheckpointRepository(t *testing.T) {
	repo := NewMockCheckpointRepository()
	ctx := context.Background()

	cp, err := repo.Load(ctx)
	if err != nil || cp != nil {
		t.Fatalf("expected empty repository, got %v %v", cp, err)
	}

	state := CreateTestState()
	if err := repo.Save(ctx, state, 42, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// mutations after Save do not leak into the stored copy
	state.Markets[TestMarketID()].TotalBorrowAssets.SetInt64(0)

	cp, _ = repo.Load(ctx)
	if cp.LastSyncedBlock != 42 || cp.ChainID != 1 {
		t.Errorf("unexpected checkpoint header %+v", cp)
	}
	if cp.State.Markets[TestMarketID()].TotalBorrowAssets.Int64() != 900 {
		t.Error("expected stored state to be a copy")
	}

	repo.SaveFunc = func(context.Context, *entities.IndexerState, int64, int64) error {
		return errors.New("disk full")
	}
	if err := repo.Save(ctx, state, 43, 1); err == nil {
		t.Error("expected error")
	}
	if repo.Stored().LastSyncedBlock != 42 {
		t.Error("expected failed save to keep the previous checkpoint")
	}
	if repo.CallCount("Save") != 2 {
		t.Errorf("expected 2 saves, got %d", repo.CallCount("Save"))
	}
}
