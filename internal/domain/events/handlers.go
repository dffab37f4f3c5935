package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
)

// Apply mutates state with one event stamped at blockTimestamp.
// Events referencing an unknown market or position are skipped.
func Apply(state *entities.IndexerState, ev Event, blockTimestamp *big.Int) error {
	switch e := ev.(type) {
	case *CreateMarket:
		state.Markets[e.ID] = entities.NewMarketState(e.Params, blockTimestamp)

	case *SetFee:
		if market, ok := state.Markets[e.ID]; ok {
			market.Fee = copyInt(e.NewFee)
			market.LastUpdate = copyInt(blockTimestamp)
		}

	case *AccrueInterest:
		if market, ok := state.Markets[e.ID]; ok {
			add(market.TotalSupplyAssets, e.Interest)
			add(market.TotalBorrowAssets, e.Interest)
			add(market.TotalSupplyShares, e.FeeShares)
			market.LastUpdate = copyInt(blockTimestamp)
		}

	case *Supply:
		if market, ok := state.Markets[e.ID]; ok {
			add(market.TotalSupplyAssets, e.Assets)
			add(market.TotalSupplyShares, e.Shares)
			market.LastUpdate = copyInt(blockTimestamp)

			pos := state.GetOrCreatePosition(entities.PositionKey{MarketID: e.ID, User: e.OnBehalf})
			add(pos.SupplyShares, e.Shares)
		}

	case *Withdraw:
		if market, ok := state.Markets[e.ID]; ok {
			sub(market.TotalSupplyAssets, e.Assets)
			sub(market.TotalSupplyShares, e.Shares)
			market.LastUpdate = copyInt(blockTimestamp)

			if pos, ok := state.Positions[entities.PositionKey{MarketID: e.ID, User: e.OnBehalf}]; ok {
				sub(pos.SupplyShares, e.Shares)
			}
		}

	case *Borrow:
		if market, ok := state.Markets[e.ID]; ok {
			add(market.TotalBorrowAssets, e.Assets)
			add(market.TotalBorrowShares, e.Shares)
			market.LastUpdate = copyInt(blockTimestamp)

			pos := state.GetOrCreatePosition(entities.PositionKey{MarketID: e.ID, User: e.OnBehalf})
			add(pos.BorrowShares, e.Shares)
		}

	case *Repay:
		if market, ok := state.Markets[e.ID]; ok {
			sub(market.TotalBorrowAssets, e.Assets)
			sub(market.TotalBorrowShares, e.Shares)
			market.LastUpdate = copyInt(blockTimestamp)

			if pos, ok := state.Positions[entities.PositionKey{MarketID: e.ID, User: e.OnBehalf}]; ok {
				sub(pos.BorrowShares, e.Shares)
			}
		}

	case *SupplyCollateral:
		pos := state.GetOrCreatePosition(entities.PositionKey{MarketID: e.ID, User: e.OnBehalf})
		add(pos.Collateral, e.Assets)

	case *WithdrawCollateral:
		if pos, ok := state.Positions[entities.PositionKey{MarketID: e.ID, User: e.OnBehalf}]; ok {
			sub(pos.Collateral, e.Assets)
		}

	case *Liquidate:
		if market, ok := state.Markets[e.ID]; ok {
			sub(market.TotalBorrowAssets, e.RepaidAssets)
			sub(market.TotalBorrowShares, e.RepaidShares)
			sub(market.TotalSupplyAssets, e.BadDebtAssets)
			sub(market.TotalSupplyShares, e.BadDebtShares)
			market.LastUpdate = copyInt(blockTimestamp)

			if pos, ok := state.Positions[entities.PositionKey{MarketID: e.ID, User: e.Borrower}]; ok {
				sub(pos.Collateral, e.SeizedAssets)
				sub(pos.BorrowShares, e.RepaidShares)
				sub(pos.BorrowShares, e.BadDebtShares)
			}
		}

	case *SetAuthorization:
		key := entities.AuthorizationKey{Authorizer: e.Authorizer, Authorized: e.Authorized}
		state.Authorizations[key] = e.NewIsAuthorized

	case *BorrowRateUpdate:
		if market, ok := state.Markets[e.ID]; ok {
			market.RateAtTarget = copyInt(e.RateAtTarget)
		}

	case *CreatePreLiquidation:
		state.PreLiquidationContracts = append(state.PreLiquidationContracts, entities.PreLiquidationContract{
			MarketID: e.ID,
			Address:  e.PreLiquidation,
			Params:   e.Params.Clone(),
		})

	case *SetWithdrawQueue:
		state.VaultWithdrawQueues[e.Vault] = append([]common.Hash(nil), e.NewWithdrawQueue...)

	default:
		return fmt.Errorf("unsupported event %T", ev)
	}

	return nil
}

func add(dst, v *big.Int) {
	if v != nil {
		dst.Add(dst, v)
	}
}

func sub(dst, v *big.Int) {
	if v != nil {
		dst.Sub(dst, v)
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
