// Package events defines the decoded protocol events replayed by the indexer
package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
)

// Source tags which contract family a log was fetched from
type Source string

const (
	SourceMorpho         Source = "morpho"
	SourceIrm            Source = "irm"
	SourcePreLiquidation Source = "preLiquidation"
	SourceVault          Source = "vault"
)

// Event is one decoded protocol event
type Event interface {
	EventName() string
}

// CreateMarket is emitted when a market is created
type CreateMarket struct {
	ID     common.Hash
	Params entities.MarketParams
}

// SetFee is emitted when a market fee changes
type SetFee struct {
	ID     common.Hash
	NewFee *big.Int
}

// AccrueInterest is emitted on every interest accrual
type AccrueInterest struct {
	ID             common.Hash
	PrevBorrowRate *big.Int
	Interest       *big.Int
	FeeShares      *big.Int
}

// Supply is emitted when loan assets are supplied
type Supply struct {
	ID       common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Assets   *big.Int
	Shares   *big.Int
}

// Withdraw is emitted when loan assets are withdrawn
type Withdraw struct {
	ID       common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Receiver common.Address
	Assets   *big.Int
	Shares   *big.Int
}

// Borrow is emitted when loan assets are borrowed
type Borrow struct {
	ID       common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Receiver common.Address
	Assets   *big.Int
	Shares   *big.Int
}

// Repay is emitted when debt is repaid
type Repay struct {
	ID       common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Assets   *big.Int
	Shares   *big.Int
}

// SupplyCollateral is emitted when collateral is deposited
type SupplyCollateral struct {
	ID       common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Assets   *big.Int
}

// WithdrawCollateral is emitted when collateral is withdrawn
type WithdrawCollateral struct {
	ID       common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Receiver common.Address
	Assets   *big.Int
}

// Liquidate is emitted when a position is liquidated
type Liquidate struct {
	ID            common.Hash
	Caller        common.Address
	Borrower      common.Address
	RepaidAssets  *big.Int
	RepaidShares  *big.Int
	SeizedAssets  *big.Int
	BadDebtAssets *big.Int
	BadDebtShares *big.Int
}

// SetAuthorization is emitted when an authorizer grants or revokes a manager
type SetAuthorization struct {
	Caller          common.Address
	Authorizer      common.Address
	Authorized      common.Address
	NewIsAuthorized bool
}

// BorrowRateUpdate is emitted by the adaptive curve rate model
type BorrowRateUpdate struct {
	ID            common.Hash
	AvgBorrowRate *big.Int
	RateAtTarget  *big.Int
}

// CreatePreLiquidation is emitted by the pre-liquidation factory
type CreatePreLiquidation struct {
	PreLiquidation common.Address
	ID             common.Hash
	Params         entities.PreLiquidationParams
}

// SetWithdrawQueue is emitted by a vault; Vault is the emitting contract
type SetWithdrawQueue struct {
	Vault            common.Address
	Caller           common.Address
	NewWithdrawQueue []common.Hash
}

func (CreateMarket) EventName() string         { return "CreateMarket" }
func (SetFee) EventName() string               { return "SetFee" }
func (AccrueInterest) EventName() string       { return "AccrueInterest" }
func (Supply) EventName() string               { return "Supply" }
func (Withdraw) EventName() string             { return "Withdraw" }
func (Borrow) EventName() string               { return "Borrow" }
func (Repay) EventName() string                { return "Repay" }
func (SupplyCollateral) EventName() string     { return "SupplyCollateral" }
func (WithdrawCollateral) EventName() string   { return "WithdrawCollateral" }
func (Liquidate) EventName() string            { return "Liquidate" }
func (SetAuthorization) EventName() string     { return "SetAuthorization" }
func (BorrowRateUpdate) EventName() string     { return "BorrowRateUpdate" }
func (CreatePreLiquidation) EventName() string { return "CreatePreLiquidation" }
func (SetWithdrawQueue) EventName() string     { return "SetWithdrawQueue" }
