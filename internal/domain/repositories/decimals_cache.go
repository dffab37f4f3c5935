package repositories

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsCache stores ERC-20 decimals, which never change once deployed
type DecimalsCache interface {
	GetDecimals(ctx context.Context, chainID int64, token common.Address) (uint8, bool, error)
	SetDecimals(ctx context.Context, chainID int64, token common.Address, decimals uint8) error
}
