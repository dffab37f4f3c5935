package pricers

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/bimakw/blue-liquidator/internal/infrastructure/morphoapi"
)

// MorphoAPI prices assets with the priceUsd field of the Morpho API
type MorphoAPI struct {
	client  *morphoapi.Client
	chainID int64
}

func NewMorphoAPI(client *morphoapi.Client, chainID int64) *MorphoAPI {
	return &MorphoAPI{client: client, chainID: chainID}
}

func (p *MorphoAPI) Name() string { return NameMorphoAPI }

func (p *MorphoAPI) Price(ctx context.Context, asset common.Address) (decimal.Decimal, bool, error) {
	return p.client.AssetPrice(ctx, p.chainID, asset)
}
