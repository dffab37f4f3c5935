package entities

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MarketParams is the immutable identity of a market
type MarketParams struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	Irm             common.Address
	Lltv            *big.Int
}

// ID derives the market id, keccak256(abi.encode(params))
func (p MarketParams) ID() common.Hash {
	encoded := make([]byte, 0, 5*32)
	encoded = append(encoded, common.LeftPadBytes(p.LoanToken.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(p.CollateralToken.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(p.Oracle.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(p.Irm.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(copyInt(p.Lltv).Bytes(), 32)...)
	return crypto.Keccak256Hash(encoded)
}

// MarketState is the indexed accounting of one market
type MarketState struct {
	Params            MarketParams
	TotalSupplyAssets *big.Int
	TotalSupplyShares *big.Int
	TotalBorrowAssets *big.Int
	TotalBorrowShares *big.Int
	LastUpdate        *big.Int
	Fee               *big.Int
	// RateAtTarget is nil until the rate model reports one
	RateAtTarget *big.Int
}

// PositionState is one user's stake in one market
type PositionState struct {
	SupplyShares *big.Int
	BorrowShares *big.Int
	Collateral   *big.Int
}

// PreLiquidationParams holds the curve of a pre-liquidation contract
type PreLiquidationParams struct {
	PreLltv              *big.Int
	PreLCF1              *big.Int
	PreLCF2              *big.Int
	PreLIF1              *big.Int
	PreLIF2              *big.Int
	PreLiquidationOracle common.Address
}

// PreLiquidationContract is a contract created by the pre-liquidation factory
type PreLiquidationContract struct {
	MarketID common.Hash
	Address  common.Address
	Params   PreLiquidationParams
}

// PositionKey identifies a position
type PositionKey struct {
	MarketID common.Hash
	User     common.Address
}

// String returns the checkpoint form "marketId-lowercaseUser"
func (k PositionKey) String() string {
	return k.MarketID.Hex() + "-" + strings.ToLower(k.User.Hex())
}

// ParsePositionKey parses the checkpoint form of a position key
func ParsePositionKey(s string) (PositionKey, error) {
	// 0x + 64 hex chars, separator, 0x + 40 hex chars
	if len(s) != 66+1+42 || s[66] != '-' {
		return PositionKey{}, fmt.Errorf("invalid position key %q", s)
	}
	marketID, user := s[:66], s[67:]
	if !common.IsHexAddress(user) {
		return PositionKey{}, fmt.Errorf("invalid position key %q", s)
	}
	return PositionKey{MarketID: common.HexToHash(marketID), User: common.HexToAddress(user)}, nil
}

// AuthorizationKey identifies an (authorizer, authorizee) pair
type AuthorizationKey struct {
	Authorizer common.Address
	Authorized common.Address
}

// String returns the checkpoint form "lowercaseAuthorizer-lowercaseAuthorizee"
func (k AuthorizationKey) String() string {
	return strings.ToLower(k.Authorizer.Hex()) + "-" + strings.ToLower(k.Authorized.Hex())
}

// ParseAuthorizationKey parses the checkpoint form of an authorization key
func ParseAuthorizationKey(s string) (AuthorizationKey, error) {
	authorizer, authorized, ok := strings.Cut(s, "-")
	if !ok || !common.IsHexAddress(authorizer) || !common.IsHexAddress(authorized) {
		return AuthorizationKey{}, fmt.Errorf("invalid authorization key %q", s)
	}
	return AuthorizationKey{
		Authorizer: common.HexToAddress(authorizer),
		Authorized: common.HexToAddress(authorized),
	}, nil
}

// IndexerState aggregates everything reconstructed from protocol events.
// Handlers mutate a clone; the live value is only ever replaced, never mutated.
type IndexerState struct {
	Markets                 map[common.Hash]*MarketState
	Positions               map[PositionKey]*PositionState
	Authorizations          map[AuthorizationKey]bool
	PreLiquidationContracts []PreLiquidationContract
	VaultWithdrawQueues     map[common.Address][]common.Hash
}

// NewIndexerState returns an empty state
func NewIndexerState() *IndexerState {
	return &IndexerState{
		Markets:                 make(map[common.Hash]*MarketState),
		Positions:               make(map[PositionKey]*PositionState),
		Authorizations:          make(map[AuthorizationKey]bool),
		PreLiquidationContracts: []PreLiquidationContract{},
		VaultWithdrawQueues:     make(map[common.Address][]common.Hash),
	}
}

// NewMarketState returns a market with zeroed totals
func NewMarketState(params MarketParams, lastUpdate *big.Int) *MarketState {
	return &MarketState{
		Params:            params.Clone(),
		TotalSupplyAssets: new(big.Int),
		TotalSupplyShares: new(big.Int),
		TotalBorrowAssets: new(big.Int),
		TotalBorrowShares: new(big.Int),
		LastUpdate:        copyInt(lastUpdate),
		Fee:               new(big.Int),
	}
}

// NewPositionState returns a zeroed position
func NewPositionState() *PositionState {
	return &PositionState{
		SupplyShares: new(big.Int),
		BorrowShares: new(big.Int),
		Collateral:   new(big.Int),
	}
}

// Clone deep-copies the whole state graph
func (s *IndexerState) Clone() *IndexerState {
	out := &IndexerState{
		Markets:                 make(map[common.Hash]*MarketState, len(s.Markets)),
		Positions:               make(map[PositionKey]*PositionState, len(s.Positions)),
		Authorizations:          make(map[AuthorizationKey]bool, len(s.Authorizations)),
		PreLiquidationContracts: make([]PreLiquidationContract, len(s.PreLiquidationContracts)),
		VaultWithdrawQueues:     make(map[common.Address][]common.Hash, len(s.VaultWithdrawQueues)),
	}

	for id, m := range s.Markets {
		out.Markets[id] = m.Clone()
	}
	for key, p := range s.Positions {
		out.Positions[key] = p.Clone()
	}
	for key, v := range s.Authorizations {
		out.Authorizations[key] = v
	}
	for i, c := range s.PreLiquidationContracts {
		out.PreLiquidationContracts[i] = PreLiquidationContract{
			MarketID: c.MarketID,
			Address:  c.Address,
			Params:   c.Params.Clone(),
		}
	}
	for vault, queue := range s.VaultWithdrawQueues {
		out.VaultWithdrawQueues[vault] = append([]common.Hash(nil), queue...)
	}

	return out
}

// GetOrCreatePosition returns the position for key, creating a zeroed one if absent
func (s *IndexerState) GetOrCreatePosition(key PositionKey) *PositionState {
	pos, ok := s.Positions[key]
	if !ok {
		pos = NewPositionState()
		s.Positions[key] = pos
	}
	return pos
}

// IsAuthorized reports the indexed authorization flag for the pair
func (s *IndexerState) IsAuthorized(authorizer, authorized common.Address) bool {
	return s.Authorizations[AuthorizationKey{Authorizer: authorizer, Authorized: authorized}]
}

// Clone deep-copies the market
func (m *MarketState) Clone() *MarketState {
	return &MarketState{
		Params:            m.Params.Clone(),
		TotalSupplyAssets: copyInt(m.TotalSupplyAssets),
		TotalSupplyShares: copyInt(m.TotalSupplyShares),
		TotalBorrowAssets: copyInt(m.TotalBorrowAssets),
		TotalBorrowShares: copyInt(m.TotalBorrowShares),
		LastUpdate:        copyInt(m.LastUpdate),
		Fee:               copyInt(m.Fee),
		RateAtTarget:      copyOptionalInt(m.RateAtTarget),
	}
}

// Clone deep-copies the params
func (p MarketParams) Clone() MarketParams {
	p.Lltv = copyInt(p.Lltv)
	return p
}

// Clone deep-copies the position
func (p *PositionState) Clone() *PositionState {
	return &PositionState{
		SupplyShares: copyInt(p.SupplyShares),
		BorrowShares: copyInt(p.BorrowShares),
		Collateral:   copyInt(p.Collateral),
	}
}

// Clone deep-copies the params
func (p PreLiquidationParams) Clone() PreLiquidationParams {
	p.PreLltv = copyInt(p.PreLltv)
	p.PreLCF1 = copyInt(p.PreLCF1)
	p.PreLCF2 = copyInt(p.PreLCF2)
	p.PreLIF1 = copyInt(p.PreLIF1)
	p.PreLIF2 = copyInt(p.PreLIF2)
	return p
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func copyOptionalInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
