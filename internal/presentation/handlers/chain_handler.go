package handlers

import (
	"encoding/json"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/application/services"
	"github.com/bimakw/blue-liquidator/internal/domain/entities"
)

// ChainView is the read side of one chain's indexer
type ChainView interface {
	StatusProvider
	Market(id common.Hash) (*entities.MarketState, bool)
}

// ChainHandler serves indexer status and market state per chain
type ChainHandler struct {
	chains map[int64]ChainView
	logger *zap.Logger
}

// NewChainHandler creates a new chain handler
func NewChainHandler(chains map[int64]ChainView, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{
		chains: chains,
		logger: logger,
	}
}

// RegisterRoutes registers the chain routes
func (h *ChainHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chains", h.ListChains)
	r.Get("/chains/{chainId}/status", h.GetStatus)
	r.Get("/chains/{chainId}/markets/{marketId}", h.GetMarket)
}

// MarketResponse is the JSON form of an indexed market. Amounts are decimal strings.
type MarketResponse struct {
	ID                string  `json:"id"`
	LoanToken         string  `json:"loan_token"`
	CollateralToken   string  `json:"collateral_token"`
	Oracle            string  `json:"oracle"`
	Irm               string  `json:"irm"`
	Lltv              string  `json:"lltv"`
	TotalSupplyAssets string  `json:"total_supply_assets"`
	TotalSupplyShares string  `json:"total_supply_shares"`
	TotalBorrowAssets string  `json:"total_borrow_assets"`
	TotalBorrowShares string  `json:"total_borrow_shares"`
	LastUpdate        string  `json:"last_update"`
	Fee               string  `json:"fee"`
	RateAtTarget      *string `json:"rate_at_target"`
}

// ListChains handles GET /api/v1/chains
func (h *ChainHandler) ListChains(w http.ResponseWriter, r *http.Request) {
	ids := make([]int64, 0, len(h.chains))
	for id := range h.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	statuses := make([]services.IndexerStatus, 0, len(ids))
	for _, id := range ids {
		statuses = append(statuses, h.chains[id].Status())
	}
	h.respondJSON(w, http.StatusOK, statuses)
}

// GetStatus handles GET /api/v1/chains/{chainId}/status
func (h *ChainHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	chain, ok := h.chain(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, chain.Status())
}

// GetMarket handles GET /api/v1/chains/{chainId}/markets/{marketId}
func (h *ChainHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	chain, ok := h.chain(w, r)
	if !ok {
		return
	}

	raw := chi.URLParam(r, "marketId")
	if !isValidMarketID(raw) {
		h.respondError(w, http.StatusBadRequest, "Invalid market id format")
		return
	}
	id := common.HexToHash(raw)

	market, ok := chain.Market(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "market not found")
		return
	}

	h.respondJSON(w, http.StatusOK, toMarketResponse(id, market))
}

func (h *ChainHandler) chain(w http.ResponseWriter, r *http.Request) (ChainView, bool) {
	raw := chi.URLParam(r, "chainId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid chain id")
		return nil, false
	}

	chain, ok := h.chains[id]
	if !ok {
		h.logger.Debug("Unknown chain requested", zap.Int64("chain_id", id))
		h.respondError(w, http.StatusNotFound, "chain not found")
		return nil, false
	}
	return chain, true
}

func toMarketResponse(id common.Hash, m *entities.MarketState) MarketResponse {
	resp := MarketResponse{
		ID:                id.Hex(),
		LoanToken:         m.Params.LoanToken.Hex(),
		CollateralToken:   m.Params.CollateralToken.Hex(),
		Oracle:            m.Params.Oracle.Hex(),
		Irm:               m.Params.Irm.Hex(),
		Lltv:              bigString(m.Params.Lltv),
		TotalSupplyAssets: bigString(m.TotalSupplyAssets),
		TotalSupplyShares: bigString(m.TotalSupplyShares),
		TotalBorrowAssets: bigString(m.TotalBorrowAssets),
		TotalBorrowShares: bigString(m.TotalBorrowShares),
		LastUpdate:        bigString(m.LastUpdate),
		Fee:               bigString(m.Fee),
	}
	if m.RateAtTarget != nil {
		rate := m.RateAtTarget.String()
		resp.RateAtTarget = &rate
	}
	return resp
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (h *ChainHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *ChainHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func isValidMarketID(id string) bool {
	if len(id) != 66 || !strings.HasPrefix(id, "0x") {
		return false
	}
	for _, c := range id[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
