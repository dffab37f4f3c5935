package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bimakw/blue-liquidator/internal/application/services"
)

// HealthChecker defines the interface for health checking components
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusProvider reports the indexer status of one chain
type StatusProvider interface {
	Status() services.IndexerStatus
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db     HealthChecker
	cache  HealthChecker
	chains []StatusProvider
}

// NewHealthHandler creates a new health handler. db and cache are optional.
func NewHealthHandler(db, cache HealthChecker, chains []StatusProvider) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  cache,
		chains: chains,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Chains    map[string]string `json:"chains"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Chains:    make(map[string]string),
	}

	// Checkpoint database
	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			response.Status = "unhealthy"
			response.Services["database"] = "unhealthy: " + err.Error()
		} else {
			response.Services["database"] = "healthy"
		}
	}

	// Cooldown and decimals cache
	if h.cache != nil {
		if err := h.cache.HealthCheck(ctx); err != nil {
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Services["cache"] = "unhealthy: " + err.Error()
		} else {
			response.Services["cache"] = "healthy"
		}
	}

	for _, c := range h.chains {
		st := c.Status()
		response.Chains[strconv.FormatInt(st.ChainID, 10)] = string(st.Phase)
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// Ready handles GET /ready. Every chain must have restored or rebuilt its state.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	for _, c := range h.chains {
		if c.Status().Phase != services.PhaseSteady {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Live handles GET /live (Kubernetes liveness check)
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
