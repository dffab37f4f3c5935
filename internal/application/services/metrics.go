package services

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lastSyncedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liquidator_indexer_last_synced_block",
			Help: "Last block applied to the indexed state",
		},
		[]string{"chain"},
	)

	chunkRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_indexer_chunk_retries_total",
			Help: "Total number of failed chunk sync attempts",
		},
		[]string{"chain"},
	)

	chunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liquidator_indexer_chunk_duration_seconds",
			Help:    "Time taken to sync and persist one chunk",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"chain"},
	)

	liquidationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_liquidation_attempts_total",
			Help: "Liquidation attempts by kind and outcome",
		},
		[]string{"chain", "kind", "outcome"},
	)

	candidatesFound = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liquidator_candidates",
			Help: "Positions found liquidatable in the last cycle",
		},
		[]string{"chain", "kind"},
	)
)

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}
