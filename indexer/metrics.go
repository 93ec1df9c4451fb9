package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FrontierBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "token",
		Name:      "frontier_block",
		Help:      "Shows the latest frontier block observed for the particular token.",
	}, []string{"chain_id", "token"})
	IndexedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "token",
		Name:      "indexed_block",
		Help:      "Shows the checkpoint of the particular token. Transfers up to this block are already saved to the DB.",
	}, []string{"chain_id", "token"})
	SyncedToken = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "token",
		Name:      "synced",
		Help:      "Shows 1 if the token backfill is finished and live tail is active.",
	}, []string{"chain_id", "token"})
	TailStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "token",
		Name:      "tail_state",
		Help:      "Shows the live tail state of the particular token: 0 - attaching, 1 - active, 2 - detached.",
	}, []string{"chain_id", "token"})
	InsertedTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "token",
		Name:      "inserted_transfers_total",
	}, []string{"chain_id", "token"})
	DuplicateTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "token",
		Name:      "duplicate_transfers_total",
		Help:      "Counts transfers skipped because they were already stored.",
	}, []string{"chain_id", "token"})
	FailedTokens = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "token",
		Name:      "failed",
		Help:      "Shows 1 if the token indexing stopped with a fatal error.",
	}, []string{"chain_id", "token"})
	OrchestratorState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Name:      "state",
		Help:      "Shows the indexer state: 0 - stopped, 1 - starting, 2 - running, 3 - stopping.",
	})
)
