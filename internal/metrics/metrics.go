package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	RunResultOK           = "ok"
	RunResultFailed       = "failed"
	RunResultCoalesced    = "coalesced"
	RunResultNoCredential = "no_credential"

	ActionResultSucceeded = "succeeded"
	ActionResultRetried   = "retried"
	ActionResultFailed    = "failed"
)

var SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "satchel_sync_runs_total",
	Help: "Sync runs by result.",
}, []string{"result"})

var ActionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "satchel_actions_processed_total",
	Help: "Action dispatch outcomes by action type.",
}, []string{"type", "result"})

var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "satchel_queue_pending_actions",
	Help: "Pending actions at the end of the last sync run.",
})

var ActionsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "satchel_actions_enqueued_total",
	Help: "Actions accepted into the queue by action type.",
}, []string{"type"})
