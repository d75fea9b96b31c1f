package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus series exposed on the metrics HTTP
// surface, grouped the way the smtp-server queue manager groups its
// package-level promauto vars.
var (
	IntentsScheduledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_intents_scheduled_total",
		Help: "Total scheduled intents produced by the scheduling engine",
	}, []string{"kind"})

	IntentsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_intents_skipped_total",
		Help: "Total skipped intents produced by the scheduling engine",
	}, []string{"kind", "reason"})

	ChunkClaimedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_chunk_claimed_total",
		Help: "Total tracking rows claimed from pending",
	}, []string{"batch_id"})

	SendOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_send_outcome_total",
		Help: "Total send attempts by resulting status",
	}, []string{"status"})

	SendDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_send_duration_seconds",
		Help:    "Latency of a single mail gateway send call",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	BatchPendingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_batch_pending",
		Help: "Rows still pending or processing in a batch",
	}, []string{"batch_id"})
)
