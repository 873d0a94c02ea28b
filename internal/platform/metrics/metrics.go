package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RegistrationsTotal  *prometheus.CounterVec
	TransfersTotal      *prometheus.CounterVec
	VotesCastTotal      *prometheus.CounterVec
	VoteConflictsTotal  prometheus.Counter
	BlocksAppendedTotal *prometheus.CounterVec
	AppendDuration      prometheus.Histogram
	AuditVerdictsTotal  *prometheus.CounterVec
	FeedDroppedTotal    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RegistrationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voterchain_registrations_total",
			Help: "Voter registrations committed, by state",
		}, []string{"state"}),
		TransfersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voterchain_transfers_total",
			Help: "Completed cross-state transfers, by destination state",
		}, []string{"state"}),
		VotesCastTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voterchain_votes_cast_total",
			Help: "Votes committed to the ledger, by state",
		}, []string{"state"}),
		VoteConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voterchain_vote_conflicts_total",
			Help: "Vote attempts rejected by the nationwide vote lock",
		}),
		BlocksAppendedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voterchain_blocks_appended_total",
			Help: "Blocks appended, by state and event type",
		}, []string{"state", "event_type"}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voterchain_block_append_duration_ms",
			Help:    "Latency of ledger appends in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}),
		AuditVerdictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voterchain_audit_verdicts_total",
			Help: "Integrity audit verdicts, by verdict",
		}, []string{"verdict"}),
		FeedDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voterchain_feed_dropped_total",
			Help: "Oversight feed events dropped because the buffer was full",
		}),
	}
}
