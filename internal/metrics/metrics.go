package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IOCsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inteltool_iocs_collected_total",
		Help: "Total number of IOC records returned by collectors, labelled by feed.",
	}, []string{"feed"})

	IOCsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inteltool_iocs_added_total",
		Help: "Total number of new IOC records appended to the ledger.",
	})

	IOCsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inteltool_iocs_deduplicated_total",
		Help: "Total number of IOC records dropped as ledger duplicates.",
	})

	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inteltool_fetch_retries_total",
		Help: "Total number of HTTP fetch attempts retried after a rate limit or transport error.",
	})

	FeedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inteltool_feed_errors_total",
		Help: "Total number of failed feed collections, labelled by feed and reason.",
	}, []string{"feed", "reason"})

	FeedsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inteltool_feeds_skipped_total",
		Help: "Total number of feeds skipped for a missing credential.",
	}, []string{"feed"})

	RunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inteltool_runs_completed_total",
		Help: "Total number of collection runs that finished.",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inteltool_run_duration_seconds",
		Help:    "End-to-end collection run duration in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inteltool_ledger_records",
		Help: "Number of records currently in the ledger.",
	})
)
