package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_refreshes_total",
		Help: "Total number of snapshot refreshes by role and trigger",
	}, []string{"role", "trigger"})

	SnapshotRefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapshot_refresh_duration_seconds",
		Help:    "Latency of a full snapshot refresh",
		Buckets: prometheus.DefBuckets,
	}, []string{"role"})

	SnapshotItemsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_items_skipped_total",
		Help: "Per-item read failures skipped during a batch refresh",
	}, []string{"role"})

	StaleRefreshOverwrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stale_refresh_overwrites_total",
		Help: "Completed refreshes that overwrote a newer snapshot",
	}, []string{"role"})

	TxSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tx_submitted_total",
		Help: "Total number of ledger transactions submitted by action",
	}, []string{"action"})

	TxConfirmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tx_confirmed_total",
		Help: "Total number of confirmed ledger transactions by action",
	}, []string{"action"})

	TxFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tx_failed_total",
		Help: "Total number of failed ledger transactions by action and reason",
	}, []string{"action", "reason"})

	TxConfirmationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tx_confirmation_latency_seconds",
		Help:    "Time from submission to confirmation",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	ChainEventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_events_received_total",
		Help: "Total number of decoded contract events received",
	})

	ChainSubscriptionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_subscription_errors_total",
		Help: "Total number of log subscription failures",
	})

	ChainReadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_read_failures_total",
		Help: "Total number of failed contract read calls by method",
	}, []string{"method"})

	TelemetryPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_polls_total",
		Help: "Total number of telemetry feed polls by result",
	}, []string{"result"})

	TransitionsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transitions_published_total",
		Help: "Total number of item transition events published to the broker",
	})

	TransitionsAuditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transitions_audited_total",
		Help: "Total number of item transition events persisted by the audit worker",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
