package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Issuance
	IssuanceAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "issuance",
		Name:      "attempts_total",
		Help:      "Total issuance attempts, including hash-collision retries",
	})

	IssuanceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "issuance",
		Name:      "errors_total",
		Help:      "Total failed issuances",
	}, []string{"reason"})

	IssuanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vicledger",
		Subsystem: "issuance",
		Name:      "duration_seconds",
		Help:      "End-to-end issuance duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	BlocksAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "ledger",
		Name:      "blocks_appended_total",
		Help:      "Total blocks appended to the chain",
	})

	// Sharing
	ShareCreationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "sharing",
		Name:      "creations_total",
		Help:      "Total share grants created",
	})

	ShareResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "sharing",
		Name:      "resolutions_total",
		Help:      "Total share resolutions by outcome",
	}, []string{"outcome"})

	ShareRevocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "sharing",
		Name:      "revocations_total",
		Help:      "Total share revocations",
	})

	AccessLogsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "sharing",
		Name:      "access_logs_written_total",
		Help:      "Total access log entries written",
	})

	// Verification
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "verify",
		Name:      "lookups_total",
		Help:      "Total credential verifications by result",
	}, []string{"result"})

	CredentialCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vicledger",
		Subsystem: "verify",
		Name:      "cache_hits_total",
		Help:      "Credential lookups served from the read-through cache",
	})

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vicledger",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route and status",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route", "status"})
)
