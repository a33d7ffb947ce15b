package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvpaste_paste_created_total",
		Help: "no. of pastes accepted for upload",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvpaste_paste_retrieved_total",
		Help: "no. of pastes served",
	})
	PasteMissed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvpaste_paste_missed_total",
			Help: "no. of retrievals answered with the not-found placeholder",
		},
		[]string{"reason"},
	)
	SwallowedWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvpaste_swallowed_write_errors_total",
		Help: "no. of uploads answered with a link although the write failed",
	})
	PasteSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kvpaste_paste_size_bytes",
		Help:    "size of uploaded pastes",
		Buckets: prometheus.ExponentialBuckets(64, 4, 7),
	})
	StoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvpaste_store_operations_total",
			Help: "no. of key-value store operations",
		},
		[]string{"backend", "op", "result"},
	)
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvpaste_store_duration_seconds",
			Help:    "store operation latency including connection setup",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvpaste_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvpaste_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kvpaste_recent_error_rate_percent",
		Help: "5min rolling avg error rate percentage",
	})
)
