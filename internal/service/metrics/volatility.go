package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	VolatilityLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finexec",
			Subsystem: "volatility",
			Name:      "latency_seconds",
			Help:      "Latency of volatility estimates by source",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	VolatilityErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finexec",
			Subsystem: "volatility",
			Name:      "errors_total",
			Help:      "Failed volatility estimates by source",
		},
		[]string{"source"},
	)

	VolatilityCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "finexec",
			Subsystem: "volatility",
			Name:      "cache_hits_total",
			Help:      "Volatility estimates served from cache",
		},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(VolatilityLatency, VolatilityErrors, VolatilityCacheHits)
	})
}
