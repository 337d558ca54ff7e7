package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "infera",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Fetches served from the local cache",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "infera",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Fetches that required a download",
	})

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "infera",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Cached files removed to stay under the size limit",
	})

	cacheDownloadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "infera",
		Subsystem: "cache",
		Name:      "download_bytes_total",
		Help:      "Bytes downloaded into the cache",
	})

	cacheDownloadErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "infera",
		Subsystem: "cache",
		Name:      "download_errors_total",
		Help:      "Failed download attempts",
	}, []string{"reason"})

	cacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "infera",
		Subsystem: "cache",
		Name:      "size_bytes",
		Help:      "Total bytes currently held in the cache",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheEvictions, cacheDownloadBytes, cacheDownloadErrors, cacheSizeBytes)
}
