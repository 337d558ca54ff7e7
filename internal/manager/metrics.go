package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "infera",
		Subsystem: "manager",
		Name:      "loads_total",
		Help:      "Model loads by result",
	}, []string{"result"})

	unloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "infera",
		Subsystem: "manager",
		Name:      "unloads_total",
		Help:      "Model unloads",
	})

	predictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "infera",
		Subsystem: "manager",
		Name:      "predictions_total",
		Help:      "Predictions by status (ok or error kind)",
	}, []string{"status"})

	predictDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "infera",
		Subsystem: "manager",
		Name:      "predict_duration_seconds",
		Help:      "Forward pass latency",
		Buckets:   prometheus.DefBuckets,
	})

	loadedModels = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "infera",
		Subsystem: "manager",
		Name:      "loaded_models",
		Help:      "Models currently bound in the registry",
	})
)

func init() {
	prometheus.MustRegister(loadsTotal, unloadsTotal, predictionsTotal, predictDuration, loadedModels)
}
