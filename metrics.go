package joy

import "github.com/prometheus/client_golang/prometheus"

var (
	ApplyOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "joy",
		Name:      "apply_ops_total",
		Help:      "Operations applied to models, by opcode",
	}, []string{"op"})
	ApplyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "joy",
		Name:      "apply_failures_total",
		Help:      "Patches rejected by models",
	})
	DiffLayers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "joy",
		Name:      "diff_layer_total",
		Help:      "Diffs by the layer that produced them",
	}, []string{"layer"})
	DiffDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "joy",
		Name:      "diff_duration",
		Help:      "Diff time in microseconds",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
	})
)

// Collectors lists the facade metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{ApplyOps, ApplyFailures, DiffLayers, DiffDuration}
}
