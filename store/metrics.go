package store

import "github.com/prometheus/client_golang/prometheus"

var (
	StoreCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "joy",
		Subsystem: "store",
		Name:      "commits_total",
		Help:      "Patches appended to document logs",
	})
	StoreCompactions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "joy",
		Subsystem: "store",
		Name:      "compactions_total",
		Help:      "Logs folded into snapshots",
	})
	StoreLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "joy",
		Subsystem: "store",
		Name:      "loads_total",
		Help:      "Document loads by source",
	}, []string{"source"})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{StoreCommits, StoreCompactions, StoreLoads}
}
