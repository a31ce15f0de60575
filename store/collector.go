package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

// PebbleCollector exports compaction, memtable and WAL metrics of the
// store's database.
type PebbleCollector struct {
	db      *pebble.DB
	metrics []pebbleMetric
}

func NewPebbleCollector(db *pebble.DB) *PebbleCollector {
	pc := &PebbleCollector{db: db}
	counter := func(name, help string, f func(m *pebble.Metrics) float64) {
		pc.add(name, help, prometheus.CounterValue, f)
	}
	gauge := func(name, help string, f func(m *pebble.Metrics) float64) {
		pc.add(name, help, prometheus.GaugeValue, f)
	}

	counter("compaction_count_total", "Compactions performed",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) })
	counter("compaction_default_count_total", "Default compactions performed",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.DefaultCount) })
	counter("compaction_elision_only_total", "Elision-only compactions performed",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.ElisionOnlyCount) })
	counter("compaction_move_total", "Move compactions performed",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.MoveCount) })
	counter("compaction_read_total", "Read compactions performed",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.ReadCount) })
	counter("compaction_rewrite_total", "Rewrite compactions performed",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.RewriteCount) })
	counter("compaction_multilevel_total", "Multi-level compactions performed",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.MultiLevelCount) })
	gauge("compaction_estimated_debt_bytes", "Bytes left to compact to reach a stable state",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) })
	gauge("compaction_in_progress_bytes", "Bytes being compacted",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) })
	gauge("compaction_marked_files", "Files marked for compaction",
		func(m *pebble.Metrics) float64 { return float64(m.Compact.MarkedFiles) })

	gauge("memtable_size_bytes", "Memtable size",
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) })
	gauge("memtable_count", "Memtables",
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) })
	gauge("memtable_zombie_size_bytes", "Zombie memtable size",
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.ZombieSize) })
	gauge("memtable_zombie_count", "Zombie memtables",
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.ZombieCount) })

	gauge("wal_files", "Live WAL files",
		func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) })
	gauge("wal_obsolete_files", "Obsolete WAL files",
		func(m *pebble.Metrics) float64 { return float64(m.WAL.ObsoleteFiles) })
	gauge("wal_size_bytes", "Live WAL data",
		func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) })
	counter("wal_bytes_in_total", "Logical bytes written to the WAL",
		func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesIn) })
	counter("wal_bytes_written_total", "Physical bytes written to the WAL",
		func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) })
	return pc
}

func (pc *PebbleCollector) add(name, help string, kind prometheus.ValueType, f func(m *pebble.Metrics) float64) {
	pc.metrics = append(pc.metrics, pebbleMetric{
		desc:  prometheus.NewDesc(prometheus.BuildFQName("joy", "store_pebble", name), help, nil, nil),
		kind:  kind,
		value: f,
	})
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range pc.metrics {
		ch <- m.desc
	}
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.db.Metrics()
	for _, m := range pc.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(metrics))
	}
}
