package refmap

// metrics.go is a thin Prometheus abstraction mirroring the teacher's
// pkg/metrics.go: a metricsSink interface with a no-op implementation used
// by default, and a Prometheus-backed implementation activated by
// WithMetrics. There is no sharding here (the map is single-threaded), so
// metrics carry no "shard" label, unlike the teacher's.
//
// © 2025 refmap authors. MIT License.

import "github.com/prometheus/client_golang/prometheus"

// metricsSink abstracts the concrete metrics backend away from Map.
type metricsSink interface {
	incInsert()
	incDuplicateRejected()
	incClone()
	incRemove()
	setLiveEntries(n int)
}

type noopMetrics struct{}

func (noopMetrics) incInsert()             {}
func (noopMetrics) incDuplicateRejected()  {}
func (noopMetrics) incClone()              {}
func (noopMetrics) incRemove()             {}
func (noopMetrics) setLiveEntries(int)     {}

type promMetrics struct {
	inserts             prometheus.Counter
	duplicatesRejected  prometheus.Counter
	clones              prometheus.Counter
	removes             prometheus.Counter
	liveEntries         prometheus.Gauge
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refmap",
			Name:      "inserts_total",
			Help:      "Number of successful Insert calls.",
		}),
		duplicatesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refmap",
			Name:      "duplicate_inserts_total",
			Help:      "Number of Insert calls rejected as duplicate keys.",
		}),
		clones: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refmap",
			Name:      "ref_clones_total",
			Help:      "Number of Ref.Clone calls.",
		}),
		removes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refmap",
			Name:      "entries_removed_total",
			Help:      "Number of entries physically removed after their last Ref was released.",
		}),
		liveEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "refmap",
			Name:      "live_entries",
			Help:      "Current number of live entries.",
		}),
	}
	reg.MustRegister(pm.inserts, pm.duplicatesRejected, pm.clones, pm.removes, pm.liveEntries)
	return pm
}

func (m *promMetrics) incInsert()            { m.inserts.Inc() }
func (m *promMetrics) incDuplicateRejected() { m.duplicatesRejected.Inc() }
func (m *promMetrics) incClone()             { m.clones.Inc() }
func (m *promMetrics) incRemove()            { m.removes.Inc() }
func (m *promMetrics) setLiveEntries(n int)  { m.liveEntries.Set(float64(n)) }

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
