package refmap

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestNoopMetricsDoesNothing(t *testing.T) {
	var s metricsSink = noopMetrics{}
	s.incInsert()
	s.incDuplicateRejected()
	s.incClone()
	s.incRemove()
	s.setLiveEntries(5)
}

func TestPromMetricsCountOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := newPromMetrics(reg)

	pm.incInsert()
	pm.incInsert()
	pm.incDuplicateRejected()
	pm.incClone()
	pm.incRemove()
	pm.setLiveEntries(3)

	if v := counterValue(t, pm.inserts); v != 2 {
		t.Fatalf("inserts = %v, want 2", v)
	}
	if v := counterValue(t, pm.duplicatesRejected); v != 1 {
		t.Fatalf("duplicatesRejected = %v, want 1", v)
	}
	if v := counterValue(t, pm.clones); v != 1 {
		t.Fatalf("clones = %v, want 1", v)
	}
	if v := counterValue(t, pm.removes); v != 1 {
		t.Fatalf("removes = %v, want 1", v)
	}
	if v := gaugeValue(t, pm.liveEntries); v != 3 {
		t.Fatalf("liveEntries = %v, want 3", v)
	}
}

func TestMapWithMetricsOption(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New[string, int](WithMetrics[string, int](reg))

	r1, err := m.Insert("a", 1)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := m.Insert("a", 2); err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	r2 := r1.Clone()
	r1.Release()
	r2.Release()

	pm, ok := m.c.metrics.(*promMetrics)
	if !ok {
		t.Fatalf("expected *promMetrics, got %T", m.c.metrics)
	}
	if v := counterValue(t, pm.inserts); v != 1 {
		t.Fatalf("inserts = %v, want 1", v)
	}
	if v := counterValue(t, pm.duplicatesRejected); v != 1 {
		t.Fatalf("duplicatesRejected = %v, want 1", v)
	}
	if v := counterValue(t, pm.clones); v != 1 {
		t.Fatalf("clones = %v, want 1", v)
	}
	if v := counterValue(t, pm.removes); v != 1 {
		t.Fatalf("removes = %v, want 1", v)
	}
	if v := gaugeValue(t, pm.liveEntries); v != 0 {
		t.Fatalf("liveEntries = %v, want 0", v)
	}
}
