package authcore

import (
	"sync"
	"testing"
)

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(true)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricLoginSuccess, 1)
			}
		}()
	}
	wg.Wait()
	if got := m.Snapshot()[MetricLoginSuccess]; got != 8000 {
		t.Fatalf("counter = %d, want 8000", got)
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(false)
	m.Inc(MetricLoginSuccess, 5)
	if len(m.Snapshot()) != 0 {
		t.Fatal("disabled metrics returned counters")
	}
}

func TestMetricNamesAreUnique(t *testing.T) {
	seen := make(map[string]MetricID)
	for id := MetricID(0); id < metricCount; id++ {
		name := id.Name()
		if name == "" || name == "unknown" {
			t.Fatalf("metric %d has no name", id)
		}
		if prev, dup := seen[name]; dup {
			t.Fatalf("metrics %d and %d share name %q", prev, id, name)
		}
		seen[name] = id
	}
}
