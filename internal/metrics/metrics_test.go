package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.GetGauge().GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	// Vectors only show up in Gather once a label set exists
	m.MutationsTotal.WithLabelValues("users", "create")
	m.CollectionRows.WithLabelValues("users")

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"rbacdash_mutations_total",
		"rbacdash_collection_rows",
		"rbacdash_uptime_seconds",
		"rbacdash_goroutines",
		"rbacdash_storage_used_bytes",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}

	SetGlobal(nil)
}

func TestIncMutations(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncMutations("roles", "create")
	IncMutations("roles", "create")
	IncMutations("roles", "delete")

	if got := counterValue(t, m.MutationsTotal.WithLabelValues("roles", "create")); got != 2 {
		t.Errorf("create count = %v, want 2", got)
	}
	if got := counterValue(t, m.MutationsTotal.WithLabelValues("roles", "delete")); got != 1 {
		t.Errorf("delete count = %v, want 1", got)
	}
}

func TestSetCollectionSize(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetCollectionSize("permissions", 3, 7)
	SetCollectionSize("permissions", 4, 8)

	if got := gaugeValue(t, m.CollectionRows.WithLabelValues("permissions")); got != 4 {
		t.Errorf("rows = %v, want 4", got)
	}
	if got := gaugeValue(t, m.ActivityEntries.WithLabelValues("permissions")); got != 8 {
		t.Errorf("activity = %v, want 8", got)
	}
}

func TestOutcomeCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncExports("users")
	IncBootstrap("failed")
	IncLogins("ok")
	IncLogins("failed")
	IncLogins("failed")

	tests := []struct {
		name    string
		counter prometheus.Counter
		want    float64
	}{
		{"exports", m.ExportsTotal.WithLabelValues("users"), 1},
		{"bootstrap failed", m.BootstrapTotal.WithLabelValues("failed"), 1},
		{"bootstrap ok", m.BootstrapTotal.WithLabelValues("ok"), 0},
		{"logins ok", m.LoginsTotal.WithLabelValues("ok"), 1},
		{"logins failed", m.LoginsTotal.WithLabelValues("failed"), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, tt.counter); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHelpersWithoutGlobal(t *testing.T) {
	SetGlobal(nil)

	// Must not panic
	IncMutations("users", "create")
	IncExports("users")
	IncBootstrap("ok")
	IncLogins("ok")
	SetCollectionSize("users", 1, 1)
}
