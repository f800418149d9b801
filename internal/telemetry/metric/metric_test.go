package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewStorageRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorage(reg, "main")

	m.Elements.Set(2)
	m.Memory.Set(128)
	m.Hits.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 6 {
		t.Fatalf("gathered %d metric families, want 6", len(families))
	}
	for _, f := range families {
		for _, sample := range f.GetMetric() {
			for _, l := range sample.GetLabel() {
				if l.GetName() == "storage" && l.GetValue() != "main" {
					t.Fatalf("storage label = %q, want main", l.GetValue())
				}
			}
		}
	}
}

func TestNewBackendRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBackend(reg, "main")

	m.QueueDepth.Inc()
	m.Flushed.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 3 {
		t.Fatalf("gathered %d metric families, want 3", len(families))
	}
}

func TestDistinctStoragesShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewStorage(reg, "a")
	NewStorage(reg, "b")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 6 {
		t.Fatalf("gathered %d families, want 6 shared between labels", len(families))
	}
}
