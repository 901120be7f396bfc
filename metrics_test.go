package prism

import (
	"testing"
	"time"
)

func TestMetricsStats(t *testing.T) {
	m := NewPerformanceMetrics()
	for _, d := range []time.Duration{10, 20, 30, 40} {
		m.Record("routing", d*time.Millisecond)
	}

	stats, ok := m.Stats("routing")
	if !ok {
		t.Fatal("Stats returned false for recorded phase")
	}
	if stats.Count != 4 {
		t.Errorf("Count = %d, want 4", stats.Count)
	}
	if stats.Min != 10*time.Millisecond {
		t.Errorf("Min = %v, want 10ms", stats.Min)
	}
	if stats.Max != 40*time.Millisecond {
		t.Errorf("Max = %v, want 40ms", stats.Max)
	}
	if stats.Avg != 25*time.Millisecond {
		t.Errorf("Avg = %v, want 25ms", stats.Avg)
	}
	if stats.P50 != 20*time.Millisecond {
		t.Errorf("P50 = %v, want 20ms", stats.P50)
	}
}

func TestMetricsUnknownPhase(t *testing.T) {
	m := NewPerformanceMetrics()
	if _, ok := m.Stats("nope"); ok {
		t.Error("Stats should report false for an unknown phase")
	}
}

func TestMetricsWindowEvictsOldest(t *testing.T) {
	m := NewPerformanceMetrics()
	for i := 1; i <= 150; i++ {
		m.Record("execution", time.Duration(i)*time.Millisecond)
	}

	stats, ok := m.Stats("execution")
	if !ok {
		t.Fatal("Stats returned false")
	}
	if stats.Count != 100 {
		t.Errorf("Count = %d, want window of 100", stats.Count)
	}
	// Samples 1..50 were overwritten; the window holds 51..150.
	if stats.Min != 51*time.Millisecond {
		t.Errorf("Min = %v, want 51ms", stats.Min)
	}
	if stats.Max != 150*time.Millisecond {
		t.Errorf("Max = %v, want 150ms", stats.Max)
	}
	if stats.P95 != 145*time.Millisecond {
		t.Errorf("P95 = %v, want 145ms", stats.P95)
	}
}

func TestMetricsPhasesSorted(t *testing.T) {
	m := NewPerformanceMetrics()
	m.Record("synthesis", time.Millisecond)
	m.Record("routing", time.Millisecond)
	m.Record("execution", time.Millisecond)

	got := m.Phases()
	want := []string{"execution", "routing", "synthesis"}
	if len(got) != len(want) {
		t.Fatalf("Phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Phases[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []time.Duration{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	cases := []struct {
		p    float64
		want time.Duration
	}{
		{0.50, 50},
		{0.95, 100},
		{0.99, 100},
	}
	for _, tc := range cases {
		if got := percentile(sorted, tc.p); got != tc.want {
			t.Errorf("percentile(%g) = %d, want %d", tc.p, got, tc.want)
		}
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("percentile(nil) = %d, want 0", got)
	}
}
