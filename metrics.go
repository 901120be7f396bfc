package prism

import (
	"math"
	"sort"
	"sync"
	"time"
)

// metricsWindow is the number of recent samples retained per phase.
const metricsWindow = 100

// PerformanceMetrics keeps a bounded ring of recent durations per pipeline
// phase and computes summary statistics on demand. Phases are created lazily
// on first Record. Thread-safe.
type PerformanceMetrics struct {
	mu     sync.Mutex
	window int
	phases map[string]*durationRing
}

type durationRing struct {
	samples []time.Duration
	next    int
	full    bool
}

func (r *durationRing) add(d time.Duration) {
	if len(r.samples) < cap(r.samples) && !r.full {
		r.samples = append(r.samples, d)
		if len(r.samples) == cap(r.samples) {
			r.full = true
			r.next = 0
		}
		return
	}
	r.samples[r.next] = d
	r.next = (r.next + 1) % len(r.samples)
}

// PhaseStats summarizes the current ring contents for one phase.
type PhaseStats struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// NewPerformanceMetrics creates a recorder holding the last 100 samples per
// phase.
func NewPerformanceMetrics() *PerformanceMetrics {
	return &PerformanceMetrics{
		window: metricsWindow,
		phases: make(map[string]*durationRing),
	}
}

// Record appends a duration sample for phase, evicting the oldest sample
// once the window is full.
func (m *PerformanceMetrics) Record(phase string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.phases[phase]
	if !ok {
		ring = &durationRing{samples: make([]time.Duration, 0, m.window)}
		m.phases[phase] = ring
	}
	ring.add(d)
}

// Stats computes count/min/max/avg/p50/p95/p99 over the phase's current
// samples, sorting at query time. Returns false for an unknown phase.
func (m *PerformanceMetrics) Stats(phase string) (PhaseStats, bool) {
	m.mu.Lock()
	ring, ok := m.phases[phase]
	if !ok || len(ring.samples) == 0 {
		m.mu.Unlock()
		return PhaseStats{}, false
	}
	sorted := append([]time.Duration(nil), ring.samples...)
	m.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	n := len(sorted)
	return PhaseStats{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   total / time.Duration(n),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}, true
}

// Phases returns the phase names seen so far, sorted.
func (m *PerformanceMetrics) Phases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.phases))
	for name := range m.phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reset drops all recorded samples. Test helper, reached via ResetShared.
func (m *PerformanceMetrics) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = make(map[string]*durationRing)
}

// percentile returns the nearest-rank percentile of a sorted sample set.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
