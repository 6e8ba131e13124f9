package o11y

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryProvider keeps metric values in memory. It backs the CLI's
// end-of-run summary and is convenient in tests.
type MemoryProvider struct {
	mu         sync.Mutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMemoryProvider returns an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *MemoryProvider) Counter(name string) Counter {
	return &memoryCounter{p: m, name: name}
}

func (m *MemoryProvider) Histogram(name string) Histogram {
	return &memoryHistogram{p: m, name: name}
}

func (m *MemoryProvider) Gauge(name string) Gauge {
	return &memoryGauge{p: m, name: name}
}

// CounterValue returns the counter total for name and the given labels.
func (m *MemoryProvider) CounterValue(name string, labels ...Label) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[seriesKey(name, labels)]
}

// GaugeValue returns the last value set for name and the given labels.
func (m *MemoryProvider) GaugeValue(name string, labels ...Label) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[seriesKey(name, labels)]
}

// HistogramValues returns a copy of the recorded observations.
func (m *MemoryProvider) HistogramValues(name string, labels ...Label) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.histograms[seriesKey(name, labels)]...)
}

// Counters returns a snapshot of every counter series.
func (m *MemoryProvider) Counters() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// seriesKey renders name{k=v,...} with labels sorted by key.
func seriesKey(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	sorted := append([]Label(nil), labels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, l := range sorted {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(l.Key)
		sb.WriteByte('=')
		sb.WriteString(l.Value)
	}
	sb.WriteByte('}')
	return sb.String()
}

type memoryCounter struct {
	p    *MemoryProvider
	name string
}

func (c *memoryCounter) Add(_ context.Context, value int64, labels ...Label) {
	c.p.mu.Lock()
	c.p.counters[seriesKey(c.name, labels)] += value
	c.p.mu.Unlock()
}

type memoryGauge struct {
	p    *MemoryProvider
	name string
}

func (g *memoryGauge) Set(_ context.Context, value float64, labels ...Label) {
	g.p.mu.Lock()
	g.p.gauges[seriesKey(g.name, labels)] = value
	g.p.mu.Unlock()
}

type memoryHistogram struct {
	p    *MemoryProvider
	name string
}

func (h *memoryHistogram) Record(_ context.Context, value float64, labels ...Label) {
	h.p.mu.Lock()
	key := seriesKey(h.name, labels)
	h.p.histograms[key] = append(h.p.histograms[key], value)
	h.p.mu.Unlock()
}
