package observability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryMetrics is a MetricsClient that aggregates in process memory.
// The management API serves its Snapshot as JSON; external telemetry sinks
// are deliberately not wired here.
type InMemoryMetrics struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryMetrics creates an empty in-memory metrics client.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, labels[k]))
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// RecordCounter adds value to the named counter.
func (m *InMemoryMetrics) RecordCounter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metricKey(name, labels)] += value
}

// RecordGauge sets the named gauge.
func (m *InMemoryMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metricKey(name, labels)] = value
}

// RecordHistogram appends an observation to the named histogram.
func (m *InMemoryMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := metricKey(name, labels)
	m.histograms[key] = append(m.histograms[key], value)
}

// RecordLatency records an operation latency in milliseconds.
func (m *InMemoryMetrics) RecordLatency(operation string, duration time.Duration) {
	m.RecordHistogram(operation+"_latency_ms", float64(duration.Milliseconds()), nil)
}

// IncrementCounter adds value to an unlabeled counter.
func (m *InMemoryMetrics) IncrementCounter(name string, value float64) {
	m.RecordCounter(name, value, nil)
}

// StartTimer returns a func that records the elapsed time when called.
func (m *InMemoryMetrics) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		m.RecordHistogram(name, float64(time.Since(start).Milliseconds()), labels)
	}
}

// Close releases nothing; present to satisfy MetricsClient.
func (m *InMemoryMetrics) Close() error { return nil }

// MetricsSnapshot is a point-in-time copy of all recorded metrics.
type MetricsSnapshot struct {
	Counters   map[string]float64 `json:"counters"`
	Gauges     map[string]float64 `json:"gauges"`
	Histograms map[string]HistogramSummary `json:"histograms"`
}

// HistogramSummary condenses a histogram series.
type HistogramSummary struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// Snapshot copies the current metric state.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := MetricsSnapshot{
		Counters:   make(map[string]float64, len(m.counters)),
		Gauges:     make(map[string]float64, len(m.gauges)),
		Histograms: make(map[string]HistogramSummary, len(m.histograms)),
	}
	for k, v := range m.counters {
		snap.Counters[k] = v
	}
	for k, v := range m.gauges {
		snap.Gauges[k] = v
	}
	for k, series := range m.histograms {
		if len(series) == 0 {
			continue
		}
		s := HistogramSummary{Count: len(series), Min: series[0], Max: series[0]}
		for _, v := range series {
			s.Sum += v
			if v < s.Min {
				s.Min = v
			}
			if v > s.Max {
				s.Max = v
			}
		}
		s.Avg = s.Sum / float64(s.Count)
		snap.Histograms[k] = s
	}
	return snap
}
