package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics records counters and timings.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a key-value pair for metric labeling.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Metric names.
const (
	MetricWebhookEvents   = "saffron.webhook.events"
	MetricWebhookDuration = "saffron.webhook.duration"
	MetricWebhookRejected = "saffron.webhook.rejected"
)

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)         {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps process-local totals that a health endpoint can expose.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	timings  map[string]timingSummary
}

type timingSummary struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total_ns"`
	Max   time.Duration `json:"max_ns"`
}

// NewInMemoryMetrics creates a new in-memory metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		timings:  make(map[string]timingSummary),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[formatKey(name, tags)] += value
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	summary := m.timings[key]
	summary.Count++
	summary.Total += duration
	if duration > summary.Max {
		summary.Max = duration
	}
	m.timings[key] = summary
}

// GetCounter returns the current value of a counter.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// Snapshot copies the current counters and timings.
func (m *InMemoryMetrics) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		counters[k] = v
	}
	timings := make(map[string]timingSummary, len(m.timings))
	for k, v := range m.timings {
		timings[k] = v
	}
	return map[string]any{"counters": counters, "timings": timings}
}

// formatKey sorts tags so the same labels always produce the same key.
func formatKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	for _, t := range sorted {
		b.WriteString(":" + t.Key + "=" + t.Value)
	}
	return b.String()
}
