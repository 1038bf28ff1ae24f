package observability

import (
	"fmt"
	"sync"
	"time"
)

// MockMetricsRegistry records counter increments so tests can assert on them.
// Keys are "metric:label1:label2".
type MockMetricsRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMockMetricsRegistry returns an empty recording registry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{counts: make(map[string]int)}
}

// Count returns how many times the keyed counter was incremented.
func (m *MockMetricsRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *MockMetricsRegistry) add(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[key] += n
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.add("requests:"+endpoint+":"+method+":"+status, 1)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementProvisionRuns(outcome string) {
	m.add("runs:"+outcome, 1)
}
func (m *MockMetricsRegistry) RecordPhaseDuration(phase string, duration time.Duration) {}
func (m *MockMetricsRegistry) AddPlacementsResolved(size string, count int) {
	m.add("placements:"+size, count)
}
func (m *MockMetricsRegistry) IncrementTemplateDecisions(templateID, rule string) {
	m.add("templates:"+templateID+":"+rule, 1)
}
func (m *MockMetricsRegistry) IncrementNamingAttempts(attempt int, outcome string) {
	m.add(fmt.Sprintf("naming:%d:%s", attempt, outcome), 1)
}
func (m *MockMetricsRegistry) IncrementCreativeOutcomes(size, outcome string) {
	m.add("creatives:"+size+":"+outcome, 1)
}
func (m *MockMetricsRegistry) IncrementAdServerRequests(operation, outcome string) {
	m.add("adserver:"+operation+":"+outcome, 1)
}
func (m *MockMetricsRegistry) RecordAdServerLatency(operation string, duration time.Duration) {}
func (m *MockMetricsRegistry) RecordRateLimitWait(duration time.Duration)                     {}
func (m *MockMetricsRegistry) IncrementTelemetryDropped(sink string) {
	m.add("telemetry_dropped:"+sink, 1)
}
