package stats

import "sync"

// MockStats is a StatsProvider for tests; it records counter values
// in memory instead of publishing expvars.
type MockStats struct {
	mu     sync.Mutex
	Counts map[string]int
}

func NewMockStats() *MockStats {
	return &MockStats{Counts: make(map[string]int)}
}

func (m *MockStats) Incr(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counts[name]++
}

func (m *MockStats) Decr(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counts[name]--
}

func (m *MockStats) RegisterMetric(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Counts[name]; !ok {
		m.Counts[name] = 0
	}
}

func (m *MockStats) Run() {}

// Count returns the current value for name.
func (m *MockStats) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[name]
}
