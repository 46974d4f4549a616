package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor tracks the health of named components. A component either pushes
// its status with Update or registers a provider that is evaluated on read.
type Monitor struct {
	mu        sync.RWMutex
	statuses  map[string]Status
	providers map[string]func() Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses:  make(map[string]Status),
		providers: make(map[string]func() Status),
	}
}

// Register installs a provider for name, replacing any pushed status
func (m *Monitor) Register(name string, provider func() Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	m.providers[name] = provider
}

// Update records the health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	delete(m.providers, name)
	m.statuses[name] = status
}

// UpdateHealthy marks a component healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy marks a component unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded marks a component degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	provider, hasProvider := m.providers[name]
	status, exists := m.statuses[name]
	m.mu.RUnlock()

	if hasProvider {
		return m.evaluate(name, provider), true
	}
	return status, exists
}

// Remove stops tracking a component
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	delete(m.providers, name)
}

// AggregateHealth evaluates all components and aggregates them under systemName.
// Sub-statuses are ordered by component name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses)+len(m.providers))
	for _, status := range m.statuses {
		subs = append(subs, status)
	}
	providers := make(map[string]func() Status, len(m.providers))
	for name, p := range m.providers {
		providers[name] = p
	}
	m.mu.RUnlock()

	// Providers run without the lock held
	for name, p := range providers {
		subs = append(subs, m.evaluate(name, p))
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].Component < subs[j].Component })
	return Aggregate(systemName, subs)
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses) + len(m.providers)
}

func (m *Monitor) evaluate(name string, provider func() Status) Status {
	status := provider()
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	return status
}
