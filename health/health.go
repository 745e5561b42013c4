// Package health tracks per-component health for the node and
// aggregates it into a single liveness verdict served over HTTP.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// State is a component's health classification.
type State string

// Possible states, ordered from best to worst.
const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// Status is one component's health at a point in time.
type Status struct {
	Component string    `json:"component"`
	State     State     `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Monitor tracks the health of named components.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Set records a component's state.
func (m *Monitor) Set(component string, state State, message string) {
	m.mu.Lock()
	m.statuses[component] = Status{
		Component: component,
		State:     state,
		Message:   message,
		Timestamp: time.Now(),
	}
	m.mu.Unlock()
}

// Get returns a component's last recorded status.
func (m *Monitor) Get(component string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[component]
	return s, ok
}

// All returns a copy of every recorded status.
func (m *Monitor) All() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.statuses))
	for name, s := range m.statuses {
		out[name] = s
	}
	return out
}

// Overall reduces component states to the worst one present. An empty
// monitor is healthy.
func (m *Monitor) Overall() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overall := StateHealthy
	for _, s := range m.statuses {
		switch s.State {
		case StateUnhealthy:
			return StateUnhealthy
		case StateDegraded:
			overall = StateDegraded
		}
	}
	return overall
}

// Handler serves the monitor as JSON. Unhealthy aggregates report 503
// so orchestrators can act on the status code alone.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		overall := m.Overall()

		w.Header().Set("Content-Type", "application/json")
		if overall == StateUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(struct {
			State      State             `json:"state"`
			Components map[string]Status `json:"components"`
		}{
			State:      overall,
			Components: m.All(),
		})
	})
}
