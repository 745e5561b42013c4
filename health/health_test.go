package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SetAndGet(t *testing.T) {
	m := NewMonitor()

	_, ok := m.Get("broker")
	assert.False(t, ok)

	m.Set("broker", StateHealthy, "connected")
	s, ok := m.Get("broker")
	require.True(t, ok)
	assert.Equal(t, StateHealthy, s.State)
	assert.Equal(t, "connected", s.Message)
	assert.False(t, s.Timestamp.IsZero())
}

func TestMonitor_Overall(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, StateHealthy, m.Overall(), "empty monitor is healthy")

	m.Set("broker", StateHealthy, "")
	m.Set("memory", StateHealthy, "")
	assert.Equal(t, StateHealthy, m.Overall())

	m.Set("memory", StateDegraded, "slow queries")
	assert.Equal(t, StateDegraded, m.Overall())

	m.Set("broker", StateUnhealthy, "disconnected")
	assert.Equal(t, StateUnhealthy, m.Overall(), "worst state wins")
}

func TestHandler(t *testing.T) {
	m := NewMonitor()
	m.Set("broker", StateHealthy, "connected")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)

	var body struct {
		State      State             `json:"state"`
		Components map[string]Status `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StateHealthy, body.State)
	assert.Contains(t, body.Components, "broker")

	m.Set("broker", StateUnhealthy, "disconnected")
	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, rec.Code)
}
