package natsclient

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestNewClient_OptionValidation(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithName(""))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithTimeout(-time.Second))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithCircuitBreaker(0, time.Minute))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithLogger(nil))
	assert.Error(t, err)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithCircuitBreaker(3, time.Minute))
	require.NoError(t, err)

	c.recordFailure()
	c.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())
	// Backoff doubled for the next round.
	assert.Equal(t, 2*time.Second, c.Backoff())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithCircuitBreaker(1, time.Minute))
	require.NoError(t, err)

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())

	c.resetCircuit()
	assert.Equal(t, time.Second, c.Backoff())
	assert.Zero(t, c.Failures())
}

func TestPublish_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Error(t, c.Publish("hsp.knowledge.facts.all", []byte("{}")))

	_, err = c.Subscribe("hsp.>", func(_ *nats.Msg) {})
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Error(t, c.Connect(t.Context()), "closed client cannot reconnect")
}
