package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catcatai/hsp/aligner"
	"github.com/catcatai/hsp/bus"
	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/transport"
)

func newBridge(t *testing.T) (*Bridge, *transport.FakeConnector, *bus.Bus) {
	t.Helper()
	conn := transport.NewFakeConnector()
	require.NoError(t, conn.Connect(context.Background()))
	internalBus := bus.New(nil)

	b, err := New(conn, internalBus, aligner.New(nil), nil)
	require.NoError(t, err)
	return b, conn, internalBus
}

func sealFact(t *testing.T) []byte {
	t.Helper()
	env, err := envelope.Seal(
		&envelope.Fact{ID: "fact-1", StatementNL: "x", ConfidenceScore: 0.8},
		envelope.PatternPublish, "did:hsp:alpha", "all")
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, bus.New(nil), nil, nil)
	assert.Error(t, err)

	_, err = New(transport.NewFakeConnector(), nil, nil, nil)
	assert.Error(t, err)
}

func TestHandleExternalMessage_RoutesFactToTypedChannel(t *testing.T) {
	b, _, internalBus := newBridge(t)

	var got *envelope.Envelope
	internalBus.Subscribe(ExternalChannel(SuffixFact), func(m any) {
		got = m.(*envelope.Envelope)
	})

	b.HandleExternalMessage("hsp/knowledge/facts/all", sealFact(t))

	require.NotNil(t, got)
	assert.Equal(t, envelope.TypeFact, got.MessageType)
}

func TestHandleExternalMessage_MalformedJSONDropped(t *testing.T) {
	b, _, internalBus := newBridge(t)

	var hits int
	internalBus.Subscribe(ExternalChannel(SuffixFact), func(any) { hits++ })

	require.NotPanics(t, func() {
		b.HandleExternalMessage("hsp/knowledge/facts/all", []byte(`{"broken`))
	})
	assert.Zero(t, hits)

	// Subsequent messages still flow.
	b.HandleExternalMessage("hsp/knowledge/facts/all", sealFact(t))
	assert.Equal(t, 1, hits)
}

func TestHandleExternalMessage_AlignmentFailureDropped(t *testing.T) {
	b, _, internalBus := newBridge(t)

	var hits int
	internalBus.Subscribe(ExternalChannel(SuffixFact), func(any) { hits++ })

	// Valid JSON, invalid envelope (no sender).
	env := envelope.New(envelope.TypeFact, envelope.PatternPublish, "", "all", []byte(`{"id":"f1"}`))
	data, err := json.Marshal(env)
	require.NoError(t, err)

	b.HandleExternalMessage("hsp/knowledge/facts/all", data)
	assert.Zero(t, hits)
}

func TestHandleExternalMessage_UnmappedTypeDropped(t *testing.T) {
	b, _, internalBus := newBridge(t)

	var hits int
	for _, suffix := range []string{SuffixFact, SuffixTaskRequest, SuffixTaskResult,
		SuffixCapabilityAdvertisement, SuffixAcknowledgement} {
		internalBus.Subscribe(ExternalChannel(suffix), func(any) { hits++ })
	}

	env := envelope.New("HSP::EnvironmentalState_v0.1", envelope.PatternPublish,
		"did:hsp:alpha", "all", []byte(`{}`))
	data, err := json.Marshal(env)
	require.NoError(t, err)

	b.HandleExternalMessage("hsp/environment/states", data)
	assert.Zero(t, hits, "unknown types align but have no internal channel")
}

func TestHandleInternalMessage_OutboundPath(t *testing.T) {
	_, conn, internalBus := newBridge(t)

	env, err := envelope.Seal(
		&envelope.TaskRequest{RequestID: "req-1"},
		envelope.PatternRequest, "did:hsp:alpha", "did:hsp:beta",
		envelope.WithCorrelationID("corr-1"))
	require.NoError(t, err)

	internalBus.Publish(ChannelInternalOutbound, &OutboundMessage{
		Topic:    "hsp/requests/did:hsp:beta",
		QoS:      transport.QoSAtLeastOnce,
		Envelope: env,
	})

	published := conn.PublishedTo("hsp/requests/did:hsp:beta")
	require.Len(t, published, 1)

	var onWire envelope.Envelope
	require.NoError(t, json.Unmarshal(published[0].Payload, &onWire))
	assert.Equal(t, env.MessageID, onWire.MessageID)
	assert.Equal(t, "corr-1", onWire.CorrelationID)
}

func TestHandleInternalMessage_BadMessageIgnored(t *testing.T) {
	_, conn, internalBus := newBridge(t)

	require.NotPanics(t, func() {
		internalBus.Publish(ChannelInternalOutbound, "not an outbound message")
		internalBus.Publish(ChannelInternalOutbound, &OutboundMessage{Topic: "t"})
	})
	assert.Empty(t, conn.Published())
}

func TestHandleInternalMessage_PublishFailureLoggedNotRaised(t *testing.T) {
	_, conn, internalBus := newBridge(t)
	conn.FailPublish = true

	env, err := envelope.Seal(
		&envelope.Fact{ID: "f1", ConfidenceScore: 0.5},
		envelope.PatternPublish, "a", "all")
	require.NoError(t, err)

	require.NotPanics(t, func() {
		internalBus.Publish(ChannelInternalOutbound, &OutboundMessage{
			Topic: "hsp/knowledge/facts/all", Envelope: env,
		})
	})
}

func TestClose_DetachesOutbound(t *testing.T) {
	b, conn, internalBus := newBridge(t)
	b.Close()

	env, err := envelope.Seal(
		&envelope.Fact{ID: "f1", ConfidenceScore: 0.5},
		envelope.PatternPublish, "a", "all")
	require.NoError(t, err)

	internalBus.Publish(ChannelInternalOutbound, &OutboundMessage{
		Topic: "hsp/knowledge/facts/all", Envelope: env,
	})
	assert.Empty(t, conn.Published())
}
