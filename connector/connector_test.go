package connector

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catcatai/hsp/aligner"
	"github.com/catcatai/hsp/bridge"
	"github.com/catcatai/hsp/bus"
	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/transport"
)

// node bundles one agent's full in-process stack over a shared fake broker.
type node struct {
	conn      *transport.FakeConnector
	bus       *bus.Bus
	bridge    *bridge.Bridge
	connector *Connector
}

func newNode(t *testing.T, broker *transport.FakeBroker, aiID string) *node {
	t.Helper()

	conn := broker.Connector()
	internalBus := bus.New(nil)
	br, err := bridge.New(conn, internalBus, aligner.New(nil), nil)
	require.NoError(t, err)

	c, err := New(aiID, internalBus, conn)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))

	t.Cleanup(func() {
		c.Close()
		br.Close()
	})
	return &node{conn: conn, bus: internalBus, bridge: br, connector: c}
}

func TestNew_RequiresDependencies(t *testing.T) {
	b := bus.New(nil)
	fake := transport.NewFakeConnector()

	_, err := New("", b, fake)
	assert.Error(t, err)
	_, err = New("agent", nil, fake)
	assert.Error(t, err)
	_, err = New("agent", b, nil)
	assert.Error(t, err)
}

func TestConnectDisconnect_TogglesState(t *testing.T) {
	fake := transport.NewFakeConnector()
	c, err := New("did:hsp:alpha", bus.New(nil), fake)
	require.NoError(t, err)

	assert.False(t, c.IsConnected())
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
}

func TestPublishFact_EnvelopeShape(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")

	fact := &envelope.Fact{ID: "fact-1", StatementNL: "x", ConfidenceScore: 0.9}
	require.NoError(t, alpha.connector.PublishFact(fact, "hsp/knowledge/facts/general"))

	published := alpha.conn.PublishedTo("hsp/knowledge/facts/general")
	require.Len(t, published, 1)

	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(published[0].Payload, &env))
	assert.Equal(t, envelope.PatternPublish, env.CommunicationPattern)
	assert.Equal(t, "all", env.RecipientAIID)
	assert.Equal(t, "did:hsp:alpha", env.SenderAIID)
	assert.False(t, env.RequiresAck())

	// Round-trip must preserve the fact id.
	payload, err := env.DecodePayload(envelope.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, "fact-1", payload.(*envelope.Fact).ID)
}

func TestSendTaskRequest_GeneratesCorrelationID(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")

	corrID, err := alpha.connector.SendTaskRequest(
		&envelope.TaskRequest{RequestID: "req-1", CapabilityIDFilter: "cap-x"},
		"did:hsp:beta")
	require.NoError(t, err)
	assert.Len(t, corrID, 36)
	assert.Contains(t, alpha.connector.PendingRequests(), corrID)

	published := alpha.conn.PublishedTo("hsp/requests/did:hsp:beta")
	require.Len(t, published, 1)

	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(published[0].Payload, &env))
	assert.Equal(t, corrID, env.CorrelationID)
	assert.Equal(t, envelope.PatternRequest, env.CommunicationPattern)
	assert.True(t, env.RequiresAck())
}

func TestSendTaskRequest_TargetWithSlashIsFullTopic(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")

	_, err := alpha.connector.SendTaskRequest(
		&envelope.TaskRequest{RequestID: "req-2"}, "custom/inbox/beta")
	require.NoError(t, err)
	assert.Len(t, alpha.conn.PublishedTo("custom/inbox/beta"), 1)
}

func TestSendTaskResult_RequiresCorrelation(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")

	err := alpha.connector.SendTaskResult(
		&envelope.TaskResult{RequestID: "req-1", Status: envelope.TaskSuccess},
		"did:hsp:beta", "")
	assert.Error(t, err)
}

// Scenario: request from alpha, result from beta, correlation id preserved
// end to end across the wire.
func TestRequestResult_CorrelationRoundTrip(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")
	beta := newNode(t, broker, "did:hsp:beta")

	// Beta answers any request it receives.
	beta.connector.OnTaskRequest(func(req *envelope.TaskRequest, env *envelope.Envelope) {
		err := beta.connector.SendTaskResult(
			&envelope.TaskResult{RequestID: req.RequestID, Status: envelope.TaskSuccess},
			env.SenderAIID, env.CorrelationID)
		require.NoError(t, err)
	})

	var gotCorrelation string
	alpha.connector.OnTaskResult(func(_ *envelope.TaskResult, env *envelope.Envelope) {
		gotCorrelation = env.CorrelationID
	})

	corrID, err := alpha.connector.SendTaskRequest(
		&envelope.TaskRequest{RequestID: "req-7"}, "did:hsp:beta")
	require.NoError(t, err)

	assert.Equal(t, corrID, gotCorrelation,
		"result callback must see the original request correlation id")
	assert.NotContains(t, alpha.connector.PendingRequests(), corrID,
		"settled requests leave the pending table")
}

// Scenario: requires_ack envelopes produce exactly one acknowledgement to
// hsp/acks/{sender}, however many callbacks ran or failed.
func TestAckProtocol_ExactlyOneAck(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")
	beta := newNode(t, broker, "did:hsp:beta")

	var acked []string
	alpha.connector.OnAcknowledgement(func(ack *envelope.Acknowledgement, _ *envelope.Envelope) {
		acked = append(acked, ack.TargetMessageID)
	})

	// Two callbacks on beta, one of them panics.
	beta.connector.OnTaskRequest(func(*envelope.TaskRequest, *envelope.Envelope) {})
	beta.connector.OnTaskRequest(func(*envelope.TaskRequest, *envelope.Envelope) { panic("consumer bug") })

	_, err := alpha.connector.SendTaskRequest(
		&envelope.TaskRequest{RequestID: "req-9"}, "did:hsp:beta")
	require.NoError(t, err)

	requestWire := alpha.conn.PublishedTo("hsp/requests/did:hsp:beta")
	require.Len(t, requestWire, 1)
	var reqEnv envelope.Envelope
	require.NoError(t, json.Unmarshal(requestWire[0].Payload, &reqEnv))

	ackWire := beta.conn.PublishedTo("hsp/acks/did:hsp:alpha")
	require.Len(t, ackWire, 1, "exactly one ack regardless of callback count or panics")

	require.Len(t, acked, 1)
	assert.Equal(t, reqEnv.MessageID, acked[0], "ack references the original message id")
}

func TestAckProtocol_NoAckWhenNotRequested(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")
	beta := newNode(t, broker, "did:hsp:beta")

	var factSeen bool
	beta.connector.OnFact(func(*envelope.Fact, *envelope.Envelope) { factSeen = true })

	require.NoError(t, alpha.connector.PublishFact(
		&envelope.Fact{ID: "f1", ConfidenceScore: 0.8}, "hsp/knowledge/facts/general"))

	assert.True(t, factSeen)
	assert.Empty(t, beta.conn.PublishedTo("hsp/acks/did:hsp:alpha"))
}

func TestCapabilityAdvertisement_Flow(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")
	beta := newNode(t, broker, "did:hsp:beta")

	var got *envelope.CapabilityAdvertisement
	beta.connector.OnCapabilityAdvertisement(
		func(ad *envelope.CapabilityAdvertisement, _ *envelope.Envelope) { got = ad })

	require.NoError(t, alpha.connector.PublishCapabilityAdvertisement(
		&envelope.CapabilityAdvertisement{
			CapabilityID:       "cap-translate",
			AIID:               "did:hsp:alpha",
			Name:               "translate",
			AvailabilityStatus: envelope.AvailabilityOnline,
		}))

	require.NotNil(t, got)
	assert.Equal(t, "cap-translate", got.CapabilityID)

	published := alpha.conn.PublishedTo("hsp/capabilities/advertisements/did:hsp:alpha")
	assert.Len(t, published, 1)
}

func TestStrayResult_DeliveredButNotPending(t *testing.T) {
	broker := transport.NewFakeBroker()
	alpha := newNode(t, broker, "did:hsp:alpha")
	beta := newNode(t, broker, "did:hsp:beta")

	var got *envelope.TaskResult
	alpha.connector.OnTaskResult(func(res *envelope.TaskResult, _ *envelope.Envelope) { got = res })

	// Beta sends a result alpha never asked for.
	require.NoError(t, beta.connector.SendTaskResult(
		&envelope.TaskResult{RequestID: "phantom", Status: envelope.TaskFailure},
		"did:hsp:alpha", "corr-unknown"))

	require.NotNil(t, got, "stray results are still delivered to callbacks")
	assert.Equal(t, envelope.TaskStatus("failure"), got.Status)
}
