package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catcatai/hsp/config"
	"github.com/catcatai/hsp/discovery"
	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/memory"
	"github.com/catcatai/hsp/transport"
)

func nodeConfig(aiID string) *config.Config {
	cfg := config.Default()
	cfg.AIID = aiID
	cfg.Discovery.ReadvertiseInterval = 0
	return cfg
}

func startNode(t *testing.T, broker *transport.FakeBroker, cfg *config.Config, opts ...Option) *Node {
	t.Helper()
	opts = append([]Option{WithTransport(broker.Connector())}, opts...)
	n, err := NewNode(cfg, nil, opts...)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { n.Stop(time.Second) })
	return n
}

func TestNewNode_RejectsInvalidConfig(t *testing.T) {
	_, err := NewNode(nil, nil)
	assert.Error(t, err)

	cfg := config.Default() // missing ai_id
	_, err = NewNode(cfg, nil)
	assert.Error(t, err)
}

func TestNode_StartStop(t *testing.T) {
	broker := transport.NewFakeBroker()
	n := startNode(t, broker, nodeConfig("did:hsp:node-1"))

	assert.True(t, n.Connector().IsConnected())
	assert.Error(t, n.Start(context.Background()), "double start rejected")

	require.NoError(t, n.Stop(time.Second))
	assert.False(t, n.Connector().IsConnected())
	require.NoError(t, n.Stop(time.Second), "stop is idempotent")
}

// Capability advertisements travel from one node's startup announce
// into the other node's discovery registry.
func TestNode_CapabilityAdvertisementFlow(t *testing.T) {
	broker := transport.NewFakeBroker()

	startNode(t, broker, nodeConfig("did:hsp:provider"), WithCapabilities(
		envelope.CapabilityAdvertisement{
			CapabilityID:       "translate-v1",
			Name:               "translate",
			AvailabilityStatus: envelope.AvailabilityOnline,
			Tags:               []string{"nlp", "translation"},
		}))
	consumer := startNode(t, broker, nodeConfig("did:hsp:consumer"))

	assert.Eventually(t, func() bool {
		return consumer.Discovery().GetCapabilityByID("translate-v1") != nil
	}, time.Second, 10*time.Millisecond)

	found := consumer.Discovery().FindCapabilities(discovery.FindOptions{
		Tags: []string{"nlp", "translation"},
	})
	require.Len(t, found, 1)
	assert.Equal(t, "did:hsp:provider", found[0].Advertisement.AIID)
}

// A fact published by one node reaches the other node's learning
// pipeline and lands in its memory store.
func TestNode_FactFlow(t *testing.T) {
	broker := transport.NewFakeBroker()

	publisher := startNode(t, broker, nodeConfig("did:hsp:publisher"))
	learner := startNode(t, broker, nodeConfig("did:hsp:learner"))

	// Default trust is 0.5; raise it so the fact clears the gate.
	learner.TrustManager().SetTrustScore("did:hsp:publisher", 0.95)

	require.NoError(t, publisher.Connector().PublishFact(&envelope.Fact{
		ID:              "fact-1",
		StatementType:   envelope.StatementNaturalLanguage,
		StatementNL:     "the nile is a river in africa",
		SourceAIID:      "did:hsp:publisher",
		ConfidenceScore: 0.95,
	}, envelope.KnowledgeFactsTopic))

	assert.Eventually(t, func() bool {
		recs, err := learner.Store().QueryCoreMemory(context.Background(), memory.Query{
			DataType: "hsp_learned_fact",
		})
		return err == nil && len(recs) == 1
	}, time.Second, 10*time.Millisecond)

	// The publisher hears its own fact on the shared topic but must
	// not learn it.
	recs, err := publisher.Store().QueryCoreMemory(context.Background(), memory.Query{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
