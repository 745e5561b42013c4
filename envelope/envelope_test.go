package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	env := New(TypeFact, PatternPublish, "did:hsp:alpha", "all", json.RawMessage(`{}`))

	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.Equal(t, ProtocolVersion, env.ProtocolVersion)
	assert.Len(t, env.MessageID, 36)
	assert.Equal(t, "did:hsp:alpha", env.SenderAIID)
	assert.Equal(t, "all", env.RecipientAIID)
	assert.Empty(t, env.CorrelationID)
	assert.WithinDuration(t, time.Now().UTC(), env.TimestampSent, time.Second)
	assert.False(t, env.RequiresAck())
}

func TestNew_UniqueMessageIDs(t *testing.T) {
	a := New(TypeFact, PatternPublish, "a", "all", nil)
	b := New(TypeFact, PatternPublish, "a", "all", nil)
	assert.NotEqual(t, a.MessageID, b.MessageID)
}

func TestNew_Options(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env := New(TypeTaskRequest, PatternRequest, "alpha", "beta", nil,
		WithCorrelationID("corr-1"),
		WithQoS(QoSParameters{RequiresAck: true, Priority: "high"}),
		WithTimestamp(ts),
	)

	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.True(t, env.RequiresAck())
	assert.Equal(t, ts, env.TimestampSent)
}

func TestEnvelope_Validate(t *testing.T) {
	valid := New(TypeFact, PatternPublish, "alpha", "all", json.RawMessage(`{}`))
	assert.NoError(t, valid.Validate())

	missingSender := New(TypeFact, PatternPublish, "", "all", nil)
	assert.Error(t, missingSender.Validate())

	badPattern := New(TypeFact, CommunicationPattern("gossip"), "alpha", "all", nil)
	assert.Error(t, badPattern.Validate())

	// Responses must carry a correlation id.
	response := New(TypeTaskResult, PatternResponse, "alpha", "beta", nil)
	assert.Error(t, response.Validate())
	correlated := New(TypeTaskResult, PatternResponse, "alpha", "beta", nil,
		WithCorrelationID("corr-2"))
	assert.NoError(t, correlated.Validate())
}

func TestSeal_RoundTrip(t *testing.T) {
	fact := &Fact{
		ID:               "fact-001",
		StatementType:    StatementNaturalLanguage,
		StatementNL:      "water boils at 100C at sea level",
		SourceAIID:       "did:hsp:alpha",
		TimestampCreated: time.Now().UTC(),
		ConfidenceScore:  0.9,
	}

	env, err := Seal(fact, PatternPublish, "did:hsp:alpha", "all")
	require.NoError(t, err)

	wire, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(wire, &decoded))

	payload, err := decoded.DecodePayload(DefaultRegistry())
	require.NoError(t, err)

	got, ok := payload.(*Fact)
	require.True(t, ok)
	assert.Equal(t, "fact-001", got.ID)
	assert.Equal(t, fact.StatementNL, got.StatementNL)
	assert.Equal(t, fact.ConfidenceScore, got.ConfidenceScore)
}

func TestSeal_RejectsInvalidPayload(t *testing.T) {
	_, err := Seal(&Fact{}, PatternPublish, "alpha", "all")
	assert.Error(t, err)

	_, err = Seal(nil, PatternPublish, "alpha", "all")
	assert.Error(t, err)
}

func TestValidMessageType(t *testing.T) {
	assert.True(t, ValidMessageType("HSP::Fact_v0.1"))
	assert.True(t, ValidMessageType("HSP::EnvironmentalState_v1.2"))
	assert.False(t, ValidMessageType("Fact_v0.1"))
	assert.False(t, ValidMessageType("HSP::Fact"))
	assert.False(t, ValidMessageType("HSP::_v0.1"))
}

func TestCommunicationPattern_IsValid(t *testing.T) {
	assert.True(t, PatternPublish.IsValid())
	assert.True(t, PatternNack.IsValid())
	assert.False(t, CommunicationPattern("broadcast").IsValid())
}
