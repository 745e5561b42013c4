package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFact_Validate(t *testing.T) {
	valid := &Fact{ID: "f1", StatementType: StatementNaturalLanguage, ConfidenceScore: 0.5}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&Fact{ConfidenceScore: 0.5}).Validate(), "missing id")
	assert.Error(t, (&Fact{ID: "f1", ConfidenceScore: 1.5}).Validate(), "confidence out of range")
	assert.Error(t, (&Fact{ID: "f1", StatementType: StatementSemanticTriple}).Validate(),
		"triple fact without structured statement")
}

func TestFact_StatementText(t *testing.T) {
	nl := &Fact{ID: "f1", StatementNL: "the sky is blue"}
	assert.Equal(t, "the sky is blue", nl.StatementText())

	triple := &Fact{
		ID: "f2",
		StatementStructured: &SemanticTriple{
			SubjectURI:    "sky",
			PredicateURI:  "has_color",
			ObjectLiteral: "blue",
		},
	}
	assert.Equal(t, "sky has_color blue", triple.StatementText())

	assert.Empty(t, (&Fact{ID: "f3"}).StatementText())
}

func TestCapabilityAdvertisement_Validate(t *testing.T) {
	valid := &CapabilityAdvertisement{
		CapabilityID:       "cap-translate-v1",
		AIID:               "did:hsp:beta",
		Name:               "translate",
		AvailabilityStatus: AvailabilityOnline,
	}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&CapabilityAdvertisement{AIID: "a", Name: "n"}).Validate())
	assert.Error(t, (&CapabilityAdvertisement{CapabilityID: "c", Name: "n"}).Validate())
	assert.Error(t, (&CapabilityAdvertisement{CapabilityID: "c", AIID: "a"}).Validate())
}

func TestTaskRequest_Validate(t *testing.T) {
	assert.NoError(t, (&TaskRequest{RequestID: "req-1"}).Validate())
	assert.Error(t, (&TaskRequest{}).Validate())
}

func TestTaskResult_Validate(t *testing.T) {
	assert.NoError(t, (&TaskResult{RequestID: "req-1", Status: TaskSuccess}).Validate())
	assert.NoError(t, (&TaskResult{RequestID: "req-1", Status: TaskRejected}).Validate())
	assert.Error(t, (&TaskResult{Status: TaskSuccess}).Validate())
	assert.Error(t, (&TaskResult{RequestID: "req-1", Status: TaskStatus("done")}).Validate())
}

func TestPayloadRegistry_Decode(t *testing.T) {
	reg := DefaultRegistry()

	payload, err := reg.Decode(TypeFact, []byte(`{"id":"f1","confidence_score":0.7}`))
	require.NoError(t, err)
	fact, ok := payload.(*Fact)
	require.True(t, ok)
	assert.Equal(t, "f1", fact.ID)
	assert.Equal(t, 0.7, fact.ConfidenceScore)

	_, err = reg.Decode("HSP::EnvironmentalState_v0.1", []byte(`{}`))
	assert.Error(t, err, "unknown type surfaces ErrUnknownMessageType")

	_, err = reg.Decode(TypeFact, []byte(`{not json`))
	assert.Error(t, err)
}

func TestPayloadRegistry_Register(t *testing.T) {
	reg := NewPayloadRegistry()

	require.NoError(t, reg.Register("HSP::Custom_v1.0", func() Payload { return &Fact{} }))
	assert.True(t, reg.Known("HSP::Custom_v1.0"))

	assert.Error(t, reg.Register("HSP::Custom_v1.0", func() Payload { return &Fact{} }),
		"duplicate registration rejected")
	assert.Error(t, reg.Register("", func() Payload { return &Fact{} }))
	assert.Error(t, reg.Register("bad-type", func() Payload { return &Fact{} }))
	assert.Error(t, reg.Register("HSP::Null_v1.0", nil))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "hsp/capabilities/advertisements/agent-1", CapabilityTopic("agent-1"))
	assert.Equal(t, "hsp/requests/agent-2", RequestTopic("agent-2"))
	assert.Equal(t, "custom/path/here", RequestTopic("custom/path/here"),
		"targets containing a slash are full topics already")
	assert.Equal(t, "hsp/results/agent-3", ResultTopic("agent-3"))
	assert.Equal(t, "hsp/acks/agent-4", AckTopic("agent-4"))
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"hsp/knowledge/facts/all", "hsp/knowledge/facts/all", true},
		{"hsp/knowledge/facts/+", "hsp/knowledge/facts/all", true},
		{"hsp/knowledge/facts/+", "hsp/knowledge/facts/all/extra", false},
		{"hsp/+/facts/all", "hsp/knowledge/facts/all", true},
		{"hsp/#", "hsp/knowledge/facts/all", true},
		{"hsp/#", "hsp", true},
		{"hsp/knowledge/#", "hsp/requests/agent-1", false},
		{"hsp/requests/+", "hsp/requests/agent-1", true},
		{"other/#", "hsp/requests/agent-1", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchTopic(tc.filter, tc.topic),
			"filter %q topic %q", tc.filter, tc.topic)
	}
}

func TestValidFilter(t *testing.T) {
	assert.True(t, ValidFilter("hsp/requests/+"))
	assert.True(t, ValidFilter("hsp/#"))
	assert.True(t, ValidFilter("#"))
	assert.False(t, ValidFilter(""))
	assert.False(t, ValidFilter("hsp/#/requests"))
	assert.False(t, ValidFilter("hsp/ab+cd/x"))
	assert.False(t, ValidFilter("hsp/a#"))
}
