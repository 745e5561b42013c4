// Package envelope defines the HSP wire format: the versioned envelope
// wrapping every message on the mesh, the typed payloads it carries, and
// the topic conventions used to route them.
//
// Design principles:
//   - Immutable envelopes: all fields are set at construction and never
//     mutated afterwards. Republication always builds a new envelope.
//   - Typed payloads: each message_type string maps to exactly one payload
//     struct. Deserialization is the validation boundary (parse, don't cast).
//   - Forward compatibility: unknown message types are carried opaquely
//     rather than rejected.
package envelope

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/catcatai/hsp/errors"
)

// Protocol version constants stamped on every outgoing envelope.
const (
	EnvelopeVersion = "0.1"
	ProtocolVersion = "0.1.1"
)

// CommunicationPattern identifies the exchange style of an envelope.
type CommunicationPattern string

// Valid communication patterns.
const (
	PatternPublish   CommunicationPattern = "publish"
	PatternRequest   CommunicationPattern = "request"
	PatternResponse  CommunicationPattern = "response"
	PatternStream    CommunicationPattern = "stream_data"
	PatternStreamAck CommunicationPattern = "stream_ack"
	PatternAck       CommunicationPattern = "acknowledgement"
	PatternNack      CommunicationPattern = "negative_acknowledgement"
)

// IsValid reports whether the pattern is one of the defined values.
func (p CommunicationPattern) IsValid() bool {
	switch p {
	case PatternPublish, PatternRequest, PatternResponse,
		PatternStream, PatternStreamAck, PatternAck, PatternNack:
		return true
	}
	return false
}

// Message type strings, pattern "HSP::<Name>_v<major>.<minor>".
const (
	TypeFact                    = "HSP::Fact_v0.1"
	TypeCapabilityAdvertisement = "HSP::CapabilityAdvertisement_v0.1"
	TypeTaskRequest             = "HSP::TaskRequest_v0.1"
	TypeTaskResult              = "HSP::TaskResult_v0.1"
	TypeAcknowledgement         = "HSP::Acknowledgement_v0.1"
)

var messageTypePattern = regexp.MustCompile(`^HSP::[A-Za-z][A-Za-z0-9]*_v\d+\.\d+$`)

// ValidMessageType reports whether s matches the HSP message type grammar.
func ValidMessageType(s string) bool {
	return messageTypePattern.MatchString(s)
}

// QoSParameters carries per-message delivery preferences.
type QoSParameters struct {
	Priority      string `json:"priority,omitempty"`
	RequiresAck   bool   `json:"requires_ack"`
	TimeToLiveSec int    `json:"time_to_live_sec,omitempty"`
}

// SecurityParameters is carried opaquely; this core does not interpret it.
type SecurityParameters struct {
	SignatureAlgorithm string `json:"signature_algorithm,omitempty"`
	Signature          string `json:"signature,omitempty"`
	EncryptionMethod   string `json:"encryption_method,omitempty"`
}

// Envelope is the outer wire struct wrapping every HSP message. It carries
// routing and correlation metadata plus a typed payload kept as raw JSON
// until a consumer decodes it through the payload registry.
//
// Envelopes are immutable after construction.
type Envelope struct {
	Version              string               `json:"hsp_envelope_version"`
	MessageID            string               `json:"message_id"`
	CorrelationID        string               `json:"correlation_id,omitempty"`
	SenderAIID           string               `json:"sender_ai_id"`
	RecipientAIID        string               `json:"recipient_ai_id"`
	TimestampSent        time.Time            `json:"timestamp_sent"`
	MessageType          string               `json:"message_type"`
	ProtocolVersion      string               `json:"protocol_version"`
	CommunicationPattern CommunicationPattern `json:"communication_pattern"`
	Security             *SecurityParameters  `json:"security_parameters"`
	QoS                  *QoSParameters       `json:"qos_parameters"`
	RoutingInfo          json.RawMessage      `json:"routing_info"`
	PayloadSchemaURI     string               `json:"payload_schema_uri,omitempty"`
	Payload              json.RawMessage      `json:"payload"`
}

// Option is a functional option for envelope construction.
type Option func(*Envelope)

// WithCorrelationID links this envelope to a request/response exchange.
func WithCorrelationID(id string) Option {
	return func(e *Envelope) {
		e.CorrelationID = id
	}
}

// WithQoS sets the quality-of-service parameters.
func WithQoS(qos QoSParameters) Option {
	return func(e *Envelope) {
		e.QoS = &qos
	}
}

// WithSecurity attaches opaque security parameters.
func WithSecurity(sec SecurityParameters) Option {
	return func(e *Envelope) {
		e.Security = &sec
	}
}

// WithPayloadSchemaURI records the schema URI for the payload.
func WithPayloadSchemaURI(uri string) Option {
	return func(e *Envelope) {
		e.PayloadSchemaURI = uri
	}
}

// WithTimestamp sets a specific send timestamp instead of time.Now().
// Useful for tests and historical replay.
func WithTimestamp(ts time.Time) Option {
	return func(e *Envelope) {
		e.TimestampSent = ts.UTC()
	}
}

// New constructs a fully-populated envelope around an already-encoded payload.
// A fresh message_id is generated; the timestamp defaults to now (UTC).
func New(messageType string, pattern CommunicationPattern, sender, recipient string,
	payload json.RawMessage, opts ...Option) *Envelope {
	e := &Envelope{
		Version:              EnvelopeVersion,
		MessageID:            uuid.New().String(),
		SenderAIID:           sender,
		RecipientAIID:        recipient,
		TimestampSent:        time.Now().UTC(),
		MessageType:          messageType,
		ProtocolVersion:      ProtocolVersion,
		CommunicationPattern: pattern,
		Payload:              payload,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Seal encodes a typed payload and wraps it in a new envelope.
func Seal(p Payload, pattern CommunicationPattern, sender, recipient string,
	opts ...Option) (*Envelope, error) {
	if p == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidPayload, "Envelope", "Seal", "nil payload check")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Envelope", "Seal", "payload validation")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Envelope", "Seal", "payload encoding")
	}
	return New(p.MessageType(), pattern, sender, recipient, raw, opts...), nil
}

// Validate checks the envelope invariants. Payload contents are not
// inspected here; that is the aligner's job.
func (e *Envelope) Validate() error {
	if e.MessageID == "" {
		return fmt.Errorf("%w: message_id is required", errors.ErrInvalidEnvelope)
	}
	if e.SenderAIID == "" {
		return fmt.Errorf("%w: sender_ai_id is required", errors.ErrInvalidEnvelope)
	}
	if e.RecipientAIID == "" {
		return fmt.Errorf("%w: recipient_ai_id is required", errors.ErrInvalidEnvelope)
	}
	if e.MessageType == "" {
		return fmt.Errorf("%w: message_type is required", errors.ErrInvalidEnvelope)
	}
	if !e.CommunicationPattern.IsValid() {
		return fmt.Errorf("%w: unrecognized communication_pattern %q",
			errors.ErrInvalidEnvelope, e.CommunicationPattern)
	}
	// Request/response exchanges are joined on correlation_id.
	if e.CommunicationPattern == PatternResponse && e.CorrelationID == "" {
		return fmt.Errorf("%w: response envelope", errors.ErrMissingCorrelation)
	}
	return nil
}

// RequiresAck reports whether the sender asked for an acknowledgement.
func (e *Envelope) RequiresAck() bool {
	return e.QoS != nil && e.QoS.RequiresAck
}

// DecodePayload decodes the raw payload into the typed struct registered
// for the envelope's message type. Unknown types return ErrUnknownMessageType.
func (e *Envelope) DecodePayload(reg *PayloadRegistry) (Payload, error) {
	return reg.Decode(e.MessageType, e.Payload)
}
