// Package aligner validates and normalizes inbound raw messages into a
// well-formed envelope. It is the deserialization boundary of the node:
// parse, don't cast. Alignment is a pure function over its input and has
// no side effects.
package aligner

import (
	"encoding/json"
	"fmt"

	"github.com/catcatai/hsp/envelope"
)

// Error codes reported on alignment failure.
const (
	CodeEnvelopeMalformed = "ENVELOPE_MALFORMED"
	CodeEnvelopeInvalid   = "ENVELOPE_INVALID"
	CodePayloadInvalid    = "PAYLOAD_INVALID"
)

// AlignmentError is the structured failure detail returned when a raw
// message cannot be aligned.
type AlignmentError struct {
	Code    string       `json:"error_code"`
	Message string       `json:"error_message"`
	Context ErrorContext `json:"error_context"`
}

// ErrorContext pinpoints where in the message the failure occurred.
type ErrorContext struct {
	Location string `json:"location"`
}

// Error implements the error interface.
func (e *AlignmentError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Context.Location, e.Message)
}

// Aligner validates envelope shape and, for known message types, the
// payload carried inside. Unknown message types pass through unvalidated:
// forward compatibility requires never rejecting a type we merely have
// not learned yet.
type Aligner struct {
	registry *envelope.PayloadRegistry
}

// New creates an aligner over the given payload registry. A nil registry
// falls back to the default one.
func New(registry *envelope.PayloadRegistry) *Aligner {
	if registry == nil {
		registry = envelope.DefaultRegistry()
	}
	return &Aligner{registry: registry}
}

// Align parses and validates a raw message. On success the returned
// envelope is fully validated and its payload, if of a known type, has
// passed its minimal-field checks. On failure the envelope is nil and
// the error carries structured detail.
func (a *Aligner) Align(raw json.RawMessage) (*envelope.Envelope, *AlignmentError) {
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &AlignmentError{
			Code:    CodeEnvelopeMalformed,
			Message: err.Error(),
			Context: ErrorContext{Location: "envelope"},
		}
	}

	if err := env.Validate(); err != nil {
		return nil, &AlignmentError{
			Code:    CodeEnvelopeInvalid,
			Message: err.Error(),
			Context: ErrorContext{Location: "envelope"},
		}
	}

	// Payload validation is dispatched by message type. Types without a
	// registered factory are passed through untouched.
	if a.registry.Known(env.MessageType) {
		payload, err := a.registry.Decode(env.MessageType, env.Payload)
		if err != nil {
			return nil, &AlignmentError{
				Code:    CodePayloadInvalid,
				Message: err.Error(),
				Context: ErrorContext{Location: "payload"},
			}
		}
		if err := payload.Validate(); err != nil {
			return nil, &AlignmentError{
				Code:    CodePayloadInvalid,
				Message: err.Error(),
				Context: ErrorContext{Location: "payload"},
			}
		}
	}

	return &env, nil
}

// AlignMap aligns a message already parsed into a generic map, re-encoding
// it first. Convenient for callers holding decoded JSON.
func (a *Aligner) AlignMap(raw map[string]any) (*envelope.Envelope, *AlignmentError) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &AlignmentError{
			Code:    CodeEnvelopeMalformed,
			Message: err.Error(),
			Context: ErrorContext{Location: "envelope"},
		}
	}
	return a.Align(data)
}
