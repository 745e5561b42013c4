package envelope

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/catcatai/hsp/errors"
)

// PayloadFactory creates an empty payload instance ready for decoding.
type PayloadFactory func() Payload

// PayloadRegistry maps message_type strings to payload factories, enabling
// typed deserialization at the alignment boundary. Registration is
// thread-safe; lookups take a read lock only.
type PayloadRegistry struct {
	factories map[string]PayloadFactory
	mu        sync.RWMutex
}

// NewPayloadRegistry creates an empty registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{
		factories: make(map[string]PayloadFactory),
	}
}

// DefaultRegistry returns a registry pre-populated with every payload type
// this core understands.
func DefaultRegistry() *PayloadRegistry {
	reg := NewPayloadRegistry()
	// Registration of the built-in types cannot fail.
	_ = reg.Register(TypeFact, func() Payload { return &Fact{} })
	_ = reg.Register(TypeCapabilityAdvertisement, func() Payload { return &CapabilityAdvertisement{} })
	_ = reg.Register(TypeTaskRequest, func() Payload { return &TaskRequest{} })
	_ = reg.Register(TypeTaskResult, func() Payload { return &TaskResult{} })
	_ = reg.Register(TypeAcknowledgement, func() Payload { return &Acknowledgement{} })
	return reg
}

// Register adds a factory for a message type. Duplicate registration is an
// error so two components cannot silently fight over a type.
func (pr *PayloadRegistry) Register(messageType string, factory PayloadFactory) error {
	if messageType == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PayloadRegistry", "Register", "message type validation")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PayloadRegistry", "Register", "factory validation")
	}
	if !ValidMessageType(messageType) {
		return errors.WrapInvalid(
			fmt.Errorf("message type %q does not match HSP grammar", messageType),
			"PayloadRegistry", "Register", "message type grammar check")
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()

	if _, exists := pr.factories[messageType]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("payload type %q already registered", messageType),
			"PayloadRegistry", "Register", "duplicate check")
	}
	pr.factories[messageType] = factory
	return nil
}

// Known reports whether a factory is registered for the message type.
func (pr *PayloadRegistry) Known(messageType string) bool {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	_, ok := pr.factories[messageType]
	return ok
}

// Decode parses raw JSON into the typed payload registered for messageType.
// Unknown message types return ErrUnknownMessageType so callers can apply
// the pass-through policy instead of rejecting.
func (pr *PayloadRegistry) Decode(messageType string, raw json.RawMessage) (Payload, error) {
	pr.mu.RLock()
	factory, ok := pr.factories[messageType]
	pr.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownMessageType, messageType)
	}

	p := factory()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, errors.WrapInvalid(err, "PayloadRegistry", "Decode", "payload parse")
	}
	return p, nil
}
