package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotConnected, "HSPConnector", "PublishFact", "publish envelope")
	assert.EqualError(t, err, "HSPConnector.PublishFact: publish envelope failed: not connected to broker")
	assert.True(t, Is(err, ErrNotConnected))

	assert.NoError(t, Wrap(nil, "HSPConnector", "PublishFact", "publish envelope"))
}

func TestClassifiedWrappers(t *testing.T) {
	transient := WrapTransient(ErrConnectionLost, "Transport", "Publish", "send bytes")
	invalid := WrapInvalid(ErrInvalidEnvelope, "DataAligner", "Align", "envelope validation")
	fatal := WrapFatal(ErrMissingDependency, "LearningManager", "New", "memory store")

	assert.True(t, IsTransient(transient))
	assert.False(t, IsInvalid(transient))

	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsFatal(invalid))

	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	err := WrapInvalid(ErrInvalidPayload, "DataAligner", "Align", "payload validation")

	var ce *ClassifiedError
	assert.True(t, As(err, &ce))
	assert.Equal(t, "DataAligner", ce.Component)
	assert.Equal(t, "Align", ce.Operation)
	assert.True(t, Is(err, ErrInvalidPayload))
}

func TestClassify_Sentinels(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrMalformedJSON))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionTimeout))
	// Unknown errors default to transient so callers may retry.
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("mystery")))
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("broker temporarily unavailable")))
	assert.False(t, IsTransient(nil))
}
