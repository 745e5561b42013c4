package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hsperrors "github.com/catcatai/hsp/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return hsperrors.WrapTransient(assert.AnError, "test", "op", "flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return hsperrors.WrapTransient(assert.AnError, "test", "op", "down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return hsperrors.WrapInvalid(assert.AnError, "test", "op", "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "invalid errors are not retried")

	calls = 0
	err = Do(context.Background(), fastConfig(5), func() error {
		calls++
		return hsperrors.WrapFatal(assert.AnError, "test", "op", "broken")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(5), func() error { return assert.AnError })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	out, err := DoWithResult(context.Background(), fastConfig(5), func() (string, error) {
		calls++
		if calls < 2 {
			return "", hsperrors.WrapTransient(assert.AnError, "test", "op", "flaky")
		}
		return "connected", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "connected", out)
}
