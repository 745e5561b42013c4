// Package retry provides exponential backoff for transient failures,
// mainly the initial broker connection at node startup.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	hsperrors "github.com/catcatai/hsp/errors"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts  int           // 0 means run once without retrying
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	AddJitter    bool
}

// DefaultConfig suits ordinary operations.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Startup suits the initial broker connection, where the broker may
// come up after the node.
func Startup() Config {
	return Config{
		MaxAttempts:  30,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

func (cfg *Config) normalize() {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
}

// Do runs fn until it succeeds, the attempts are exhausted, the error
// classifies as non-transient, or the context ends. Errors classified
// as invalid or fatal stop the retry loop immediately.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg.normalize()

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if hsperrors.IsInvalid(lastErr) || hsperrors.IsFatal(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.AddJitter {
			randMu.Lock()
			wait += time.Duration(randSource.Int63n(int64(delay)/4 + 1))
			randMu.Unlock()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
