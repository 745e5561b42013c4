package natsclient

import (
	"log/slog"
	"time"

	"github.com/catcatai/hsp/errors"
)

// ClientOption configures a Client during construction.
type ClientOption func(*Client) error

// WithName sets the client name reported to the broker.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		if name == "" {
			return errors.ErrInvalidConfig
		}
		c.clientName = name
		return nil
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return errors.ErrInvalidConfig
		}
		c.logger = logger.With("component", "natsclient")
		return nil
	}
}

// WithCredentials sets username/password authentication.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication. The token is cleared on Close.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTimeout sets the dial timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.ErrInvalidConfig
		}
		c.timeout = d
		return nil
	}
}

// WithReconnect configures the broker-level reconnect policy.
func WithReconnect(maxReconnects int, wait time.Duration) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = maxReconnects
		c.reconnectWait = wait
		return nil
	}
}

// WithCircuitBreaker tunes the failure threshold and maximum backoff.
func WithCircuitBreaker(threshold int32, maxBackoff time.Duration) ClientOption {
	return func(c *Client) error {
		if threshold <= 0 || maxBackoff <= 0 {
			return errors.ErrInvalidConfig
		}
		c.circuitThreshold = threshold
		c.maxBackoff = maxBackoff
		return nil
	}
}

// WithDisconnectHandler registers a callback for broker disconnects.
func WithDisconnectHandler(fn func(error)) ClientOption {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}

// WithReconnectHandler registers a callback for broker reconnects.
func WithReconnectHandler(fn func()) ClientOption {
	return func(c *Client) error {
		c.onReconnect = fn
		return nil
	}
}
