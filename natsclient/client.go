// Package natsclient manages the NATS connection used by the NATS-backed
// HSP transport and the JetStream key-value buckets used for persistence.
// Connection failures feed a circuit breaker so a flapping broker cannot
// turn startup into a hot loop.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/catcatai/hsp/errors"
)

// ConnectionStatus represents the state of the NATS connection.
type ConnectionStatus int

// Possible connection statuses.
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Client manages a NATS connection with a circuit breaker.
type Client struct {
	url    string
	status atomic.Value // ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	// Circuit breaker
	failures         atomic.Int32
	backoff          atomic.Value // time.Duration
	circuitThreshold int32
	maxBackoff       time.Duration

	// Connection options
	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	username      string
	password      string
	token         string

	onDisconnect func(error)
	onReconnect  func()

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a NATS client for the given URL. The connection is not
// established until Connect is called.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default().With("component", "natsclient"),
		clientName:       "hsp-node",
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		timeout:          5 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	return c, nil
}

// URL returns the NATS server URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy reports whether the connection is usable.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Connect establishes the NATS connection. The circuit breaker rejects the
// attempt outright while open.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapInvalid(errors.ErrNotConnected, "Client", "Connect", "client closed")
	}
	if c.Status() == StatusCircuitOpen {
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "Connect", "circuit open")
	}

	c.status.Store(StatusConnecting)

	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusReconnecting)
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.status.Store(StatusConnected)
			if c.onReconnect != nil {
				c.onReconnect()
			}
		}),
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.recordFailure()
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "dial broker")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.recordFailure()
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "init jetstream")
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()

	c.resetCircuit()
	c.status.Store(StatusConnected)
	c.logger.Info("connected to NATS", "url", c.url)

	_ = ctx // reserved for a future server-info handshake with deadline
	return nil
}

// Publish sends raw bytes on a subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNotConnected, "Client", "Publish", "connection check")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish bytes")
	}
	return nil
}

// Subscribe registers a handler on a subject (NATS wildcards allowed).
// Subscriptions are tracked so Close can drain them.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Client", "Subscribe", "connection check")
	}
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "subscribe subject")
	}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// JetStream returns the JetStream context, nil before Connect.
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// Close unsubscribes everything and tears down the connection. Safe to
// call more than once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.js = nil
	}
	c.token = ""
	c.password = ""

	c.status.Store(StatusDisconnected)
	c.logger.Info("NATS client closed", "url", c.url)
	return nil
}

// Failures returns the total connection failure count.
func (c *Client) Failures() int32 { return c.failures.Load() }

// Backoff returns the current circuit backoff duration.
func (c *Client) Backoff() time.Duration { return c.backoff.Load().(time.Duration) }

func (c *Client) recordFailure() {
	n := c.failures.Add(1)
	if n < c.circuitThreshold {
		return
	}

	cur := c.backoff.Load().(time.Duration)
	next := cur * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	c.backoff.Store(next)
	c.status.Store(StatusCircuitOpen)
	c.failures.Store(0)

	c.logger.Warn("circuit breaker opened", "backoff", cur)
	time.AfterFunc(cur, func() {
		if c.Status() == StatusCircuitOpen {
			c.status.Store(StatusDisconnected)
		}
	})
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.backoff.Store(time.Second)
}
