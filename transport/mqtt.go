package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/catcatai/hsp/errors"
)

// MQTTConnector implements Connector over an MQTT broker using paho.
type MQTTConnector struct {
	brokerURL string
	clientID  string
	logger    *slog.Logger

	username       string
	password       string
	connectTimeout time.Duration

	mu      sync.RWMutex
	client  mqtt.Client
	handler MessageHandler
	filters map[string]byte // active subscriptions, restored on reconnect
}

// MQTTOption configures an MQTTConnector.
type MQTTOption func(*MQTTConnector)

// WithMQTTAuth sets username/password authentication.
func WithMQTTAuth(username, password string) MQTTOption {
	return func(c *MQTTConnector) {
		c.username = username
		c.password = password
	}
}

// WithMQTTConnectTimeout overrides the default 10s connect timeout.
func WithMQTTConnectTimeout(d time.Duration) MQTTOption {
	return func(c *MQTTConnector) {
		c.connectTimeout = d
	}
}

// WithMQTTLogger sets the connector logger.
func WithMQTTLogger(logger *slog.Logger) MQTTOption {
	return func(c *MQTTConnector) {
		c.logger = logger
	}
}

// NewMQTTConnector creates a connector for the given broker URL
// (e.g. "tcp://localhost:1883") and client id.
func NewMQTTConnector(brokerURL, clientID string, opts ...MQTTOption) (*MQTTConnector, error) {
	if brokerURL == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "MQTTConnector", "New", "broker URL")
	}
	if clientID == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "MQTTConnector", "New", "client id")
	}

	c := &MQTTConnector{
		brokerURL:      brokerURL,
		clientID:       clientID,
		logger:         slog.Default().With("component", "mqtt_connector"),
		connectTimeout: 10 * time.Second,
		filters:        make(map[string]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetMessageHandler implements Connector.
func (c *MQTTConnector) SetMessageHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Connect implements Connector. On connect failure the caller decides
// whether to retry.
func (c *MQTTConnector) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(c.clientID).
		SetConnectTimeout(c.connectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(c.restoreSubscriptions).
		SetDefaultPublishHandler(c.dispatch)
	if c.username != "" {
		opts.SetUsername(c.username)
		opts.SetPassword(c.password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	select {
	case <-ctx.Done():
		client.Disconnect(0)
		return errors.WrapTransient(ctx.Err(), "MQTTConnector", "Connect", "await broker")
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return errors.WrapTransient(err, "MQTTConnector", "Connect", "dial broker")
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.logger.Info("connected to MQTT broker", "broker", c.brokerURL, "client_id", c.clientID)
	return nil
}

// Disconnect implements Connector.
func (c *MQTTConnector) Disconnect() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	client.Disconnect(250)
	c.logger.Info("disconnected from MQTT broker", "broker", c.brokerURL)
	return nil
}

// IsConnected implements Connector.
func (c *MQTTConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// Publish implements Connector.
func (c *MQTTConnector) Publish(topic string, payload []byte, qos byte) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "MQTTConnector", "Publish", "connection check")
	}
	token := client.Publish(topic, qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return errors.WrapTransient(err, "MQTTConnector", "Publish", "publish bytes")
	}
	return nil
}

// Subscribe implements Connector. All messages arrive through the default
// handler, keeping the single-callback contract.
func (c *MQTTConnector) Subscribe(topic string, qos byte) error {
	c.mu.Lock()
	client := c.client
	c.filters[topic] = qos
	c.mu.Unlock()

	if client == nil {
		// Recorded; actual subscription happens on connect.
		return nil
	}
	token := client.Subscribe(topic, qos, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		return errors.WrapTransient(err, "MQTTConnector", "Subscribe", "subscribe filter")
	}
	return nil
}

// Unsubscribe implements Connector.
func (c *MQTTConnector) Unsubscribe(topic string) error {
	c.mu.Lock()
	client := c.client
	delete(c.filters, topic)
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	token := client.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		return errors.WrapTransient(err, "MQTTConnector", "Unsubscribe", "unsubscribe filter")
	}
	return nil
}

func (c *MQTTConnector) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler == nil {
		c.logger.Warn("inbound message with no handler installed", "topic", msg.Topic())
		return
	}
	handler(msg.Topic(), msg.Payload())
}

func (c *MQTTConnector) restoreSubscriptions(client mqtt.Client) {
	c.mu.RLock()
	filters := make(map[string]byte, len(c.filters))
	for f, q := range c.filters {
		filters[f] = q
	}
	c.mu.RUnlock()

	for filter, qos := range filters {
		token := client.Subscribe(filter, qos, nil)
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Error("failed to restore subscription", "filter", filter, "error", err)
		}
	}
}
