package transport

import (
	"context"
	"sync"

	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/errors"
)

// FakeBroker is an in-memory broker for tests. Connectors attached to the
// same broker see each other's publishes, honoring MQTT wildcard filters.
type FakeBroker struct {
	mu         sync.RWMutex
	connectors []*FakeConnector
}

// NewFakeBroker creates an empty in-memory broker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{}
}

// Connector creates a new connector attached to this broker.
func (b *FakeBroker) Connector() *FakeConnector {
	c := &FakeConnector{
		broker:  b,
		filters: make(map[string]struct{}),
	}
	b.mu.Lock()
	b.connectors = append(b.connectors, c)
	b.mu.Unlock()
	return c
}

func (b *FakeBroker) route(from *FakeConnector, topic string, payload []byte) {
	b.mu.RLock()
	connectors := make([]*FakeConnector, len(b.connectors))
	copy(connectors, b.connectors)
	b.mu.RUnlock()

	for _, c := range connectors {
		if c == from && !c.Loopback {
			continue
		}
		c.deliver(topic, payload)
	}
}

// PublishedMessage records one Publish call on a FakeConnector.
type PublishedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
}

// FakeConnector is an in-memory Connector implementation for tests.
// Zero value is not usable; create through FakeBroker.Connector or
// NewFakeConnector.
type FakeConnector struct {
	broker *FakeBroker

	// Loopback controls whether the connector receives its own publishes,
	// as a broker-backed connector would when subscribed to the topic.
	Loopback bool

	// FailPublish makes Publish return an error, for transport-error paths.
	FailPublish bool

	mu        sync.RWMutex
	connected bool
	handler   MessageHandler
	filters   map[string]struct{}
	published []PublishedMessage
}

// NewFakeConnector creates a standalone fake with its own private broker.
func NewFakeConnector() *FakeConnector {
	c := NewFakeBroker().Connector()
	c.Loopback = true
	return c
}

// Connect implements Connector.
func (c *FakeConnector) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// Disconnect implements Connector.
func (c *FakeConnector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.filters = make(map[string]struct{})
	return nil
}

// IsConnected implements Connector.
func (c *FakeConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetMessageHandler implements Connector.
func (c *FakeConnector) SetMessageHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Publish implements Connector, recording the message and routing it to
// every attached connector with a matching subscription.
func (c *FakeConnector) Publish(topic string, payload []byte, qos byte) error {
	c.mu.Lock()
	if c.FailPublish {
		c.mu.Unlock()
		return errors.ErrPublishFailed
	}
	if !c.connected {
		c.mu.Unlock()
		return errors.ErrNotConnected
	}
	c.published = append(c.published, PublishedMessage{Topic: topic, Payload: payload, QoS: qos})
	c.mu.Unlock()

	c.broker.route(c, topic, payload)
	return nil
}

// Subscribe implements Connector.
func (c *FakeConnector) Subscribe(topic string, _ byte) error {
	if !envelope.ValidFilter(topic) {
		return errors.ErrSubscribeFailed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters[topic] = struct{}{}
	return nil
}

// Unsubscribe implements Connector.
func (c *FakeConnector) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.filters, topic)
	return nil
}

// Published returns a copy of every message published through this connector.
func (c *FakeConnector) Published() []PublishedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PublishedMessage, len(c.published))
	copy(out, c.published)
	return out
}

// PublishedTo returns the published messages whose topic matches exactly.
func (c *FakeConnector) PublishedTo(topic string) []PublishedMessage {
	var out []PublishedMessage
	for _, m := range c.Published() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Inject delivers an inbound message as if it arrived from the wire,
// bypassing subscription filters.
func (c *FakeConnector) Inject(topic string, payload []byte) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func (c *FakeConnector) deliver(topic string, payload []byte) {
	c.mu.RLock()
	handler := c.handler
	connected := c.connected
	var matched bool
	for filter := range c.filters {
		if envelope.MatchTopic(filter, topic) {
			matched = true
			break
		}
	}
	c.mu.RUnlock()

	if connected && matched && handler != nil {
		handler(topic, payload)
	}
}
