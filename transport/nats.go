package transport

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/catcatai/hsp/errors"
	"github.com/catcatai/hsp/natsclient"
)

// NATSConnector implements Connector over NATS by mapping HSP topic
// conventions onto subjects: "/" becomes ".", "+" becomes "*", and a
// trailing "#" becomes ">". Inbound subjects are mapped back before the
// handler sees them, so consumers only ever deal in HSP topics.
type NATSConnector struct {
	client *natsclient.Client
	logger *slog.Logger

	mu      sync.RWMutex
	handler MessageHandler
	subs    map[string]*nats.Subscription // keyed by HSP topic filter
}

// NewNATSConnector wraps an existing NATS client.
func NewNATSConnector(client *natsclient.Client, logger *slog.Logger) (*NATSConnector, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "NATSConnector", "New", "nats client")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSConnector{
		client: client,
		logger: logger.With("component", "nats_connector"),
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// TopicToSubject converts an HSP topic or filter to a NATS subject.
func TopicToSubject(topic string) string {
	parts := strings.Split(topic, "/")
	for i, p := range parts {
		switch p {
		case "+":
			parts[i] = "*"
		case "#":
			parts[i] = ">"
		}
	}
	return strings.Join(parts, ".")
}

// SubjectToTopic converts a concrete NATS subject back to an HSP topic.
func SubjectToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

// SetMessageHandler implements Connector.
func (c *NATSConnector) SetMessageHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Connect implements Connector.
func (c *NATSConnector) Connect(ctx context.Context) error {
	return c.client.Connect(ctx)
}

// Disconnect implements Connector.
func (c *NATSConnector) Disconnect() error {
	c.mu.Lock()
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()
	return c.client.Close()
}

// IsConnected implements Connector.
func (c *NATSConnector) IsConnected() bool {
	return c.client.IsHealthy()
}

// Publish implements Connector. NATS is at-most-once; qos is accepted for
// interface compatibility and ignored.
func (c *NATSConnector) Publish(topic string, payload []byte, _ byte) error {
	return c.client.Publish(TopicToSubject(topic), payload)
}

// Subscribe implements Connector.
func (c *NATSConnector) Subscribe(topic string, _ byte) error {
	subject := TopicToSubject(topic)

	sub, err := c.client.Subscribe(subject, func(msg *nats.Msg) {
		c.mu.RLock()
		handler := c.handler
		c.mu.RUnlock()

		if handler == nil {
			c.logger.Warn("inbound message with no handler installed", "subject", msg.Subject)
			return
		}
		handler(SubjectToTopic(msg.Subject), msg.Data)
	})
	if err != nil {
		return errors.Wrap(err, "NATSConnector", "Subscribe", "subscribe subject")
	}

	c.mu.Lock()
	c.subs[topic] = sub
	c.mu.Unlock()
	return nil
}

// Unsubscribe implements Connector.
func (c *NATSConnector) Unsubscribe(topic string) error {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return errors.Wrap(err, "NATSConnector", "Unsubscribe", "unsubscribe subject")
	}
	return nil
}
