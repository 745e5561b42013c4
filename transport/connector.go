// Package transport provides the external connector: the wire side of the
// HSP node. A connector moves opaque bytes between the node and a pub/sub
// broker. Topic filters follow MQTT convention: "+" matches one segment,
// "#" matches all remaining segments.
//
// Routing to multiple logical consumers is the message bridge's job; a
// connector exposes exactly one inbound callback slot. Connectors do not
// auto-retry failed connects; the caller owns retry policy.
package transport

import "context"

// MessageHandler receives every inbound message from the wire.
type MessageHandler func(topic string, payload []byte)

// QoS levels in MQTT terms. The NATS connector treats every level as
// at-most-once delivery; the acknowledgement protocol above this layer
// provides at-least-once semantics where requested.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
	QoSExactlyOnce byte = 2
)

// Connector is the single interface the bridge and node runtime use to
// reach the wire.
type Connector interface {
	// Connect establishes the network session. It does not retry.
	Connect(ctx context.Context) error

	// Disconnect tears down the session and all subscriptions. In-flight
	// inbound callbacks are not awaited.
	Disconnect() error

	// Publish sends payload bytes to a concrete topic.
	Publish(topic string, payload []byte, qos byte) error

	// Subscribe registers interest in a topic filter (wildcards allowed).
	Subscribe(topic string, qos byte) error

	// Unsubscribe removes interest in a topic filter.
	Unsubscribe(topic string) error

	// SetMessageHandler installs the single inbound callback. Must be
	// called before Connect; later calls replace the handler.
	SetMessageHandler(handler MessageHandler)

	// IsConnected reports whether the session is currently usable.
	IsConnected() bool
}
