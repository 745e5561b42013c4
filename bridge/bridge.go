// Package bridge glues the external connector (wire) to the internal bus
// (process). Inbound messages are parsed, aligned, and fanned out onto
// typed internal channels; outbound messages published on the internal
// outbound channel are written to the wire.
package bridge

import (
	"encoding/json"
	"log/slog"

	"github.com/catcatai/hsp/aligner"
	"github.com/catcatai/hsp/bus"
	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/errors"
	"github.com/catcatai/hsp/metric"
	"github.com/catcatai/hsp/transport"
)

// Internal bus channel names.
const (
	// ChannelExternalPrefix prefixes the typed channels inbound envelopes
	// are fanned out on, e.g. "hsp.external.fact".
	ChannelExternalPrefix = "hsp.external."

	// ChannelInternalOutbound carries locally-originated messages that
	// must reach the wire.
	ChannelInternalOutbound = "hsp.internal.message"
)

// Typed channel suffixes.
const (
	SuffixFact                    = "fact"
	SuffixCapabilityAdvertisement = "capability_advertisement"
	SuffixTaskRequest             = "task_request"
	SuffixTaskResult              = "task_result"
	SuffixAcknowledgement         = "acknowledgement"
)

// typeChannelMap is the static mapping from wire message types to internal
// channel suffixes. Unmapped types are logged and dropped.
var typeChannelMap = map[string]string{
	envelope.TypeFact:                    SuffixFact,
	envelope.TypeCapabilityAdvertisement: SuffixCapabilityAdvertisement,
	envelope.TypeTaskRequest:             SuffixTaskRequest,
	envelope.TypeTaskResult:              SuffixTaskResult,
	envelope.TypeAcknowledgement:         SuffixAcknowledgement,
}

// ExternalChannel returns the internal channel for a typed suffix.
func ExternalChannel(suffix string) string {
	return ChannelExternalPrefix + suffix
}

// OutboundMessage is the unit published on ChannelInternalOutbound: an
// envelope bound for a concrete wire topic.
type OutboundMessage struct {
	Topic    string
	QoS      byte
	Envelope *envelope.Envelope
}

// Bridge translates between the external connector and the internal bus.
type Bridge struct {
	connector transport.Connector
	bus       *bus.Bus
	aligner   *aligner.Aligner
	logger    *slog.Logger
	metrics   *metric.Metrics

	outboundSub *bus.Subscription
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithMetrics attaches node metrics to the bridge.
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// New wires a bridge between connector and internal bus. The bridge
// installs itself as the connector's single inbound handler and subscribes
// to the internal outbound channel.
func New(conn transport.Connector, internalBus *bus.Bus, algn *aligner.Aligner,
	logger *slog.Logger, opts ...Option) (*Bridge, error) {
	if conn == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "Bridge", "New", "connector")
	}
	if internalBus == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "Bridge", "New", "internal bus")
	}
	if algn == nil {
		algn = aligner.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		connector: conn,
		bus:       internalBus,
		aligner:   algn,
		logger:    logger.With("component", "message_bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}

	conn.SetMessageHandler(b.HandleExternalMessage)
	b.outboundSub = internalBus.Subscribe(ChannelInternalOutbound, b.handleInternalMessage)
	return b, nil
}

// Close detaches the bridge from the internal bus.
func (b *Bridge) Close() {
	b.bus.Unsubscribe(b.outboundSub)
}

// HandleExternalMessage processes one raw inbound wire message. Malformed
// JSON, alignment failures, and unmapped message types are logged and
// dropped; processing of subsequent messages is never affected. No NACK is
// generated on alignment failure in this protocol version.
func (b *Bridge) HandleExternalMessage(topic string, payload []byte) {
	if !json.Valid(payload) {
		b.logger.Warn("dropping malformed JSON from wire", "topic", topic)
		b.dropped("malformed_json")
		return
	}

	env, alnErr := b.aligner.Align(payload)
	if alnErr != nil {
		b.logger.Warn("dropping message that failed alignment",
			"topic", topic,
			"error_code", alnErr.Code,
			"error", alnErr.Message,
			"location", alnErr.Context.Location)
		b.dropped("alignment")
		if b.metrics != nil {
			b.metrics.AlignmentFailures.WithLabelValues(alnErr.Code).Inc()
		}
		return
	}

	suffix, ok := typeChannelMap[env.MessageType]
	if !ok {
		b.logger.Warn("dropping message with unmapped type",
			"topic", topic,
			"message_type", env.MessageType)
		b.dropped("unmapped_type")
		return
	}

	if b.metrics != nil {
		b.metrics.MessagesReceived.WithLabelValues(env.MessageType).Inc()
	}
	b.bus.Publish(ExternalChannel(suffix), env)
}

// handleInternalMessage is the outbound path: envelopes published on
// ChannelInternalOutbound are serialized and written to the wire.
func (b *Bridge) handleInternalMessage(message any) {
	out, ok := message.(*OutboundMessage)
	if !ok || out.Envelope == nil {
		b.logger.Error("outbound channel received unexpected message",
			"got", message)
		return
	}

	data, err := json.Marshal(out.Envelope)
	if err != nil {
		b.logger.Error("failed to serialize outbound envelope",
			"message_id", out.Envelope.MessageID,
			"error", err)
		return
	}

	if err := b.connector.Publish(out.Topic, data, out.QoS); err != nil {
		b.logger.Error("failed to publish outbound envelope",
			"topic", out.Topic,
			"message_id", out.Envelope.MessageID,
			"error", err)
		return
	}

	if b.metrics != nil {
		b.metrics.MessagesPublished.WithLabelValues(out.Envelope.MessageType).Inc()
	}
}

func (b *Bridge) dropped(reason string) {
	if b.metrics != nil {
		b.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	}
}
