// Package connector provides the HSP facade applications use: typed
// publish/request/result operations, per-type callback dispatch, and the
// acknowledgement protocol. It never touches the wire directly; outbound
// envelopes go through the internal bus to the message bridge, inbound
// envelopes arrive on the typed external channels the bridge feeds.
package connector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catcatai/hsp/bridge"
	"github.com/catcatai/hsp/bus"
	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/errors"
	"github.com/catcatai/hsp/metric"
	"github.com/catcatai/hsp/transport"
)

// Callback types for the four consumer-facing message kinds. Callbacks
// receive the decoded payload and the full envelope it arrived in.
type (
	FactCallback        func(fact *envelope.Fact, env *envelope.Envelope)
	CapabilityCallback  func(ad *envelope.CapabilityAdvertisement, env *envelope.Envelope)
	TaskRequestCallback func(req *envelope.TaskRequest, env *envelope.Envelope)
	TaskResultCallback  func(res *envelope.TaskResult, env *envelope.Envelope)
	AckCallback         func(ack *envelope.Acknowledgement, env *envelope.Envelope)
)

// Connector is the HSP facade for one agent identity.
type Connector struct {
	aiID      string
	bus       *bus.Bus
	transport transport.Connector
	registry  *envelope.PayloadRegistry
	logger    *slog.Logger
	metrics   *metric.Metrics

	mu          sync.RWMutex
	isConnected bool
	factCbs     []FactCallback
	capCbs      []CapabilityCallback
	requestCbs  []TaskRequestCallback
	resultCbs   []TaskResultCallback
	ackCbs      []AckCallback
	pending     map[string]time.Time // outstanding request correlation ids
	subs        []*bus.Subscription
}

// Option configures a Connector.
type Option func(*Connector)

// WithMetrics attaches node metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Connector) {
		c.metrics = m
	}
}

// WithLogger sets the connector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		c.logger = logger.With("component", "hsp_connector", "ai_id", c.aiID)
	}
}

// WithPayloadRegistry overrides the payload registry used for dispatch.
func WithPayloadRegistry(reg *envelope.PayloadRegistry) Option {
	return func(c *Connector) {
		c.registry = reg
	}
}

// New creates a connector for the given agent id and subscribes it to the
// typed internal channels. The transport is used for session management;
// outbound traffic flows through the bus to the bridge.
func New(aiID string, internalBus *bus.Bus, conn transport.Connector, opts ...Option) (*Connector, error) {
	if aiID == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Connector", "New", "ai id")
	}
	if internalBus == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "Connector", "New", "internal bus")
	}
	if conn == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "Connector", "New", "transport")
	}

	c := &Connector{
		aiID:      aiID,
		bus:       internalBus,
		transport: conn,
		registry:  envelope.DefaultRegistry(),
		logger:    slog.Default().With("component", "hsp_connector", "ai_id", aiID),
		pending:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.subs = append(c.subs,
		internalBus.Subscribe(bridge.ExternalChannel(bridge.SuffixFact), c.dispatchFact),
		internalBus.Subscribe(bridge.ExternalChannel(bridge.SuffixCapabilityAdvertisement), c.dispatchCapability),
		internalBus.Subscribe(bridge.ExternalChannel(bridge.SuffixTaskRequest), c.dispatchTaskRequest),
		internalBus.Subscribe(bridge.ExternalChannel(bridge.SuffixTaskResult), c.dispatchTaskResult),
		internalBus.Subscribe(bridge.ExternalChannel(bridge.SuffixAcknowledgement), c.dispatchAck),
	)
	return c, nil
}

// AIID returns the agent identity this connector publishes as.
func (c *Connector) AIID() string { return c.aiID }

// IsConnected reports the connection state. The flag is plain settable
// state; only the connector's own connect/disconnect flows should mutate it.
func (c *Connector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// Connect establishes the transport session and subscribes to the standard
// HSP topics for this agent. It does not retry; the caller owns policy.
func (c *Connector) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return errors.Wrap(err, "Connector", "Connect", "transport session")
	}

	standardFilters := []string{
		envelope.KnowledgeFactsTopic + "/#",
		"hsp/capabilities/advertisements/+",
		envelope.RequestTopic(c.aiID),
		envelope.ResultTopic(c.aiID),
		envelope.AckTopic(c.aiID),
	}
	for _, filter := range standardFilters {
		if err := c.transport.Subscribe(filter, transport.QoSAtLeastOnce); err != nil {
			return errors.Wrap(err, "Connector", "Connect", "standard subscriptions")
		}
	}

	c.mu.Lock()
	c.isConnected = true
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.BrokerConnected.Set(1)
	}
	c.logger.Info("HSP connector online")
	return nil
}

// Disconnect tears down the transport session. Outstanding callback
// goroutines are not awaited.
func (c *Connector) Disconnect() error {
	err := c.transport.Disconnect()

	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.BrokerConnected.Set(0)
	}
	c.logger.Info("HSP connector offline")
	return err
}

// Close detaches the connector from the internal bus.
func (c *Connector) Close() {
	for _, sub := range c.subs {
		c.bus.Unsubscribe(sub)
	}
	c.subs = nil
}

// Subscribe adds an extra wire subscription beyond the standard set.
func (c *Connector) Subscribe(filter string) error {
	return c.transport.Subscribe(filter, transport.QoSAtLeastOnce)
}

// PublishFact publishes a fact to the given topic, addressed to all
// agents, without requesting acknowledgement.
func (c *Connector) PublishFact(fact *envelope.Fact, topic string) error {
	env, err := envelope.Seal(fact, envelope.PatternPublish, c.aiID, "all",
		envelope.WithQoS(envelope.QoSParameters{RequiresAck: false}))
	if err != nil {
		return errors.Wrap(err, "Connector", "PublishFact", "seal envelope")
	}
	c.publishEnvelope(topic, env, transport.QoSAtLeastOnce)
	return nil
}

// SendTaskRequest publishes a task request to the target agent and returns
// the freshly generated correlation id the result will carry. Targets
// containing "/" are treated as full topics.
func (c *Connector) SendTaskRequest(req *envelope.TaskRequest, target string) (string, error) {
	correlationID := uuid.New().String()

	env, err := envelope.Seal(req, envelope.PatternRequest, c.aiID, target,
		envelope.WithCorrelationID(correlationID),
		envelope.WithQoS(envelope.QoSParameters{RequiresAck: true}))
	if err != nil {
		return "", errors.Wrap(err, "Connector", "SendTaskRequest", "seal envelope")
	}

	c.mu.Lock()
	c.pending[correlationID] = time.Now()
	c.mu.Unlock()

	c.publishEnvelope(envelope.RequestTopic(target), env, transport.QoSAtLeastOnce)
	return correlationID, nil
}

// SendTaskResult publishes a task result correlated to the caller-supplied
// correlation id from the originating request.
func (c *Connector) SendTaskResult(res *envelope.TaskResult, target, correlationID string) error {
	if correlationID == "" {
		return errors.WrapInvalid(errors.ErrMissingCorrelation, "Connector", "SendTaskResult", "correlation check")
	}
	env, err := envelope.Seal(res, envelope.PatternResponse, c.aiID, target,
		envelope.WithCorrelationID(correlationID),
		envelope.WithQoS(envelope.QoSParameters{RequiresAck: true}))
	if err != nil {
		return errors.Wrap(err, "Connector", "SendTaskResult", "seal envelope")
	}
	c.publishEnvelope(envelope.ResultTopic(target), env, transport.QoSAtLeastOnce)
	return nil
}

// PublishCapabilityAdvertisement announces one of this agent's
// capabilities on its advertisement topic.
func (c *Connector) PublishCapabilityAdvertisement(ad *envelope.CapabilityAdvertisement) error {
	env, err := envelope.Seal(ad, envelope.PatternPublish, c.aiID, "all")
	if err != nil {
		return errors.Wrap(err, "Connector", "PublishCapabilityAdvertisement", "seal envelope")
	}
	c.publishEnvelope(envelope.CapabilityTopic(c.aiID), env, transport.QoSAtLeastOnce)
	return nil
}

// PendingRequests returns the correlation ids of requests still waiting
// for a result.
func (c *Connector) PendingRequests() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

// Callback registration. Handlers run on the dispatch path; a panicking
// handler is isolated by the internal bus semantics re-applied here.

// OnFact registers a callback for inbound facts.
func (c *Connector) OnFact(cb FactCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factCbs = append(c.factCbs, cb)
}

// OnCapabilityAdvertisement registers a callback for inbound advertisements.
func (c *Connector) OnCapabilityAdvertisement(cb CapabilityCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capCbs = append(c.capCbs, cb)
}

// OnTaskRequest registers a callback for inbound task requests.
func (c *Connector) OnTaskRequest(cb TaskRequestCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCbs = append(c.requestCbs, cb)
}

// OnTaskResult registers a callback for inbound task results.
func (c *Connector) OnTaskResult(cb TaskResultCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultCbs = append(c.resultCbs, cb)
}

// OnAcknowledgement registers a callback for inbound acknowledgements.
func (c *Connector) OnAcknowledgement(cb AckCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackCbs = append(c.ackCbs, cb)
}

// publishEnvelope hands an envelope to the bridge via the internal
// outbound channel. Transport failures are logged by the bridge; they are
// never raised across this boundary.
func (c *Connector) publishEnvelope(topic string, env *envelope.Envelope, qos byte) {
	c.bus.Publish(bridge.ChannelInternalOutbound, &bridge.OutboundMessage{
		Topic:    topic,
		QoS:      qos,
		Envelope: env,
	})
}
