// Package service assembles the HSP node: transport, bridge, bus,
// connector, discovery, trust, memory, and the learning pipeline, with
// an explicit construction and shutdown order. Components receive
// their dependencies here; nothing is reached through globals.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/catcatai/hsp/aligner"
	"github.com/catcatai/hsp/analysis"
	"github.com/catcatai/hsp/bridge"
	"github.com/catcatai/hsp/bus"
	"github.com/catcatai/hsp/config"
	"github.com/catcatai/hsp/connector"
	"github.com/catcatai/hsp/discovery"
	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/errors"
	"github.com/catcatai/hsp/health"
	"github.com/catcatai/hsp/learning"
	"github.com/catcatai/hsp/memory"
	"github.com/catcatai/hsp/metric"
	"github.com/catcatai/hsp/natsclient"
	"github.com/catcatai/hsp/pkg/retry"
	"github.com/catcatai/hsp/transport"
	"github.com/catcatai/hsp/trust"
)

// Node is the assembled HSP agent runtime.
type Node struct {
	cfg    config.Config
	logger *slog.Logger

	metrics       *metric.Metrics
	registry      *metric.Registry
	metricsServer *metric.Server
	healthMon     *health.Monitor

	store     memory.Store
	trust     *trust.Manager
	analyzer  *analysis.ContentAnalyzer
	discovery *discovery.Module
	learning  *learning.Manager

	bus       *bus.Bus
	transport transport.Connector
	bridge    *bridge.Bridge
	hsp       *connector.Connector

	capabilities []envelope.CapabilityAdvertisement
	learningOpts []learning.Option

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Option configures a Node before assembly.
type Option func(*Node)

// WithTransport substitutes the external connector, bypassing the
// config-driven construction. Used by tests and embedders.
func WithTransport(conn transport.Connector) Option {
	return func(n *Node) { n.transport = conn }
}

// WithCapabilities sets the capabilities this node advertises.
func WithCapabilities(ads ...envelope.CapabilityAdvertisement) Option {
	return func(n *Node) { n.capabilities = ads }
}

// WithExtraLearningOptions forwards options to the learning manager.
func WithExtraLearningOptions(opts ...learning.Option) Option {
	return func(n *Node) { n.learningOpts = append(n.learningOpts, opts...) }
}

// NewNode builds every component and wires the message flow. The
// returned node is constructed but offline until Start.
func NewNode(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Node, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "Node", "NewNode", "config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "Node", "NewNode", "validate config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Node{
		cfg:    *cfg,
		logger: logger.With("ai_id", cfg.AIID),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.registry = metric.NewRegistry()
	n.metrics = metric.NewMetrics()
	for _, c := range n.metrics.Collectors() {
		if err := n.registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "Node", "NewNode", "register metrics")
		}
	}
	n.healthMon = health.NewMonitor()
	if cfg.Metrics.Enabled {
		n.metricsServer = metric.NewServer(cfg.Metrics.Addr, "/metrics", n.registry).
			WithHealthHandler(n.healthMon.Handler())
	}

	store, err := buildStore(cfg.Memory)
	if err != nil {
		return nil, err
	}
	n.store = store

	n.trust = trust.NewManager(n.logger)
	n.analyzer = analysis.NewContentAnalyzer(n.logger)

	n.discovery, err = discovery.NewModule(n.trust, n.logger,
		discovery.WithStalenessThreshold(cfg.Discovery.StalenessThreshold.Std()),
		discovery.WithSweepInterval(cfg.Discovery.SweepInterval.Std()),
		discovery.WithMetrics(n.metrics))
	if err != nil {
		return nil, err
	}

	if n.transport == nil {
		n.transport, err = buildTransport(cfg, n.logger)
		if err != nil {
			return nil, err
		}
	}

	n.bus = bus.New(n.logger)
	n.bridge, err = bridge.New(n.transport, n.bus, aligner.New(nil), n.logger,
		bridge.WithMetrics(n.metrics))
	if err != nil {
		return nil, err
	}

	n.hsp, err = connector.New(cfg.AIID, n.bus, n.transport,
		connector.WithLogger(n.logger),
		connector.WithMetrics(n.metrics))
	if err != nil {
		return nil, err
	}

	learningOpts := append([]learning.Option{
		learning.WithConfig(cfg.Learning),
		learning.WithPublisher(n.hsp),
		learning.WithMetrics(n.metrics),
	}, n.learningOpts...)
	n.learning, err = learning.NewManager(cfg.AIID, n.store, n.trust, n.analyzer, n.logger, learningOpts...)
	if err != nil {
		return nil, err
	}

	// Inbound flow: discovery consumes advertisements, learning
	// consumes facts.
	n.hsp.OnCapabilityAdvertisement(func(ad *envelope.CapabilityAdvertisement, env *envelope.Envelope) {
		n.discovery.ProcessCapabilityAdvertisement(ad, env.SenderAIID)
	})
	n.hsp.OnFact(func(fact *envelope.Fact, env *envelope.Envelope) {
		if _, err := n.learning.ProcessAndStoreHSPFact(context.Background(), fact, env.SenderAIID); err != nil {
			n.logger.Warn("fact pipeline error", "fact_id", fact.ID, "error", err)
		}
	})

	return n, nil
}

// buildStore constructs the configured memory backend.
func buildStore(cfg config.MemoryConfig) (memory.Store, error) {
	switch cfg.Backend {
	case config.MemoryBackendSQLite:
		return memory.NewSQLiteStore(cfg.Path)
	default:
		return memory.NewInMemoryStore(), nil
	}
}

// buildTransport constructs the configured external connector.
func buildTransport(cfg *config.Config, logger *slog.Logger) (transport.Connector, error) {
	switch cfg.Transport.Kind {
	case config.TransportNATS:
		var clientOpts []natsclient.ClientOption
		clientOpts = append(clientOpts, natsclient.WithName(cfg.AIID), natsclient.WithLogger(logger))
		if cfg.Transport.Username != "" {
			clientOpts = append(clientOpts, natsclient.WithCredentials(cfg.Transport.Username, cfg.Transport.Password))
		}
		client, err := natsclient.NewClient(cfg.Transport.URL, clientOpts...)
		if err != nil {
			return nil, err
		}
		return transport.NewNATSConnector(client, logger)
	default:
		clientID := cfg.Transport.ClientID
		if clientID == "" {
			clientID = cfg.AIID
		}
		var mqttOpts []transport.MQTTOption
		mqttOpts = append(mqttOpts, transport.WithMQTTLogger(logger))
		if cfg.Transport.Username != "" {
			mqttOpts = append(mqttOpts, transport.WithMQTTAuth(cfg.Transport.Username, cfg.Transport.Password))
		}
		return transport.NewMQTTConnector(cfg.Transport.URL, clientID, mqttOpts...)
	}
}

// Start brings the node online: broker session (with startup backoff),
// discovery sweep, metrics endpoint, and the re-advertisement loop.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return errors.WrapInvalid(errors.New("node already started"), "Node", "Start", "state check")
	}

	if err := retry.Do(ctx, retry.Startup(), func() error {
		return n.hsp.Connect(ctx)
	}); err != nil {
		n.healthMon.Set("broker", health.StateUnhealthy, err.Error())
		return errors.Wrap(err, "Node", "Start", "connect broker")
	}
	n.healthMon.Set("broker", health.StateHealthy, "connected")

	if err := n.discovery.Start(ctx); err != nil {
		return errors.Wrap(err, "Node", "Start", "discovery sweep")
	}

	if n.metricsServer != nil {
		if err := n.metricsServer.Start(); err != nil {
			return errors.Wrap(err, "Node", "Start", "metrics server")
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.group, loopCtx = errgroup.WithContext(loopCtx)

	if len(n.capabilities) > 0 {
		n.advertiseCapabilities()
		if interval := n.cfg.Discovery.ReadvertiseInterval.Std(); interval > 0 {
			n.group.Go(func() error {
				n.readvertiseLoop(loopCtx, interval)
				return nil
			})
		}
	}

	n.running = true
	n.logger.Info("node started", "transport", n.cfg.Transport.Kind)
	return nil
}

// advertiseCapabilities announces every local capability once.
func (n *Node) advertiseCapabilities() {
	for i := range n.capabilities {
		ad := n.capabilities[i]
		if ad.AIID == "" {
			ad.AIID = n.cfg.AIID
		}
		if err := n.hsp.PublishCapabilityAdvertisement(&ad); err != nil {
			n.logger.Warn("capability advertisement failed", "capability_id", ad.CapabilityID, "error", err)
		}
	}
}

// readvertiseLoop keeps this node's capabilities fresh in remote
// registries, which would otherwise evict them as stale.
func (n *Node) readvertiseLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.advertiseCapabilities()
		}
	}
}

// Stop takes the node offline in reverse construction order.
func (n *Node) Stop(timeout time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return nil
	}
	n.running = false

	if n.cancel != nil {
		n.cancel()
		n.group.Wait()
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(n.hsp.Disconnect())
	n.healthMon.Set("broker", health.StateUnhealthy, "disconnected")
	n.hsp.Close()
	n.bridge.Close()
	record(n.discovery.Stop(timeout))
	if n.metricsServer != nil {
		record(n.metricsServer.Stop(timeout))
	}
	record(n.store.Close())

	n.logger.Info("node stopped")
	return firstErr
}

// Connector exposes the HSP facade for application use.
func (n *Node) Connector() *connector.Connector { return n.hsp }

// Discovery exposes the capability registry.
func (n *Node) Discovery() *discovery.Module { return n.discovery }

// Learning exposes the fact pipeline.
func (n *Node) Learning() *learning.Manager { return n.learning }

// TrustManager exposes the trust score table.
func (n *Node) TrustManager() *trust.Manager { return n.trust }

// Store exposes the experience store.
func (n *Node) Store() memory.Store { return n.store }

// Health exposes the node health monitor.
func (n *Node) Health() *health.Monitor { return n.healthMon }
