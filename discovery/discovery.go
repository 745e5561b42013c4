// Package discovery maintains the registry of remote capability
// advertisements and answers trust-weighted, staleness-filtered lookups.
//
// Staleness is a read-time predicate, not only a sweep outcome: an entry
// past the threshold is excluded from every query even if the periodic
// sweep has not removed it yet.
package discovery

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/errors"
	"github.com/catcatai/hsp/metric"
)

// DefaultStalenessThreshold is how long an advertisement stays fresh
// without re-advertisement.
const DefaultStalenessThreshold = 600 * time.Second

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 60 * time.Second

// TrustProvider supplies per-agent trust scores for query filtering.
type TrustProvider interface {
	GetTrustScore(aiID string, capability ...string) float64
}

// Capability is a resident advertisement plus the receiver-side freshness
// and provenance bookkeeping.
type Capability struct {
	Advertisement envelope.CapabilityAdvertisement
	LastSeen      time.Time
	// SenderAIID is the transport-level sender, which may differ from the
	// advertised owner when advertisements are relayed.
	SenderAIID string
}

// FindOptions filters a capability query. Zero values mean "no filter".
type FindOptions struct {
	CapabilityID string
	Name         string
	// Tags must ALL be present on a capability for it to match.
	Tags []string
	// MinTrustScore excludes capabilities whose advertised owner scores
	// below this. Trust is evaluated against the owner ai_id, not the
	// transport sender.
	MinTrustScore float64
	// SortByTrust orders results by owner trust, highest first.
	SortByTrust bool
}

// Module is the service discovery registry.
type Module struct {
	trust              TrustProvider
	logger             *slog.Logger
	metrics            *metric.Metrics
	stalenessThreshold time.Duration
	sweepInterval      time.Duration
	now                func() time.Time

	// mu guards known. It is shared by the message-dispatch path, query
	// callers, and the background sweep.
	mu    sync.Mutex
	known map[string]*Capability

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Module.
type Option func(*Module)

// WithStalenessThreshold overrides the default staleness threshold.
func WithStalenessThreshold(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.stalenessThreshold = d
		}
	}
}

// WithSweepInterval overrides the default sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithMetrics attaches node metrics.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(m *Module) {
		m.metrics = metrics
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		m.now = now
	}
}

// NewModule creates a discovery module. The trust provider is required.
func NewModule(trust TrustProvider, logger *slog.Logger, opts ...Option) (*Module, error) {
	if trust == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "Module", "NewModule", "trust provider")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Module{
		trust:              trust,
		logger:             logger.With("component", "service_discovery"),
		stalenessThreshold: DefaultStalenessThreshold,
		sweepInterval:      DefaultSweepInterval,
		now:                time.Now,
		known:              make(map[string]*Capability),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ProcessCapabilityAdvertisement registers a new advertisement or
// refreshes an existing one in place. Re-advertisement updates LastSeen
// without creating a new identity.
func (m *Module) ProcessCapabilityAdvertisement(ad *envelope.CapabilityAdvertisement, senderAIID string) {
	if ad == nil {
		return
	}
	if err := ad.Validate(); err != nil {
		m.logger.Warn("ignoring invalid capability advertisement", "error", err)
		return
	}

	m.mu.Lock()
	existing, ok := m.known[ad.CapabilityID]
	if ok {
		existing.Advertisement = *ad
		existing.LastSeen = m.now()
		existing.SenderAIID = senderAIID
	} else {
		m.known[ad.CapabilityID] = &Capability{
			Advertisement: *ad,
			LastSeen:      m.now(),
			SenderAIID:    senderAIID,
		}
	}
	count := len(m.known)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.KnownCapabilities.Set(float64(count))
	}
	if ok {
		m.logger.Debug("capability refreshed", "capability_id", ad.CapabilityID, "ai_id", ad.AIID)
	} else {
		m.logger.Info("capability registered",
			"capability_id", ad.CapabilityID,
			"ai_id", ad.AIID,
			"name", ad.Name)
	}
}

// FindCapabilities returns fresh capabilities matching the options.
// Stale entries are excluded before any filter is applied, then filters
// run in the order id, name, tags, trust.
func (m *Module) FindCapabilities(opts FindOptions) []Capability {
	cutoff := m.now().Add(-m.stalenessThreshold)

	m.mu.Lock()
	fresh := make([]Capability, 0, len(m.known))
	for _, entry := range m.known {
		if entry.LastSeen.After(cutoff) {
			fresh = append(fresh, *entry)
		}
	}
	m.mu.Unlock()

	results := fresh[:0]
	for _, candidate := range fresh {
		ad := candidate.Advertisement
		if opts.CapabilityID != "" && ad.CapabilityID != opts.CapabilityID {
			continue
		}
		if opts.Name != "" && ad.Name != opts.Name {
			continue
		}
		if !hasAllTags(ad.Tags, opts.Tags) {
			continue
		}
		if opts.MinTrustScore > 0 && m.trust.GetTrustScore(ad.AIID) < opts.MinTrustScore {
			continue
		}
		results = append(results, candidate)
	}

	if opts.SortByTrust {
		sort.SliceStable(results, func(i, j int) bool {
			return m.trust.GetTrustScore(results[i].Advertisement.AIID) >
				m.trust.GetTrustScore(results[j].Advertisement.AIID)
		})
	}
	return results
}

// GetCapabilityByID returns a capability by id, re-checking staleness at
// read time. A stale entry returns nil even if the sweep has not yet
// removed it.
func (m *Module) GetCapabilityByID(capabilityID string) *Capability {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.known[capabilityID]
	if !ok {
		return nil
	}
	if m.now().Sub(entry.LastSeen) > m.stalenessThreshold {
		return nil
	}
	copied := *entry
	return &copied
}

// Count returns the number of resident entries, stale or not.
func (m *Module) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.known)
}

// Start launches the periodic staleness sweep. Stop cancels it.
func (m *Module) Start(ctx context.Context) error {
	if m.cancel != nil {
		return errors.WrapInvalid(errors.New("sweep already running"), "Module", "Start", "state check")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
	return nil
}

// Stop terminates the sweep and waits for it to exit.
func (m *Module) Stop(timeout time.Duration) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.cancel = nil

	select {
	case <-m.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.New("sweep did not stop"), "Module", "Stop", "await sweep")
	}
}

// Sweep removes every stale entry, returning how many were evicted.
func (m *Module) Sweep() int {
	cutoff := m.now().Add(-m.stalenessThreshold)

	m.mu.Lock()
	var evicted int
	for id, entry := range m.known {
		if !entry.LastSeen.After(cutoff) {
			delete(m.known, id)
			evicted++
		}
	}
	count := len(m.known)
	m.mu.Unlock()

	if evicted > 0 {
		m.logger.Info("evicted stale capabilities", "count", evicted)
		if m.metrics != nil {
			m.metrics.StaleEvictions.Add(float64(evicted))
			m.metrics.KnownCapabilities.Set(float64(count))
		}
	}
	return evicted
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, tag := range have {
		set[tag] = struct{}{}
	}
	for _, tag := range want {
		if _, ok := set[tag]; !ok {
			return false
		}
	}
	return true
}
