// Package trust maintains per-agent trust scores used to weight incoming
// facts and filter capability discovery. Scores are updated by explicit
// calls only; nothing in this core derives trust from message traffic.
package trust

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"github.com/catcatai/hsp/errors"
	"github.com/catcatai/hsp/natsclient"
)

// DefaultScore is assigned to agents no one has scored yet.
const DefaultScore = 0.5

// Store persists trust scores. The zero implementation is in-memory only;
// a KV-backed store survives node restarts.
type Store interface {
	Load(ctx context.Context) (map[string]float64, error)
	Save(ctx context.Context, aiID string, score float64) error
}

// Manager is the trust score registry.
type Manager struct {
	logger *slog.Logger
	store  Store

	mu     sync.RWMutex
	scores map[string]float64
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore attaches a persistent score store, loaded at construction.
func WithStore(store Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithSeedScores preloads known agents, e.g. from configuration.
func WithSeedScores(scores map[string]float64) Option {
	return func(m *Manager) {
		for id, s := range scores {
			m.scores[id] = clamp(s)
		}
	}
}

// NewManager creates a trust manager. If a store is attached, previously
// persisted scores are loaded; load failure is logged, not fatal.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger: logger.With("component", "trust_manager"),
		scores: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.store != nil {
		persisted, err := m.store.Load(context.Background())
		if err != nil {
			m.logger.Warn("could not load persisted trust scores", "error", err)
		} else {
			m.mu.Lock()
			for id, s := range persisted {
				m.scores[id] = clamp(s)
			}
			m.mu.Unlock()
		}
	}
	return m
}

// GetTrustScore returns the score for an agent, optionally in the context
// of a capability tag. Capability-specific trust is not differentiated in
// this core; the tag is accepted for interface stability. Unknown agents
// get DefaultScore.
func (m *Manager) GetTrustScore(aiID string, capability ...string) float64 {
	_ = capability

	m.mu.RLock()
	defer m.mu.RUnlock()
	if score, ok := m.scores[aiID]; ok {
		return score
	}
	return DefaultScore
}

// SetTrustScore sets an agent's score absolutely, clamped to [0,1].
func (m *Manager) SetTrustScore(aiID string, score float64) {
	m.update(aiID, clamp(score))
}

// AdjustTrustScore applies a delta to an agent's score, clamped to [0,1].
// Unknown agents start from DefaultScore.
func (m *Manager) AdjustTrustScore(aiID string, delta float64) float64 {
	m.mu.Lock()
	current, ok := m.scores[aiID]
	if !ok {
		current = DefaultScore
	}
	next := clamp(current + delta)
	m.scores[aiID] = next
	m.mu.Unlock()

	m.persist(aiID, next)
	return next
}

func (m *Manager) update(aiID string, score float64) {
	m.mu.Lock()
	m.scores[aiID] = score
	m.mu.Unlock()
	m.persist(aiID, score)
}

func (m *Manager) persist(aiID string, score float64) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(context.Background(), aiID, score); err != nil {
		m.logger.Warn("could not persist trust score", "ai_id", aiID, "error", err)
	}
}

// KnownAgents returns every agent with an explicit score.
func (m *Manager) KnownAgents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.scores))
	for id := range m.scores {
		ids = append(ids, id)
	}
	return ids
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// KVStore persists scores in a JetStream key-value bucket, one key per
// agent id.
type KVStore struct {
	kv *natsclient.KVStore
}

// NewKVStore wraps a JetStream KV bucket as a trust Store.
func NewKVStore(kv *natsclient.KVStore) (*KVStore, error) {
	if kv == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "KVStore", "New", "kv bucket")
	}
	return &KVStore{kv: kv}, nil
}

// Load implements Store.
func (s *KVStore) Load(ctx context.Context) (map[string]float64, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "KVStore", "Load", "list keys")
	}

	scores := make(map[string]float64, len(keys))
	for _, key := range keys {
		value, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, errors.Wrap(err, "KVStore", "Load", "read score")
		}
		score, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			return nil, errors.WrapInvalid(err, "KVStore", "Load", "parse score")
		}
		scores[key] = score
	}
	return scores, nil
}

// Save implements Store.
func (s *KVStore) Save(ctx context.Context, aiID string, score float64) error {
	value, _ := json.Marshal(score)
	return s.kv.Put(ctx, aiID, value)
}
