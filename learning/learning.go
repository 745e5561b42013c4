// Package learning consumes facts, scores them, and writes the ones
// that clear the quality gate to memory. Locally extracted facts can
// additionally be shared over HSP; incoming HSP facts pass through a
// trust-weighted scoring pipeline before storage.
package learning

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/catcatai/hsp/analysis"
	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/errors"
	"github.com/catcatai/hsp/memory"
	"github.com/catcatai/hsp/metric"
)

// DataTypeHSPFact is the memory data type for facts learned over HSP.
const DataTypeHSPFact = "hsp_learned_fact"

// DataTypeLocalFact is the memory data type for locally extracted facts.
const DataTypeLocalFact = "learned_fact"

// Composite score weights. Provenance trust dominates; novelty and
// corroborating evidence share the remainder.
const (
	weightEffective = 0.7
	weightNovelty   = 0.15
	weightEvidence  = 0.15

	noveltyChanged   = 0.8
	noveltyUnchanged = 0.5

	evidenceBase    = 0.5
	evidencePerFact = 0.1
	evidenceCap     = 5
)

// Config carries the quality-gate thresholds. Sharing uses a stricter
// threshold than storing: a fact good enough to keep is not
// automatically good enough to broadcast.
type Config struct {
	MinFactConfidenceToStore    float64 `yaml:"min_fact_confidence_to_store"`
	MinFactConfidenceToShare    float64 `yaml:"min_fact_confidence_to_share"`
	MinHSPFactConfidenceToStore float64 `yaml:"min_hsp_fact_confidence_to_store"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinFactConfidenceToStore:    0.6,
		MinFactConfidenceToShare:    0.8,
		MinHSPFactConfidenceToStore: 0.55,
	}
}

// ExtractedFact is one fact pulled out of free text by an extractor.
type ExtractedFact struct {
	FactType   string
	Content    string
	Confidence float64
}

// FactExtractor turns raw text into candidate facts. Extraction is a
// collaborator concern; the manager only applies the gates.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, text, userID string) ([]ExtractedFact, error)
}

// TrustProvider resolves an agent's trust score.
type TrustProvider interface {
	GetTrustScore(aiID string, capability ...string) float64
}

// Analyzer reports whether a fact changed the semantic graph.
type Analyzer interface {
	ProcessHSPFactContent(fact *envelope.Fact, senderAIID string) analysis.Result
}

// Publisher shares a fact over HSP. Satisfied by the HSP connector.
type Publisher interface {
	PublishFact(fact *envelope.Fact, topic string) error
}

// Scores holds every intermediate value of the HSP fact pipeline so
// stored records stay auditable.
type Scores struct {
	Original  float64
	Trust     float64
	Effective float64
	Novelty   float64
	Evidence  float64
	Final     float64
}

// Outcome describes what the pipeline did with one incoming fact.
type Outcome struct {
	Stored       bool
	Corroborated bool
	RecordID     string
	Scores       Scores
}

// Manager runs the fact-quality pipeline.
type Manager struct {
	aiID      string
	store     memory.Store
	trust     TrustProvider
	analyzer  Analyzer
	extractor FactExtractor
	publisher Publisher
	cfg       Config
	metrics   *metric.Metrics
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithExtractor installs the fact extractor used by
// ProcessAndStoreLearnables.
func WithExtractor(e FactExtractor) Option {
	return func(m *Manager) { m.extractor = e }
}

// WithPublisher enables sharing of high-confidence local facts.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithConfig overrides the default thresholds.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithMetrics attaches pipeline counters.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a learning manager. Store, trust, and analyzer
// are required.
func NewManager(aiID string, store memory.Store, trust TrustProvider, analyzer Analyzer, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if aiID == "" {
		return nil, errors.WrapInvalid(errors.New("ai id is required"), "Manager", "NewManager", "validate")
	}
	if store == nil || trust == nil || analyzer == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "Manager", "NewManager", "store, trust, and analyzer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		aiID:     aiID,
		store:    store,
		trust:    trust,
		analyzer: analyzer,
		cfg:      DefaultConfig(),
		logger:   logger.With("component", "learning_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ProcessAndStoreLearnables extracts facts from text, stores those
// above the store threshold, and shares those above the stricter share
// threshold. Returns the ids of stored records.
func (m *Manager) ProcessAndStoreLearnables(ctx context.Context, text, userID string) ([]string, error) {
	if m.extractor == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "Manager", "ProcessAndStoreLearnables", "no fact extractor configured")
	}

	facts, err := m.extractor.ExtractFacts(ctx, text, userID)
	if err != nil {
		return nil, errors.Wrap(err, "Manager", "ProcessAndStoreLearnables", "extract facts")
	}

	var stored []string
	for _, f := range facts {
		if f.Confidence < m.cfg.MinFactConfidenceToStore {
			m.logger.Debug("fact below store threshold", "fact_type", f.FactType, "confidence", f.Confidence)
			continue
		}

		factID := uuid.New().String()
		shared := m.publisher != nil && f.Confidence >= m.cfg.MinFactConfidenceToShare

		id, err := m.store.StoreExperience(ctx, f.Content, DataTypeLocalFact, map[string]any{
			"hsp_fact_id":    factID,
			"fact_type":      f.FactType,
			"confidence":     f.Confidence,
			"user_id":        userID,
			"shared_via_hsp": shared,
		})
		if err != nil {
			return stored, errors.Wrap(err, "Manager", "ProcessAndStoreLearnables", "store fact")
		}
		stored = append(stored, id)
		if m.metrics != nil {
			m.metrics.FactsStored.Inc()
		}

		if shared {
			m.shareFact(factID, f)
		}
	}
	return stored, nil
}

// shareFact publishes a locally learned fact. Publish failures are
// logged, never surfaced: sharing is best effort.
func (m *Manager) shareFact(factID string, f ExtractedFact) {
	fact := &envelope.Fact{
		ID:               factID,
		StatementType:    envelope.StatementNaturalLanguage,
		StatementNL:      f.Content,
		SourceAIID:       m.aiID,
		TimestampCreated: time.Now().UTC(),
		ConfidenceScore:  f.Confidence,
	}
	if err := m.publisher.PublishFact(fact, envelope.KnowledgeFactsTopic); err != nil {
		m.logger.Warn("failed to share fact", "fact_id", factID, "error", err)
		return
	}
	if m.metrics != nil {
		m.metrics.FactsShared.Inc()
	}
	m.logger.Info("shared learned fact", "fact_id", factID, "confidence", f.Confidence)
}

// ProcessAndStoreHSPFact runs the full scoring pipeline on an incoming
// fact. A repeat of an already stored (fact id, originator) pair only
// bumps its corroboration counter. A fact failing the quality gate is
// discarded silently; that is a normal outcome, not an error.
func (m *Manager) ProcessAndStoreHSPFact(ctx context.Context, fact *envelope.Fact, senderAIID string) (Outcome, error) {
	if fact == nil {
		return Outcome{}, errors.WrapInvalid(errors.New("fact is nil"), "Manager", "ProcessAndStoreHSPFact", "validate")
	}
	// Facts we originated come back around on the shared topic; never
	// re-learn them.
	if fact.SourceAIID == m.aiID {
		m.logger.Debug("ignoring own fact", "fact_id", fact.ID)
		return Outcome{}, nil
	}

	existing, err := m.store.QueryCoreMemory(ctx, memory.Query{
		DataType: DataTypeHSPFact,
		MetadataEquals: map[string]any{
			"hsp_fact_id":          fact.ID,
			"hsp_originator_ai_id": fact.SourceAIID,
		},
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "Manager", "ProcessAndStoreHSPFact", "dedup query")
	}
	if len(existing) > 0 {
		rec := existing[0]
		if err := m.store.IncrementMetadataField(ctx, rec.ID, "corroboration_count"); err != nil {
			return Outcome{}, errors.Wrap(err, "Manager", "ProcessAndStoreHSPFact", "increment corroboration")
		}
		if m.metrics != nil {
			m.metrics.FactsCorroborated.Inc()
		}
		m.logger.Debug("corroborated known fact", "fact_id", fact.ID, "record_id", rec.ID)
		return Outcome{Corroborated: true, RecordID: rec.ID}, nil
	}

	scores := m.scoreFact(ctx, fact, senderAIID)
	if scores.Final < m.cfg.MinHSPFactConfidenceToStore {
		if m.metrics != nil {
			m.metrics.FactsDiscarded.Inc()
		}
		m.logger.Debug("fact below quality gate",
			"fact_id", fact.ID,
			"final_score", scores.Final,
			"threshold", m.cfg.MinHSPFactConfidenceToStore)
		return Outcome{Scores: scores}, nil
	}

	id, err := m.store.StoreExperience(ctx, fact.StatementText(), DataTypeHSPFact, map[string]any{
		"hsp_fact_id":          fact.ID,
		"hsp_originator_ai_id": fact.SourceAIID,
		"hsp_sender_ai_id":     senderAIID,
		"confidence_original":  scores.Original,
		"trust_at_storage":     scores.Trust,
		"novelty_score":        scores.Novelty,
		"evidence_score":       scores.Evidence,
		"final_score":          scores.Final,
		"corroboration_count":  1,
	})
	if err != nil {
		return Outcome{Scores: scores}, errors.Wrap(err, "Manager", "ProcessAndStoreHSPFact", "store fact")
	}
	if m.metrics != nil {
		m.metrics.FactsStored.Inc()
	}
	m.logger.Info("stored HSP fact",
		"fact_id", fact.ID,
		"record_id", id,
		"originator", fact.SourceAIID,
		"final_score", scores.Final)
	return Outcome{Stored: true, RecordID: id, Scores: scores}, nil
}

// scoreFact computes every component of the composite score.
func (m *Manager) scoreFact(ctx context.Context, fact *envelope.Fact, senderAIID string) Scores {
	s := Scores{
		Original: fact.ConfidenceScore,
		Trust:    m.trust.GetTrustScore(senderAIID, fact.Tags...),
	}
	s.Effective = s.Original * s.Trust

	if m.analyzer.ProcessHSPFactContent(fact, senderAIID).UpdatedGraph {
		s.Novelty = noveltyChanged
	} else {
		s.Novelty = noveltyUnchanged
	}

	s.Evidence = m.evidenceScore(ctx, fact)
	s.Final = weightEffective*s.Effective + weightNovelty*s.Novelty + weightEvidence*s.Evidence
	return s
}

// evidenceScore rewards facts related to what is already known. A
// failed lookup degrades to the base score rather than blocking the
// pipeline.
func (m *Manager) evidenceScore(ctx context.Context, fact *envelope.Fact) float64 {
	keywords := analysis.ExtractKeywords(fact.StatementText())
	if len(keywords) == 0 {
		return evidenceBase
	}

	related, err := m.store.QueryCoreMemory(ctx, memory.Query{
		DataType: DataTypeHSPFact,
		Keywords: keywords,
		Limit:    evidenceCap,
	})
	if err != nil {
		m.logger.Warn("evidence lookup failed", "fact_id", fact.ID, "error", err)
		return evidenceBase
	}

	score := evidenceBase + evidencePerFact*float64(len(related))
	if score > 1.0 {
		score = 1.0
	}
	return score
}
