package analysis

import (
	"log/slog"
	"strings"

	"github.com/catcatai/hsp/envelope"
)

// Result reports what content analysis did with a fact. UpdatedGraph
// is true only when the fact added a previously unknown edge.
type Result struct {
	UpdatedGraph    bool
	ProcessedTriple *envelope.SemanticTriple
}

// ContentAnalyzer folds incoming facts into a triple graph. Structured
// facts contribute their triple directly; natural-language statements
// go through a shallow subject/predicate/object split.
type ContentAnalyzer struct {
	graph  *TripleGraph
	logger *slog.Logger
}

// NewContentAnalyzer creates an analyzer over a fresh graph.
func NewContentAnalyzer(logger *slog.Logger) *ContentAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentAnalyzer{
		graph:  NewTripleGraph(),
		logger: logger.With("component", "content_analyzer"),
	}
}

// Graph exposes the underlying graph for queries.
func (a *ContentAnalyzer) Graph() *TripleGraph { return a.graph }

// ProcessHSPFactContent extracts a triple from the fact and merges it
// into the graph. Facts that yield no triple leave the graph untouched.
func (a *ContentAnalyzer) ProcessHSPFactContent(fact *envelope.Fact, senderAIID string) Result {
	if fact == nil {
		return Result{}
	}

	triple := fact.StatementStructured
	if triple == nil {
		triple = parseStatement(fact.StatementNL)
	}
	if triple == nil {
		a.logger.Debug("no triple extracted", "fact_id", fact.ID, "sender", senderAIID)
		return Result{}
	}

	changed := a.graph.AddTriple(triple.SubjectURI, triple.PredicateURI, triple.ObjectLiteral)
	if changed {
		a.logger.Debug("graph updated",
			"fact_id", fact.ID,
			"subject", triple.SubjectURI,
			"predicate", triple.PredicateURI)
	}
	return Result{UpdatedGraph: changed, ProcessedTriple: triple}
}

// parseStatement pulls a triple out of a simple declarative sentence.
// It only handles the "<subject> <verb> <rest>" shape; anything else
// yields nil.
func parseStatement(statement string) *envelope.SemanticTriple {
	words := strings.Fields(strings.TrimSuffix(strings.TrimSpace(statement), "."))
	if len(words) < 3 {
		return nil
	}
	return &envelope.SemanticTriple{
		SubjectURI:    strings.ToLower(words[0]),
		PredicateURI:  strings.ToLower(words[1]),
		ObjectLiteral: strings.ToLower(strings.Join(words[2:], " ")),
	}
}

// stopwords excluded from keyword extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "and": true, "or": true, "it": true,
	"this": true, "that": true, "with": true, "for": true, "by": true,
}

// ExtractKeywords returns the distinct content-bearing words of a
// statement, lowercased, for evidence lookups.
func ExtractKeywords(statement string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(statement) {
		word = strings.ToLower(strings.Trim(word, ".,;:!?\"'()"))
		if len(word) < 3 || stopwords[word] {
			continue
		}
		if !seen[word] {
			seen[word] = true
			out = append(out, word)
		}
	}
	return out
}
