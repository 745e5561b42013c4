// Package analysis builds a lightweight semantic graph from incoming
// facts and reports whether each fact changed it. The learning
// pipeline uses that boolean as its novelty signal.
package analysis

import (
	"sync"
	"time"
)

// Edge is one directed, labeled relation between two entities.
type Edge struct {
	Subject   string    `json:"subject"`
	Predicate string    `json:"predicate"`
	Object    string    `json:"object"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TripleGraph is an in-process adjacency index keyed by subject. It is
// safe for concurrent use.
type TripleGraph struct {
	mu    sync.Mutex
	edges map[string][]Edge
	count int
}

// NewTripleGraph creates an empty graph.
func NewTripleGraph() *TripleGraph {
	return &TripleGraph{edges: make(map[string][]Edge)}
}

// AddTriple inserts an edge, returning true only when the graph
// changed. Re-asserting an existing edge refreshes its timestamp but
// reports no change.
func (g *TripleGraph) AddTriple(subject, predicate, object string) bool {
	if subject == "" || predicate == "" || object == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for i, e := range g.edges[subject] {
		if e.Predicate == predicate && e.Object == object {
			g.edges[subject][i].UpdatedAt = time.Now()
			return false
		}
	}
	g.edges[subject] = append(g.edges[subject], Edge{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		UpdatedAt: time.Now(),
	})
	g.count++
	return true
}

// HasEdge reports whether the exact triple is present.
func (g *TripleGraph) HasEdge(subject, predicate, object string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.edges[subject] {
		if e.Predicate == predicate && e.Object == object {
			return true
		}
	}
	return false
}

// EdgesFrom returns a copy of all edges originating at subject.
func (g *TripleGraph) EdgesFrom(subject string) []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Edge, len(g.edges[subject]))
	copy(out, g.edges[subject])
	return out
}

// Count returns the total number of edges.
func (g *TripleGraph) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}
