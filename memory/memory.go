// Package memory provides experience storage for learned facts and
// other agent records. Records are immutable once stored; metadata
// counters advance through copy-on-write replacement so readers never
// observe a half-updated record.
package memory

import (
	"context"
	"strings"
	"time"
)

// Record is one stored experience. RawData holds the natural-language
// or serialized content, Metadata carries structured annotations such
// as provenance scores.
type Record struct {
	ID       string         `json:"id"`
	DataType string         `json:"data_type"`
	RawData  string         `json:"raw_data"`
	Metadata map[string]any `json:"metadata"`
	StoredAt time.Time      `json:"stored_at"`
	Version  int            `json:"version"`
}

// Clone deep-copies a record so callers can hand copies to consumers
// without sharing the metadata map.
func (r Record) Clone() Record {
	out := r
	out.Metadata = make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// Query selects records from a store. Zero-value fields are not
// applied. MetadataEquals entries must all match; Keywords match if ANY
// keyword appears in RawData, case-insensitively.
type Query struct {
	DataType       string
	MetadataEquals map[string]any
	Keywords       []string
	Limit          int
}

// Store is the experience-storage contract used by the learning
// pipeline. StoreExperience returns the new record's id.
type Store interface {
	StoreExperience(ctx context.Context, rawData, dataType string, metadata map[string]any) (string, error)
	QueryCoreMemory(ctx context.Context, q Query) ([]Record, error)
	IncrementMetadataField(ctx context.Context, id, field string) error
	Close() error
}

// matches reports whether a record satisfies the query. Shared by the
// in-memory backend and by tests.
func matches(r *Record, q Query) bool {
	if q.DataType != "" && r.DataType != q.DataType {
		return false
	}
	for k, want := range q.MetadataEquals {
		got, ok := r.Metadata[k]
		if !ok || got != want {
			return false
		}
	}
	if len(q.Keywords) > 0 {
		content := strings.ToLower(r.RawData)
		hit := false
		for _, kw := range q.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(content, strings.ToLower(kw)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// asInt coerces a metadata value to int for counter increments. JSON
// round-trips deliver float64, direct writes deliver int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
