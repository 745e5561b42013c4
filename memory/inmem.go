package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catcatai/hsp/errors"
)

// InMemoryStore keeps records in a map keyed by id. Mutation replaces
// the whole record pointer, so query results taken before a swap stay
// internally consistent.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// StoreExperience stores a new record and returns its id.
func (s *InMemoryStore) StoreExperience(_ context.Context, rawData, dataType string, metadata map[string]any) (string, error) {
	if dataType == "" {
		return "", errors.WrapInvalid(errors.New("data type is required"), "InMemoryStore", "StoreExperience", "validate")
	}

	rec := &Record{
		ID:       "mem_" + uuid.New().String(),
		DataType: dataType,
		RawData:  rawData,
		Metadata: make(map[string]any, len(metadata)),
		StoredAt: s.now(),
		Version:  1,
	}
	for k, v := range metadata {
		rec.Metadata[k] = v
	}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return rec.ID, nil
}

// QueryCoreMemory returns cloned records matching the query, oldest
// first.
func (s *InMemoryStore) QueryCoreMemory(_ context.Context, q Query) ([]Record, error) {
	s.mu.Lock()
	var out []Record
	for _, rec := range s.records {
		if matches(rec, q) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StoredAt.Before(out[j].StoredAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// IncrementMetadataField adds one to an integer metadata field,
// creating it at 1 if absent. The record is copied, updated, and
// swapped in whole.
func (s *InMemoryStore) IncrementMetadataField(_ context.Context, id, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrKeyNotFound, "InMemoryStore", "IncrementMetadataField", id)
	}

	next := rec.Clone()
	if n, ok := asInt(next.Metadata[field]); ok {
		next.Metadata[field] = n + 1
	} else {
		next.Metadata[field] = 1
	}
	next.Version++
	s.records[id] = &next
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *InMemoryStore) Close() error { return nil }
