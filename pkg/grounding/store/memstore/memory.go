package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu          sync.RWMutex
	exists      bool
	autoRefresh bool
	visible     map[string]store.Record
	pending     []store.Record
	runs        []store.Run
}

// New creates a new in-memory store. The index does not exist until
// EnsureIndex is called.
func New() *Store {
	return &Store{
		visible: make(map[string]store.Record),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// EnsureIndex creates the index with auto refresh enabled if it is missing.
func (s *Store) EnsureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists {
		s.exists = true
		s.autoRefresh = true
	}
	return nil
}

// Exists implements store.Store.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists, nil
}

// DeleteIndex drops every record, visible or pending.
func (s *Store) DeleteIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exists = false
	s.autoRefresh = false
	s.visible = make(map[string]store.Record)
	s.pending = nil
	return nil
}

// DisableAutoRefresh implements store.Store.
func (s *Store) DisableAutoRefresh(ctx context.Context) error {
	return s.setAutoRefresh(false)
}

// EnableAutoRefresh implements store.Store.
func (s *Store) EnableAutoRefresh(ctx context.Context) error {
	return s.setAutoRefresh(true)
}

func (s *Store) setAutoRefresh(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists {
		return fmt.Errorf("set auto refresh: %w", internalerr.ErrStoreUnavailable)
	}
	s.autoRefresh = on
	return nil
}

// RefreshIndex publishes pending records.
func (s *Store) RefreshIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publishLocked()
	return nil
}

func (s *Store) publishLocked() {
	for _, r := range s.pending {
		s.visible[r.Key()] = r
	}
	s.pending = nil
}

// ClearNamespace removes visible and pending records of one namespace.
func (s *Store) ClearNamespace(ctx context.Context, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, r := range s.visible {
		if r.Namespace == ns {
			delete(s.visible, k)
		}
	}
	kept := s.pending[:0]
	for _, r := range s.pending {
		if r.Namespace != ns {
			kept = append(kept, r)
		}
	}
	s.pending = kept
	return nil
}

// InsertRecords stores a batch, keyed by namespace and id.
func (s *Store) InsertRecords(ctx context.Context, recs []store.Record, refreshAfter bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists {
		return fmt.Errorf("insert records: %w", internalerr.ErrStoreUnavailable)
	}
	for _, r := range recs {
		if r.ID == "" {
			return fmt.Errorf("insert record without id: %w", internalerr.ErrInvalidInput)
		}
	}
	for _, r := range recs {
		s.pending = append(s.pending, r.Clone())
	}
	if s.autoRefresh || refreshAfter {
		s.publishLocked()
	}
	return nil
}

// Search returns visible records of a namespace (all namespaces when ns is
// empty) matching the query.
func (s *Store) Search(ctx context.Context, query, ns string, from, size int) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []store.Record
	for _, r := range s.visible {
		if ns == "" || r.Namespace == ns {
			candidates = append(candidates, r.Clone())
		}
	}
	return store.RankRecords(query, candidates, from, size), nil
}

// Get returns a visible record by id.
func (s *Store) Get(ctx context.Context, id, ns string) (store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.visible[store.Record{ID: id, Namespace: ns}.Key()]
	if !ok {
		return store.Record{}, false, nil
	}
	return r.Clone(), true, nil
}

// Count returns the number of visible records in a namespace.
func (s *Store) Count(ctx context.Context, ns string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.visible {
		if ns == "" || r.Namespace == ns {
			n++
		}
	}
	return n, nil
}

// Pending reports how many inserted records are awaiting a refresh.
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// RecordRun implements store.Store.
func (s *Store) RecordRun(ctx context.Context, r store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

// Runs returns the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	out := append([]store.Run(nil), s.runs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Started.After(out[j].Started)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
