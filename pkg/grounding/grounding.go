// Package grounding is the facade over the grounding datasources: it routes
// namespace-scoped requests to the right source, fans aggregate searches out
// to every source and caches search results.
package grounding

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/rank"
	"github.com/cognicore/grounding/pkg/grounding/store"
)

// DefaultPageSize is used when a search asks for no explicit size
const DefaultPageSize = 10

// Datasource is one grounding source, owning a single namespace
type Datasource interface {
	Namespace() string
	Update(ctx context.Context, force bool) (ingest.Report, error)
	Clear(ctx context.Context) error
	Search(ctx context.Context, text string, from, size int) ([]store.Record, error)
	Get(ctx context.Context, id string) (*store.Record, error)
}

// Service is the main grounding facade
type Service struct {
	store   store.Store
	sources map[string]Datasource
	cache   *lru.Cache[string, []store.Record]

	mu       sync.Mutex
	updating map[string]bool
}

// Options configures a Service
type Options struct {
	Store       store.Store
	Datasources []Datasource
	// CacheSize is the number of cached search pages; zero disables caching
	CacheSize int
}

// New creates a Service over the given datasources
func New(opts Options) (*Service, error) {
	s := &Service{
		store:    opts.Store,
		sources:  make(map[string]Datasource, len(opts.Datasources)),
		updating: make(map[string]bool),
	}
	for _, ds := range opts.Datasources {
		ns := ds.Namespace()
		if _, dup := s.sources[ns]; dup {
			return nil, fmt.Errorf("duplicate datasource %q: %w", ns, internalerr.ErrInvalidConfig)
		}
		s.sources[ns] = ds
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, []store.Record](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Close shuts down the underlying store
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Namespaces lists the registered namespaces in sorted order
func (s *Service) Namespaces() []string {
	out := make([]string, 0, len(s.sources))
	for ns := range s.sources {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func (s *Service) source(ns string) (Datasource, error) {
	ds, ok := s.sources[ns]
	if !ok {
		return nil, fmt.Errorf("%q: %w", ns, internalerr.ErrUnknownNamespace)
	}
	return ds, nil
}

// Search returns the [from, from+size) page of records matching q in
// namespace ns. An empty ns searches every namespace and merges the results
// by rank.
func (s *Service) Search(ctx context.Context, ns, q string, from, size int) ([]store.Record, error) {
	if from < 0 {
		return nil, fmt.Errorf("negative offset %d: %w", from, internalerr.ErrInvalidInput)
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	key := cacheKey(ns, q, from, size)
	if s.cache != nil {
		if recs, ok := s.cache.Get(key); ok {
			return append([]store.Record(nil), recs...), nil
		}
	}

	var (
		recs []store.Record
		err  error
	)
	if ns == "" {
		recs, err = s.searchAll(ctx, q, from, size)
	} else {
		var ds Datasource
		if ds, err = s.source(ns); err == nil {
			recs, err = ds.Search(ctx, q, from, size)
		}
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(key, append([]store.Record(nil), recs...))
	}
	return recs, nil
}

// searchAll asks every source for its best from+size hits and reranks the
// union, which yields the same page a single merged index would.
func (s *Service) searchAll(ctx context.Context, q string, from, size int) ([]store.Record, error) {
	namespaces := s.Namespaces()
	results := make([][]store.Record, len(namespaces))

	g, gctx := errgroup.WithContext(ctx)
	for i, ns := range namespaces {
		ds := s.sources[ns]
		g.Go(func() error {
			recs, err := ds.Search(gctx, q, 0, from+size)
			if err != nil {
				return fmt.Errorf("search %s: %w", ns, err)
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []store.Record
	for _, recs := range results {
		merged = append(merged, recs...)
	}
	return store.RankRecords(q, merged, from, size), nil
}

// Get returns the record with id in namespace ns, or nil when there is none
func (s *Service) Get(ctx context.Context, ns, id string) (*store.Record, error) {
	ds, err := s.source(ns)
	if err != nil {
		return nil, err
	}
	return ds.Get(ctx, id)
}

// Update reindexes namespace ns. Only one update per namespace runs at a
// time; a concurrent request fails with internalerr.ErrConflict.
func (s *Service) Update(ctx context.Context, ns string, force bool) (ingest.Report, error) {
	ds, err := s.source(ns)
	if err != nil {
		return ingest.Report{}, err
	}
	if err := s.begin(ns); err != nil {
		return ingest.Report{}, err
	}
	defer s.end(ns)
	defer s.purge()

	return ds.Update(ctx, force)
}

// Clear removes every record of namespace ns
func (s *Service) Clear(ctx context.Context, ns string) error {
	ds, err := s.source(ns)
	if err != nil {
		return err
	}
	if err := s.begin(ns); err != nil {
		return err
	}
	defer s.end(ns)
	defer s.purge()

	return ds.Clear(ctx)
}

// Runs lists recent ingestion runs
func (s *Service) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if s.store == nil {
		return []store.Run{}, nil
	}
	return s.store.Runs(ctx, limit)
}

// Count returns the number of searchable records in ns, or in every
// namespace when ns is empty
func (s *Service) Count(ctx context.Context, ns string) (int64, error) {
	if ns != "" {
		if _, err := s.source(ns); err != nil {
			return 0, err
		}
	}
	if s.store == nil {
		return 0, nil
	}
	return s.store.Count(ctx, ns)
}

func (s *Service) begin(ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updating[ns] {
		return fmt.Errorf("update of %q: %w", ns, internalerr.ErrConflict)
	}
	s.updating[ns] = true
	return nil
}

func (s *Service) end(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.updating, ns)
}

func (s *Service) purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func cacheKey(ns, q string, from, size int) string {
	return ns + "\x00" + rank.Normalize(q) + "\x00" + strconv.Itoa(from) + "\x00" + strconv.Itoa(size)
}
