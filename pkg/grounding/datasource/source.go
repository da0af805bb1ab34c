// Package datasource holds what the XML-dump grounding sources share: fetch
// the dump, stream it through a record builder into an ingestion run, and
// serve search and lookup for one namespace.
package datasource

import (
	"context"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/store"
	"github.com/cognicore/grounding/pkg/grounding/xmlevent"
)

// Fetcher makes a remote file available locally and returns its path
type Fetcher interface {
	Fetch(ctx context.Context, url, name string, force bool) (string, error)
}

// NewHandler creates the record builder for one document
type NewHandler func(sink ingest.Sink) xmlevent.Handler

// Config describes one XML source
type Config struct {
	Namespace  string
	URL        string
	FileName   string
	Fetcher    Fetcher
	Filter     ingest.Filter
	Dispatcher ingest.DispatcherOptions
	MaxDepth   int
	Handler    NewHandler
}

// XMLSource ingests one XML dump into a namespace of the store
type XMLSource struct {
	store   store.Store
	orch    *ingest.Orchestrator
	cfg     Config
	xmlOpts xmlevent.Options
}

// NewXMLSource creates a source over st
func NewXMLSource(st store.Store, cfg Config) *XMLSource {
	return &XMLSource{
		store:   st,
		orch:    ingest.NewOrchestrator(st, cfg.Filter, cfg.Dispatcher),
		cfg:     cfg,
		xmlOpts: xmlevent.Options{MaxDepth: cfg.MaxDepth},
	}
}

// Namespace returns the namespace this source writes
func (s *XMLSource) Namespace() string { return s.cfg.Namespace }

// Update downloads the dump, unless a cached copy exists and force is false,
// and reindexes the namespace from it.
func (s *XMLSource) Update(ctx context.Context, force bool) (ingest.Report, error) {
	if s.cfg.Fetcher == nil {
		return ingest.Report{}, fmt.Errorf("%s update: no fetcher configured: %w", s.cfg.Namespace, internalerr.ErrInvalidConfig)
	}
	path, err := s.cfg.Fetcher.Fetch(ctx, s.cfg.URL, s.cfg.FileName, force)
	if err != nil {
		return ingest.Report{}, fmt.Errorf("fetch %s: %w", s.cfg.Namespace, err)
	}
	return s.UpdateFromFile(ctx, path)
}

// UpdateFromFile reindexes the namespace from a local dump; .gz files are
// decompressed while reading.
func (s *XMLSource) UpdateFromFile(ctx context.Context, path string) (ingest.Report, error) {
	log.WithFields(log.Fields{"namespace": s.cfg.Namespace, "path": path}).Info("Processing data file")
	return s.orch.Run(ctx, s.cfg.Namespace, func(ctx context.Context, sink ingest.Sink) error {
		return xmlevent.RunFile(ctx, path, s.cfg.Handler(sink), s.xmlOpts)
	})
}

// UpdateFromReader reindexes the namespace from an XML stream
func (s *XMLSource) UpdateFromReader(ctx context.Context, r io.Reader) (ingest.Report, error) {
	return s.orch.Run(ctx, s.cfg.Namespace, func(ctx context.Context, sink ingest.Sink) error {
		return xmlevent.Run(ctx, r, s.cfg.Handler(sink), s.xmlOpts)
	})
}

// Clear removes every record of the namespace
func (s *XMLSource) Clear(ctx context.Context) error {
	return s.orch.Clear(ctx, s.cfg.Namespace)
}

// Search returns the [from, from+size) page of records matching text
func (s *XMLSource) Search(ctx context.Context, text string, from, size int) ([]store.Record, error) {
	return s.store.Search(ctx, text, s.cfg.Namespace, from, size)
}

// Get returns the record with the given id, or nil when there is none
func (s *XMLSource) Get(ctx context.Context, id string) (*store.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%s get: empty id: %w", s.cfg.Namespace, internalerr.ErrInvalidInput)
	}
	rec, ok, err := s.store.Get(ctx, id, s.cfg.Namespace)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &rec, nil
}
