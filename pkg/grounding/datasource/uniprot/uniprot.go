// Package uniprot ingests the UniProt knowledgebase XML dump into the
// grounding store and serves namespace-scoped search over it.
package uniprot

import (
	"github.com/cognicore/grounding/pkg/grounding/datasource"
	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/organism"
	"github.com/cognicore/grounding/pkg/grounding/store"
	"github.com/cognicore/grounding/pkg/grounding/xmlevent"
)

const (
	// Namespace tags every UniProt record
	Namespace = "uniprot"
	// EntryType is the record type of UniProt entries
	EntryType = "protein"

	DefaultURL      = "https://ftp.uniprot.org/pub/databases/uniprot/current_release/knowledgebase/complete/uniprot_sprot.xml.gz"
	DefaultFileName = "uniprot.xml.gz"
)

// Options configures a Datasource
type Options struct {
	URL      string
	FileName string
	Fetcher  datasource.Fetcher
	// Filter defaults to the built-in organism allow-list
	Filter     ingest.Filter
	Dispatcher ingest.DispatcherOptions
	MaxDepth   int
}

// Datasource is the UniProt grounding source
type Datasource struct {
	*datasource.XMLSource
}

// New creates a UniProt datasource over st
func New(st store.Store, opts Options) *Datasource {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	if opts.Filter == nil {
		opts.Filter = organism.NewFilter(organism.DefaultAllowList())
	}
	return &Datasource{datasource.NewXMLSource(st, datasource.Config{
		Namespace:  Namespace,
		URL:        opts.URL,
		FileName:   opts.FileName,
		Fetcher:    opts.Fetcher,
		Filter:     opts.Filter,
		Dispatcher: opts.Dispatcher,
		MaxDepth:   opts.MaxDepth,
		Handler: func(sink ingest.Sink) xmlevent.Handler {
			return NewBuilder(sink)
		},
	})}
}
