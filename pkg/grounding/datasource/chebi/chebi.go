// Package chebi ingests the ChEBI chemical ontology (OWL, RDF/XML) into the
// grounding store.
package chebi

import (
	"github.com/cognicore/grounding/pkg/grounding/datasource"
	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/store"
	"github.com/cognicore/grounding/pkg/grounding/xmlevent"
)

const (
	// Namespace tags every ChEBI record
	Namespace = "chebi"
	// EntryType is the record type of ChEBI classes
	EntryType = "chemical"

	DefaultURL      = "https://ftp.ebi.ac.uk/pub/databases/chebi/ontology/chebi.owl.gz"
	DefaultFileName = "chebi.owl.gz"
)

// Options configures a Datasource
type Options struct {
	URL        string
	FileName   string
	Fetcher    datasource.Fetcher
	Dispatcher ingest.DispatcherOptions
	MaxDepth   int
}

// Datasource is the ChEBI grounding source. Chemicals carry no organism, so
// every class with an id is kept.
type Datasource struct {
	*datasource.XMLSource
}

// New creates a ChEBI datasource over st
func New(st store.Store, opts Options) *Datasource {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	return &Datasource{datasource.NewXMLSource(st, datasource.Config{
		Namespace:  Namespace,
		URL:        opts.URL,
		FileName:   opts.FileName,
		Fetcher:    opts.Fetcher,
		Filter:     ingest.AcceptAll{},
		Dispatcher: opts.Dispatcher,
		MaxDepth:   opts.MaxDepth,
		Handler: func(sink ingest.Sink) xmlevent.Handler {
			return NewBuilder(sink)
		},
	})}
}
