package store

import (
	"context"
	"time"

	"github.com/cognicore/grounding/pkg/grounding/rank"
)

// Store is the main interface for persisting and querying grounding records.
//
// Records written while auto refresh is disabled stay invisible to Search,
// Get and Count until RefreshIndex runs, unless the insert asks for an
// immediate refresh.
type Store interface {
	Close() error

	// Index lifecycle
	EnsureIndex(ctx context.Context) error
	Exists(ctx context.Context) (bool, error)
	DeleteIndex(ctx context.Context) error
	DisableAutoRefresh(ctx context.Context) error
	EnableAutoRefresh(ctx context.Context) error
	RefreshIndex(ctx context.Context) error

	// Records
	ClearNamespace(ctx context.Context, ns string) error
	InsertRecords(ctx context.Context, recs []Record, refreshAfter bool) error
	Search(ctx context.Context, query, ns string, from, size int) ([]Record, error)
	Get(ctx context.Context, id, ns string) (Record, bool, error)
	Count(ctx context.Context, ns string) (int64, error)

	// Ingestion history
	RecordRun(ctx context.Context, r Run) error
	Runs(ctx context.Context, limit int) ([]Run, error)
}

// Record is one grounding entity extracted from a source dataset
type Record struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	ProteinNames []string `json:"proteinNames"`
	GeneNames    []string `json:"geneNames"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Organism     string   `json:"organism,omitempty"`
	Namespace    string   `json:"namespace"`
	Type         string   `json:"type"`
}

// NewRecord returns an empty record tagged with its source namespace and type
func NewRecord(ns, typ string) *Record {
	return &Record{
		ProteinNames: []string{},
		GeneNames:    []string{},
		Namespace:    ns,
		Type:         typ,
	}
}

// SetIDOnce keeps the first identifier seen; later ones are dropped.
func (r *Record) SetIDOnce(id string) {
	if r.ID == "" {
		r.ID = id
	}
}

// SetName overwrites the display name; the last one seen wins.
func (r *Record) SetName(name string) {
	r.Name = name
}

// SetOrganism sets the organism reference
func (r *Record) SetOrganism(org string) {
	r.Organism = org
}

// AddProteinName appends a protein name in document order
func (r *Record) AddProteinName(name string) {
	r.ProteinNames = append(r.ProteinNames, name)
}

// AddGeneName appends a gene name in document order
func (r *Record) AddGeneName(name string) {
	r.GeneNames = append(r.GeneNames, name)
}

// AddSynonym appends a synonym in document order
func (r *Record) AddSynonym(name string) {
	r.Synonyms = append(r.Synonyms, name)
}

// SearchFields lists every searchable string of the record
func (r Record) SearchFields() []rank.Field {
	fields := make([]rank.Field, 0, 2+len(r.ProteinNames)+len(r.GeneNames)+len(r.Synonyms))
	if r.ID != "" {
		fields = append(fields, rank.Field{Kind: rank.KindID, Text: r.ID})
	}
	if r.Name != "" {
		fields = append(fields, rank.Field{Kind: rank.KindName, Text: r.Name})
	}
	for _, n := range r.ProteinNames {
		fields = append(fields, rank.Field{Kind: rank.KindProtein, Text: n})
	}
	for _, n := range r.GeneNames {
		fields = append(fields, rank.Field{Kind: rank.KindGene, Text: n})
	}
	for _, n := range r.Synonyms {
		fields = append(fields, rank.Field{Kind: rank.KindSynonym, Text: n})
	}
	return fields
}

// Key identifies the record across namespaces
func (r Record) Key() string {
	return r.Namespace + ":" + r.ID
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	out := r
	out.ProteinNames = append([]string{}, r.ProteinNames...)
	out.GeneNames = append([]string{}, r.GeneNames...)
	if r.Synonyms != nil {
		out.Synonyms = append([]string{}, r.Synonyms...)
	}
	return out
}

// Run summarizes one ingestion of a namespace
type Run struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Built     int64     `json:"built"`
	Accepted  int64     `json:"accepted"`
	Batches   int64     `json:"batches"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Error     string    `json:"error,omitempty"`
}
