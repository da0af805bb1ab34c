// Package organism holds the allow-list of organisms whose records are worth
// indexing, and the filter that applies it to extracted records.
package organism

import (
	"strings"

	"github.com/cognicore/grounding/pkg/grounding/store"
)

// Organism is a supported NCBI taxonomy entry
type Organism struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Defaults is the built-in list of supported organisms, most commonly
// studied first.
var Defaults = []Organism{
	{ID: "9606", Name: "Homo sapiens"},
	{ID: "10090", Name: "Mus musculus"},
	{ID: "10116", Name: "Rattus norvegicus"},
	{ID: "7955", Name: "Danio rerio"},
	{ID: "7227", Name: "Drosophila melanogaster"},
	{ID: "6239", Name: "Caenorhabditis elegans"},
	{ID: "559292", Name: "Saccharomyces cerevisiae S288C"},
	{ID: "284812", Name: "Schizosaccharomyces pombe 972h-"},
	{ID: "3702", Name: "Arabidopsis thaliana"},
	{ID: "83333", Name: "Escherichia coli K-12"},
	{ID: "2697049", Name: "Severe acute respiratory syndrome coronavirus 2"},
	{ID: "9031", Name: "Gallus gallus"},
	{ID: "9913", Name: "Bos taurus"},
	{ID: "9615", Name: "Canis lupus familiaris"},
	{ID: "8355", Name: "Xenopus laevis"},
}

// AllowList answers whether an organism id is supported
type AllowList struct {
	ordered []Organism
	byID    map[string]Organism
}

// NewAllowList builds an allow-list. Blank ids are skipped and the first
// entry wins for duplicated ids.
func NewAllowList(orgs []Organism) *AllowList {
	a := &AllowList{byID: make(map[string]Organism, len(orgs))}
	for _, o := range orgs {
		o.ID = strings.TrimSpace(o.ID)
		if o.ID == "" {
			continue
		}
		if _, dup := a.byID[o.ID]; dup {
			continue
		}
		a.byID[o.ID] = o
		a.ordered = append(a.ordered, o)
	}
	return a
}

// DefaultAllowList returns the allow-list of Defaults
func DefaultAllowList() *AllowList {
	return NewAllowList(Defaults)
}

// IsSupported reports whether the organism id is on the list
func (a *AllowList) IsSupported(id string) bool {
	if a == nil {
		return false
	}
	_, ok := a.byID[id]
	return ok
}

// All returns the supported organisms in list order
func (a *AllowList) All() []Organism {
	if a == nil {
		return nil
	}
	return append([]Organism(nil), a.ordered...)
}

// Filter gates extracted records on their organism reference
type Filter struct {
	list *AllowList
}

// NewFilter creates a filter over an allow-list
func NewFilter(list *AllowList) Filter {
	return Filter{list: list}
}

// Accept reports whether a record should be indexed. Records without an
// organism reference are treated as unsupported.
func (f Filter) Accept(rec store.Record) bool {
	if rec.Organism == "" {
		return false
	}
	return f.list.IsSupported(rec.Organism)
}
