package uniprot

import (
	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/store"
	"github.com/cognicore/grounding/pkg/grounding/xmlevent"
)

// Element names of the UniProt XML format the builder reacts to
const (
	tagUniprot         = "uniprot"
	tagEntry           = "entry"
	tagProtein         = "protein"
	tagDBReference     = "dbReference"
	tagOrganism        = "organism"
	tagAccession       = "accession"
	tagName            = "name"
	tagGene            = "gene"
	tagAlternativeName = "alternativeName"
	tagSubmittedName   = "submittedName"
	tagRecommendedName = "recommendedName"
	tagFullName        = "fullName"
	tagShortName       = "shortName"
)

// nameAccumulator collects the short and full form of one alternative or
// submitted protein name until its element closes.
type nameAccumulator struct {
	short, full       string
	hasShort, hasFull bool
}

func (a *nameAccumulator) set(tag, text string) {
	switch tag {
	case tagShortName:
		a.short, a.hasShort = text, true
	case tagFullName:
		a.full, a.hasFull = text, true
	}
}

// resolve prefers the short form
func (a *nameAccumulator) resolve() (string, bool) {
	if a.hasShort {
		return a.short, true
	}
	if a.hasFull {
		return a.full, true
	}
	return "", false
}

func (a *nameAccumulator) reset() { *a = nameAccumulator{} }

// Builder turns UniProt XML events into records, handing each finished entry
// to a sink. It implements xmlevent.Handler; one Builder parses one document.
type Builder struct {
	sink  ingest.Sink
	stack xmlevent.Stack
	entry *store.Record

	alternative nameAccumulator
	submitted   nameAccumulator
}

// NewBuilder creates a builder feeding sink
func NewBuilder(sink ingest.Sink) *Builder {
	return &Builder{sink: sink}
}

// OpenTag implements xmlevent.Handler
func (b *Builder) OpenTag(name string, attrs xmlevent.Attrs) error {
	b.stack.Push(name)
	parent := b.stack.At(-2)

	switch {
	case name == tagEntry && parent == tagUniprot:
		b.entry = store.NewRecord(Namespace, EntryType)
	case name == tagDBReference && parent == tagOrganism && b.entry != nil:
		if id, ok := attrs.Get("id"); ok {
			b.entry.SetOrganism(id)
		}
	}
	return nil
}

// CloseTag implements xmlevent.Handler
func (b *Builder) CloseTag(name string) error {
	defer b.stack.Pop()

	switch name {
	case tagAlternativeName:
		b.pushResolved(&b.alternative)
	case tagSubmittedName:
		b.pushResolved(&b.submitted)
	case tagEntry:
		if b.entry == nil || b.stack.At(-2) != tagUniprot {
			return nil
		}
		rec := *b.entry
		b.entry = nil
		return b.sink.Consume(rec)
	}
	return nil
}

func (b *Builder) pushResolved(acc *nameAccumulator) {
	if name, ok := acc.resolve(); ok && b.entry != nil {
		b.entry.AddProteinName(name)
	}
	acc.reset()
}

// Text implements xmlevent.Handler
func (b *Builder) Text(raw []byte) error {
	if b.entry == nil || xmlevent.IsBlank(raw) {
		return nil
	}
	text := string(raw)

	last := b.stack.At(-1)
	parent := b.stack.At(-2)

	switch {
	case parent == tagEntry:
		switch last {
		case tagAccession:
			b.entry.SetIDOnce(text)
		case tagName:
			b.entry.SetName(text)
		}
	case parent == tagGene && last == tagName:
		b.entry.AddGeneName(text)
	case b.stack.At(-3) == tagProtein && (last == tagFullName || last == tagShortName):
		switch parent {
		case tagRecommendedName:
			b.entry.AddProteinName(text)
		case tagSubmittedName:
			b.submitted.set(last, text)
		case tagAlternativeName:
			b.alternative.set(last, text)
		}
	}
	return nil
}

// End implements xmlevent.Handler by closing the sink
func (b *Builder) End() error {
	return b.sink.Close()
}
