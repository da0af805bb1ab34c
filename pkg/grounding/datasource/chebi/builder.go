package chebi

import (
	"path"
	"strings"

	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/store"
	"github.com/cognicore/grounding/pkg/grounding/xmlevent"
)

// Local names of the ChEBI OWL elements the builder reacts to
const (
	tagRDF            = "RDF"
	tagClass          = "Class"
	tagID             = "id"
	tagLabel          = "label"
	tagExactSynonym   = "hasExactSynonym"
	tagRelatedSynonym = "hasRelatedSynonym"
	tagDeprecated     = "deprecated"
	attrAbout         = "about"
	chebiIRIPrefix    = "CHEBI_"
	chebiIDPrefix     = "CHEBI:"
)

// Builder turns the top-level owl:Class elements of a ChEBI ontology into
// chemical records. Deprecated classes are skipped.
type Builder struct {
	sink  ingest.Sink
	stack xmlevent.Stack
	class *store.Record

	// id derived from rdf:about, used when the class has no id element
	aboutID    string
	deprecated bool
}

// NewBuilder creates a builder feeding sink
func NewBuilder(sink ingest.Sink) *Builder {
	return &Builder{sink: sink}
}

// OpenTag implements xmlevent.Handler
func (b *Builder) OpenTag(name string, attrs xmlevent.Attrs) error {
	b.stack.Push(name)
	if name != tagClass || b.stack.At(-2) != tagRDF {
		return nil
	}
	b.class = store.NewRecord(Namespace, EntryType)
	b.deprecated = false
	b.aboutID = ""
	if about, ok := attrs.Get(attrAbout); ok {
		b.aboutID = idFromIRI(about)
	}
	return nil
}

// CloseTag implements xmlevent.Handler
func (b *Builder) CloseTag(name string) error {
	defer b.stack.Pop()

	if name != tagClass || b.class == nil || b.stack.At(-2) != tagRDF {
		return nil
	}
	rec := *b.class
	b.class = nil
	if b.deprecated {
		return nil
	}
	rec.SetIDOnce(b.aboutID)
	return b.sink.Consume(rec)
}

// Text implements xmlevent.Handler
func (b *Builder) Text(raw []byte) error {
	if b.class == nil || b.stack.At(-2) != tagClass || xmlevent.IsBlank(raw) {
		return nil
	}
	text := strings.TrimSpace(string(raw))

	switch b.stack.At(-1) {
	case tagID:
		b.class.SetIDOnce(text)
	case tagLabel:
		b.class.SetName(text)
	case tagExactSynonym, tagRelatedSynonym:
		b.class.AddSynonym(text)
	case tagDeprecated:
		b.deprecated = text == "true"
	}
	return nil
}

// End implements xmlevent.Handler by closing the sink
func (b *Builder) End() error {
	return b.sink.Close()
}

// idFromIRI maps http://purl.obolibrary.org/obo/CHEBI_18248 to CHEBI:18248.
// Other IRIs yield "".
func idFromIRI(iri string) string {
	last := path.Base(iri)
	if !strings.HasPrefix(last, chebiIRIPrefix) {
		return ""
	}
	return chebiIDPrefix + strings.TrimPrefix(last, chebiIRIPrefix)
}
