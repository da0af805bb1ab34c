package uniprot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/grounding/pkg/grounding/store"
	"github.com/cognicore/grounding/pkg/grounding/xmlevent"
)

// collector is a Sink keeping every record it is handed
type collector struct {
	recs   []store.Record
	closed int
}

func (c *collector) Consume(rec store.Record) error {
	c.recs = append(c.recs, rec)
	return nil
}

func (c *collector) Close() error {
	c.closed++
	return nil
}

func build(t *testing.T, doc string) *collector {
	t.Helper()
	c := &collector{}
	require.NoError(t, xmlevent.Run(context.Background(), strings.NewReader(doc), NewBuilder(c)))
	return c
}

func wrap(entries ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<uniprot xmlns="http://uniprot.org/uniprot">
` + strings.Join(entries, "\n") + `
</uniprot>`
}

const p53Entry = `<entry dataset="Swiss-Prot">
  <accession>P04637</accession>
  <accession>Q15086</accession>
  <name>P53_HUMAN</name>
  <protein>
    <recommendedName>
      <fullName>Cellular tumor antigen p53</fullName>
      <shortName>TP53</shortName>
    </recommendedName>
    <alternativeName>
      <fullName>Antigen NY-CO-13</fullName>
    </alternativeName>
    <alternativeName>
      <fullName>Phosphoprotein p53</fullName>
      <shortName>p53</shortName>
    </alternativeName>
  </protein>
  <gene>
    <name type="primary">TP53</name>
    <name type="synonym">P53</name>
  </gene>
  <organism>
    <name type="scientific">Homo sapiens</name>
    <dbReference type="NCBI Taxonomy" id="9606"/>
  </organism>
  <reference key="1">
    <citation type="journal article">
      <title>Human p53 cellular tumor antigen.</title>
      <dbReference type="PubMed" id="3005395"/>
    </citation>
  </reference>
</entry>`

func TestBuilderExtractsEntry(t *testing.T) {
	c := build(t, wrap(p53Entry))

	require.Len(t, c.recs, 1)
	assert.Equal(t, 1, c.closed)

	got := c.recs[0]
	assert.Equal(t, store.Record{
		ID:   "P04637",
		Name: "P53_HUMAN",
		ProteinNames: []string{
			"Cellular tumor antigen p53",
			"TP53",
			"Antigen NY-CO-13",
			"p53",
		},
		GeneNames: []string{"TP53", "P53"},
		Organism:  "9606",
		Namespace: Namespace,
		Type:      EntryType,
	}, got)
}

func TestBuilderRules(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		check func(t *testing.T, r store.Record)
	}{
		{
			name: "duplicate accession keeps the first",
			entry: `<entry><accession>A1</accession><accession>A2</accession>
				<organism><dbReference id="9606"/></organism></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Equal(t, "A1", r.ID)
			},
		},
		{
			name: "last entry name wins",
			entry: `<entry><accession>A1</accession><name>FIRST</name><name>SECOND</name>
				<organism><dbReference id="9606"/></organism></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Equal(t, "SECOND", r.Name)
			},
		},
		{
			name: "recommended short and full both kept in order",
			entry: `<entry><accession>A1</accession><protein><recommendedName>
				<shortName>S</shortName><fullName>F</fullName>
				</recommendedName></protein></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Equal(t, []string{"S", "F"}, r.ProteinNames)
			},
		},
		{
			name: "submitted short only",
			entry: `<entry><accession>A1</accession><protein><submittedName>
				<shortName>S</shortName></submittedName></protein></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Equal(t, []string{"S"}, r.ProteinNames)
			},
		},
		{
			name: "submitted short and full keeps short",
			entry: `<entry><accession>A1</accession><protein><submittedName>
				<fullName>F</fullName><shortName>S</shortName></submittedName></protein></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Equal(t, []string{"S"}, r.ProteinNames)
			},
		},
		{
			name: "alternative full only",
			entry: `<entry><accession>A1</accession><protein><alternativeName>
				<fullName>F</fullName></alternativeName></protein></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Equal(t, []string{"F"}, r.ProteinNames)
			},
		},
		{
			name: "empty alternative name adds nothing",
			entry: `<entry><accession>A1</accession><protein><alternativeName>
				</alternativeName></protein></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Empty(t, r.ProteinNames)
				assert.NotNil(t, r.ProteinNames)
			},
		},
		{
			name: "accumulators reset between names",
			entry: `<entry><accession>A1</accession><protein>
				<alternativeName><shortName>S1</shortName></alternativeName>
				<alternativeName><fullName>F2</fullName></alternativeName>
				</protein></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Equal(t, []string{"S1", "F2"}, r.ProteinNames)
			},
		},
		{
			name: "names outside protein are ignored",
			entry: `<entry><accession>A1</accession>
				<feature><recommendedName><fullName>X</fullName></recommendedName></feature>
				<organism><name>Homo sapiens</name></organism></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Empty(t, r.ProteinNames)
				assert.Empty(t, r.GeneNames)
				assert.Empty(t, r.Name)
			},
		},
		{
			name: "dbReference outside organism is ignored",
			entry: `<entry><accession>A1</accession>
				<dbReference type="PDB" id="1A1U"/></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Empty(t, r.Organism)
			},
		},
		{
			name: "nested entry does not finalize the record",
			entry: `<entry><accession>A1</accession>
				<comment><entry>x</entry></comment>
				<organism><dbReference type="NCBI Taxonomy" id="9606"/></organism></entry>`,
			check: func(t *testing.T, r store.Record) {
				assert.Equal(t, "A1", r.ID)
				assert.Equal(t, "9606", r.Organism)
			},
		},
		{
			name:  "whitespace text ignored",
			entry: "<entry><accession>A1</accession><name>  \n\t </name></entry>",
			check: func(t *testing.T, r store.Record) {
				assert.Empty(t, r.Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := build(t, wrap(tt.entry))
			require.Len(t, c.recs, 1)
			tt.check(t, c.recs[0])
		})
	}
}

func TestBuilderEntryOutsideUniprotRoot(t *testing.T) {
	c := build(t, `<other><entry><accession>A1</accession></entry></other>`)
	assert.Empty(t, c.recs)
	assert.Equal(t, 1, c.closed)
}

func TestBuilderRecordsAreIndependent(t *testing.T) {
	c := build(t, wrap(
		`<entry><accession>A1</accession><gene><name>G1</name></gene></entry>`,
		`<entry><accession>A2</accession><gene><name>G2</name></gene></entry>`,
	))

	require.Len(t, c.recs, 2)
	assert.Equal(t, []string{"G1"}, c.recs[0].GeneNames)
	assert.Equal(t, []string{"G2"}, c.recs[1].GeneNames)
}

func TestBuilderMalformedDocumentDoesNotClose(t *testing.T) {
	c := &collector{}
	err := xmlevent.Run(context.Background(),
		strings.NewReader(`<uniprot><entry><accession>A1</accession>`), NewBuilder(c))
	require.Error(t, err)
	assert.Equal(t, 0, c.closed)
}
