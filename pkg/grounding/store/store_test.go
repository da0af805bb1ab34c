package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordBuilders(t *testing.T) {
	r := NewRecord("uniprot", "protein")
	assert.NotNil(t, r.ProteinNames)
	assert.NotNil(t, r.GeneNames)

	r.SetIDOnce("P04637")
	r.SetIDOnce("Q15086")
	assert.Equal(t, "P04637", r.ID)

	r.SetName("FIRST")
	r.SetName("P53_HUMAN")
	assert.Equal(t, "P53_HUMAN", r.Name)

	r.AddProteinName("Cellular tumor antigen p53")
	r.AddProteinName("p53")
	r.AddGeneName("TP53")
	assert.Equal(t, []string{"Cellular tumor antigen p53", "p53"}, r.ProteinNames)
	assert.Equal(t, "uniprot:P04637", r.Key())
	assert.Len(t, r.SearchFields(), 5)
}

func TestCloneIsDeep(t *testing.T) {
	r := Record{ID: "A1", GeneNames: []string{"G1"}, ProteinNames: []string{"P1"}}
	c := r.Clone()
	c.GeneNames[0] = "X"
	c.ProteinNames = append(c.ProteinNames, "P2")

	assert.Equal(t, []string{"G1"}, r.GeneNames)
	assert.Equal(t, []string{"P1"}, r.ProteinNames)
}

func TestRankRecords(t *testing.T) {
	recs := []Record{
		{ID: "A2", Namespace: "uniprot", GeneNames: []string{"TP53BP1"}},
		{ID: "A1", Namespace: "uniprot", GeneNames: []string{"TP53"}},
		{ID: "A3", Namespace: "uniprot", GeneNames: []string{"BRCA1"}},
	}

	got := RankRecords("tp53", recs, 0, 10)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "A1", got[0].ID)
		assert.Equal(t, "A2", got[1].ID)
	}

	assert.Empty(t, RankRecords("", recs, 0, 10))
	assert.NotNil(t, RankRecords("", recs, 0, 10))
	assert.Empty(t, RankRecords("tp53", recs, 5, 10))
}

func TestRankingKeepsBestAcrossPrunes(t *testing.T) {
	rk := NewRanking("tp", 2, 3)
	for i := 0; i < 500; i++ {
		rk.Add(Record{ID: fmt.Sprintf("X%03d", i), Namespace: "uniprot", ProteinNames: []string{fmt.Sprintf("tpx %d", i)}})
	}
	rk.Add(Record{ID: "Z1", Namespace: "uniprot", GeneNames: []string{"TP53"}})
	rk.Add(Record{ID: "Z2", Namespace: "uniprot", GeneNames: []string{"TP"}})

	got := rk.Page()
	if assert.Len(t, got, 3) {
		// Z2 (exact gene) and Z1 (gene prefix) fill the skipped first page
		assert.Equal(t, "X000", got[0].ID)
		assert.Equal(t, "X001", got[1].ID)
		assert.Equal(t, "X002", got[2].ID)
	}

	all := NewRanking("tp", 0, -1)
	all.Add(Record{ID: "A", Namespace: "uniprot", GeneNames: []string{"TP53"}})
	all.Add(Record{ID: "A", Namespace: "uniprot", GeneNames: []string{"TP53"}})
	assert.Len(t, all.Page(), 1)
}
