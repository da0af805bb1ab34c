package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/store"
)

func record(id, gene string) store.Record {
	r := store.NewRecord("uniprot", "protein")
	r.SetIDOnce(id)
	r.AddGeneName(gene)
	r.SetOrganism("9606")
	return *r
}

func TestInsertRequiresIndex(t *testing.T) {
	s := New()
	err := s.InsertRecords(context.Background(), []store.Record{record("A1", "G1")}, false)
	assert.ErrorIs(t, err, internalerr.ErrStoreUnavailable)
	assert.ErrorIs(t, s.DisableAutoRefresh(context.Background()), internalerr.ErrStoreUnavailable)
}

func TestRefreshSemantics(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureIndex(ctx))

	require.NoError(t, s.InsertRecords(ctx, []store.Record{record("A1", "G1")}, false))
	n, _ := s.Count(ctx, "uniprot")
	assert.EqualValues(t, 1, n, "auto refresh is on by default")

	require.NoError(t, s.DisableAutoRefresh(ctx))
	require.NoError(t, s.InsertRecords(ctx, []store.Record{record("A2", "G2")}, false))
	n, _ = s.Count(ctx, "uniprot")
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, s.Pending())

	_, ok, _ := s.Get(ctx, "A2", "uniprot")
	assert.False(t, ok)

	require.NoError(t, s.RefreshIndex(ctx))
	n, _ = s.Count(ctx, "")
	assert.EqualValues(t, 2, n)
	assert.Zero(t, s.Pending())

	require.NoError(t, s.InsertRecords(ctx, []store.Record{record("A3", "G3")}, true))
	n, _ = s.Count(ctx, "uniprot")
	assert.EqualValues(t, 3, n)
}

func TestStoredRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureIndex(ctx))

	rec := record("A1", "G1")
	require.NoError(t, s.InsertRecords(ctx, []store.Record{rec}, false))
	rec.GeneNames[0] = "CHANGED"

	got, ok, err := s.Get(ctx, "A1", "uniprot")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"G1"}, got.GeneNames)
}

func TestClearNamespaceKeepsOthers(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureIndex(ctx))

	chem := store.Record{ID: "CHEBI:1", Name: "iron", Namespace: "chebi", Type: "chemical"}
	require.NoError(t, s.InsertRecords(ctx, []store.Record{record("A1", "G1"), chem}, false))
	require.NoError(t, s.DisableAutoRefresh(ctx))
	require.NoError(t, s.InsertRecords(ctx, []store.Record{record("A2", "G2")}, false))

	require.NoError(t, s.ClearNamespace(ctx, "uniprot"))
	require.NoError(t, s.RefreshIndex(ctx))

	n, _ := s.Count(ctx, "uniprot")
	assert.Zero(t, n)
	n, _ = s.Count(ctx, "chebi")
	assert.EqualValues(t, 1, n)
}

func TestSearchRanksAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureIndex(ctx))
	require.NoError(t, s.InsertRecords(ctx, []store.Record{
		record("A2", "TP53BP1"),
		record("A1", "TP53"),
		record("A3", "BRCA1"),
	}, false))

	recs, err := s.Search(ctx, "TP53", "uniprot", 0, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "A1", recs[0].ID)
	assert.Equal(t, "A2", recs[1].ID)

	recs, err = s.Search(ctx, "tp53", "", 1, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A2", recs[0].ID)

	recs, err = s.Search(ctx, "   ", "uniprot", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDeleteIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureIndex(ctx))
	require.NoError(t, s.InsertRecords(ctx, []store.Record{record("A1", "G1")}, false))

	require.NoError(t, s.DeleteIndex(ctx))
	ok, _ := s.Exists(ctx)
	assert.False(t, ok)
	n, _ := s.Count(ctx, "")
	assert.Zero(t, n)
}

func TestRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.RecordRun(ctx, store.Run{ID: id, Started: base.Add(time.Duration(i) * time.Minute)}))
	}

	runs, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
}
