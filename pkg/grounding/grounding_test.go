package grounding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/grounding/pkg/grounding/datasource/uniprot"
	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/store"
	"github.com/cognicore/grounding/pkg/grounding/store/memstore"
)

// fakeSource serves a fixed set of records
type fakeSource struct {
	ns       string
	recs     []store.Record
	searches atomic.Int32
	err      error
	block    chan struct{}
	entered  chan struct{}
}

func (f *fakeSource) Namespace() string { return f.ns }

func (f *fakeSource) Update(ctx context.Context, force bool) (ingest.Report, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	return ingest.Report{Namespace: f.ns}, f.err
}

func (f *fakeSource) Clear(ctx context.Context) error {
	f.recs = nil
	return nil
}

func (f *fakeSource) Search(ctx context.Context, text string, from, size int) ([]store.Record, error) {
	f.searches.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return store.RankRecords(text, f.recs, from, size), nil
}

func (f *fakeSource) Get(ctx context.Context, id string) (*store.Record, error) {
	for _, r := range f.recs {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func protein(id, gene string) store.Record {
	return store.Record{ID: id, Namespace: "uniprot", Type: "protein", GeneNames: []string{gene}}
}

func chemical(id, name string) store.Record {
	return store.Record{ID: id, Name: name, Namespace: "chebi", Type: "chemical"}
}

func TestSearchByNamespace(t *testing.T) {
	up := &fakeSource{ns: "uniprot", recs: []store.Record{protein("P04637", "TP53"), protein("P38398", "BRCA1")}}
	svc, err := New(Options{Datasources: []Datasource{up}})
	require.NoError(t, err)

	recs, err := svc.Search(context.Background(), "uniprot", "tp53", 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "P04637", recs[0].ID)

	_, err = svc.Search(context.Background(), "ncbi", "tp53", 0, 10)
	assert.ErrorIs(t, err, internalerr.ErrUnknownNamespace)
}

func TestAggregateSearchMergesByRank(t *testing.T) {
	up := &fakeSource{ns: "uniprot", recs: []store.Record{protein("P1", "IRON1"), protein("P2", "IRONLIKE")}}
	ch := &fakeSource{ns: "chebi", recs: []store.Record{chemical("CHEBI:18248", "iron"), chemical("CHEBI:1", "copper")}}
	svc, err := New(Options{Datasources: []Datasource{up, ch}})
	require.NoError(t, err)

	recs, err := svc.Search(context.Background(), "", "iron", 0, 10)
	require.NoError(t, err)

	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"CHEBI:18248", "P1", "P2"}, ids)

	page, err := svc.Search(context.Background(), "", "iron", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "P1", page[0].ID)
}

func TestAggregateSearchPropagatesErrors(t *testing.T) {
	boom := errors.New("index offline")
	svc, err := New(Options{Datasources: []Datasource{
		&fakeSource{ns: "uniprot"},
		&fakeSource{ns: "chebi", err: boom},
	}})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "", "iron", 0, 10)
	assert.ErrorIs(t, err, boom)
}

func TestSearchCache(t *testing.T) {
	up := &fakeSource{ns: "uniprot", recs: []store.Record{protein("P04637", "TP53")}}
	svc, err := New(Options{Datasources: []Datasource{up}, CacheSize: 8})
	require.NoError(t, err)
	ctx := context.Background()

	for _, q := range []string{"TP53", "tp53", "  tp53 "} {
		_, err := svc.Search(ctx, "uniprot", q, 0, 10)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, up.searches.Load())

	require.NoError(t, svc.Clear(ctx, "uniprot"))
	recs, err := svc.Search(ctx, "uniprot", "tp53", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.EqualValues(t, 2, up.searches.Load())
}

func TestNewRejectsDuplicateNamespaces(t *testing.T) {
	_, err := New(Options{Datasources: []Datasource{&fakeSource{ns: "uniprot"}, &fakeSource{ns: "uniprot"}}})
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestConcurrentUpdateConflicts(t *testing.T) {
	block := make(chan struct{})
	up := &fakeSource{ns: "uniprot", block: block, entered: make(chan struct{}, 1)}
	svc, err := New(Options{Datasources: []Datasource{up}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Update(context.Background(), "uniprot", false)
		assert.NoError(t, err)
	}()
	<-up.entered

	_, err = svc.Update(context.Background(), "uniprot", false)
	assert.ErrorIs(t, err, internalerr.ErrConflict)
	assert.ErrorIs(t, svc.Clear(context.Background(), "uniprot"), internalerr.ErrConflict)

	close(block)
	wg.Wait()

	up.block = nil
	_, err = svc.Update(context.Background(), "uniprot", false)
	assert.NoError(t, err)
}

func TestServiceWithUniprot(t *testing.T) {
	st := memstore.New()
	ds := uniprot.New(st, uniprot.Options{})
	svc, err := New(Options{Store: st, Datasources: []Datasource{ds}, CacheSize: 16})
	require.NoError(t, err)
	defer svc.Close()
	ctx := context.Background()

	doc := `<uniprot><entry>
  <accession>P04637</accession><name>P53_HUMAN</name>
  <gene><name>TP53</name></gene>
  <organism><dbReference type="NCBI Taxonomy" id="9606"/></organism>
</entry></uniprot>`
	_, err = ds.UpdateFromReader(ctx, strings.NewReader(doc))
	require.NoError(t, err)

	upper, err := svc.Search(ctx, "uniprot", "TP53", 0, 10)
	require.NoError(t, err)
	lower, err := svc.Search(ctx, "", "tp53", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, upper, lower)
	require.Len(t, upper, 1)

	rec, err := svc.Get(ctx, "uniprot", "P04637")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "P53_HUMAN", rec.Name)

	n, err := svc.Count(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	runs, err := svc.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = svc.Get(ctx, "chebi", "CHEBI:1")
	assert.ErrorIs(t, err, internalerr.ErrUnknownNamespace)
}
