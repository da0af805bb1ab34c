package store

import "github.com/cognicore/grounding/pkg/grounding/rank"

var scorer = rank.NewScorer(rank.DefaultWeights())

// RankRecords keeps the records matching the query, orders them by
// relevance and returns the [from, from+size) page. Stores share it so that
// every backend orders results identically.
func RankRecords(query string, recs []Record, from, size int) []Record {
	rk := NewRanking(query, from, size)
	for _, r := range recs {
		rk.Add(r)
	}
	return rk.Page()
}

// Ranking collects matching records one at a time and keeps only the best
// from+size of them, so a store can stream an unbounded candidate set
// through it.
type Ranking struct {
	q          rank.Query
	from, size int
	limit      int // 0 keeps everything

	scored []rank.Scored
	byKey  map[string]Record
}

// NewRanking prepares a ranking for the [from, from+size) page of query.
// A negative size asks for every match.
func NewRanking(query string, from, size int) *Ranking {
	if from < 0 {
		from = 0
	}
	rk := &Ranking{
		q:     rank.ParseQuery(query),
		from:  from,
		size:  size,
		byKey: make(map[string]Record),
	}
	if size >= 0 {
		rk.limit = from + size
	}
	return rk
}

// Add scores r and keeps it if it matches the query
func (rk *Ranking) Add(r Record) {
	if rk.q.Empty() || rk.size == 0 {
		return
	}
	fields := r.SearchFields()
	if !rank.Match(rk.q, fields) {
		return
	}
	key := r.Key()
	if _, dup := rk.byKey[key]; dup {
		for i := range rk.scored {
			if rk.scored[i].Key == key {
				rk.scored = append(rk.scored[:i], rk.scored[i+1:]...)
				break
			}
		}
	}
	rk.byKey[key] = r
	rk.scored = append(rk.scored, rank.Scored{Key: key, Score: scorer.Score(rk.q, fields)})

	if rk.limit > 0 && len(rk.scored) >= 2*rk.limit+64 {
		rk.prune()
	}
}

// prune drops everything below the first limit entries of the total order
func (rk *Ranking) prune() {
	rank.Sort(rk.scored)
	for _, s := range rk.scored[rk.limit:] {
		delete(rk.byKey, s.Key)
	}
	rk.scored = rk.scored[:rk.limit]
}

// Page returns the requested page, best match first
func (rk *Ranking) Page() []Record {
	if rk.q.Empty() || rk.size == 0 {
		return []Record{}
	}
	rank.Sort(rk.scored)

	start, end := rank.Page(len(rk.scored), rk.from, rk.size)
	out := make([]Record, 0, end-start)
	for _, s := range rk.scored[start:end] {
		out = append(out, rk.byKey[s.Key])
	}
	return out
}
