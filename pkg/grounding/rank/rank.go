package rank

import (
	"sort"
	"strings"
)

// Kind identifies which part of a record a searchable field came from
type Kind string

const (
	KindID      Kind = "id"
	KindName    Kind = "name"
	KindProtein Kind = "protein"
	KindGene    Kind = "gene"
	KindSynonym Kind = "synonym"
)

// Field is one searchable string of a record
type Field struct {
	Kind Kind
	Text string
}

// Weights defines the scoring weights
type Weights struct {
	Exact      float64 // whole field equals the query
	Prefix     float64 // whole field starts with the query
	Token      float64 // every query token prefixes some field token
	GeneFactor float64 // multiplier applied to gene name hits
}

// DefaultWeights ranks exact names above prefixes above token hits, and
// prefers gene symbols over protein names at the same level.
func DefaultWeights() Weights {
	return Weights{
		Exact:      3,
		Prefix:     2,
		Token:      1,
		GeneFactor: 1.25,
	}
}

// Query is a parsed search string
type Query struct {
	Text   string // normalized full text
	Tokens []string
}

// ParseQuery normalizes and tokenizes a raw search string
func ParseQuery(raw string) Query {
	return Query{
		Text:   Normalize(raw),
		Tokens: Tokenize(raw),
	}
}

// Empty reports whether the query can match anything
func (q Query) Empty() bool {
	return len(q.Tokens) == 0
}

// Scorer calculates relevance scores for records
type Scorer struct {
	weights Weights
}

// NewScorer creates a new scorer with the given weights
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Match reports whether every query token is a prefix of at least one token
// in any of the fields.
func Match(q Query, fields []Field) bool {
	if q.Empty() {
		return false
	}
	for _, qt := range q.Tokens {
		found := false
		for _, f := range fields {
			if hasTokenPrefix(Tokenize(f.Text), qt) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Score returns the best field score for the query, or 0 when nothing in
// the record relates to it.
func (s *Scorer) Score(q Query, fields []Field) float64 {
	best := 0.0
	for _, f := range fields {
		score := s.fieldScore(q, f)
		if score > best {
			best = score
		}
	}
	return best
}

func (s *Scorer) fieldScore(q Query, f Field) float64 {
	name := Normalize(f.Text)
	var score float64
	switch {
	case name == q.Text:
		score = s.weights.Exact
	case strings.HasPrefix(name, q.Text):
		score = s.weights.Prefix
	case allTokensPrefixed(Tokenize(f.Text), q.Tokens):
		score = s.weights.Token
	default:
		return 0
	}
	if f.Kind == KindGene {
		score *= s.weights.GeneFactor
	}
	return score
}

// Scored pairs a sortable key with its score
type Scored struct {
	Key   string
	Score float64
}

// Sort orders by descending score, then ascending key so results are stable
// across stores.
func Sort(items []Scored) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Key < items[j].Key
	})
}

// Page slices [from, from+size) out of n items, clamped to the bounds.
func Page(n, from, size int) (int, int) {
	if from < 0 {
		from = 0
	}
	if from > n {
		from = n
	}
	end := n
	if size >= 0 && from+size < n {
		end = from + size
	}
	return from, end
}

func hasTokenPrefix(tokens []string, prefix string) bool {
	for _, t := range tokens {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func allTokensPrefixed(tokens, query []string) bool {
	if len(query) == 0 {
		return false
	}
	for _, qt := range query {
		if !hasTokenPrefix(tokens, qt) {
			return false
		}
	}
	return true
}
