package rank

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"TP53", []string{"tp53"}},
		{"Cellular tumor antigen p53", []string{"cellular", "tumor", "antigen", "p53"}},
		{"P53_HUMAN", []string{"p53", "human"}},
		{"NF-kappa-B", []string{"nf-kappa-b"}},
		{"a -- b", []string{"a", "b"}},
		{"  ", nil},
	}

	for _, tt := range tests {
		got := Tokenize(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Tumor   Antigen\tP53 "); got != "tumor antigen p53" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestMatchRequiresEveryToken(t *testing.T) {
	fields := []Field{
		{Kind: KindProtein, Text: "Cellular tumor antigen p53"},
		{Kind: KindGene, Text: "TP53"},
	}

	tests := []struct {
		query string
		want  bool
	}{
		{"tp", true},
		{"TP53", true},
		{"tumor p53", true},
		{"tumor tp53", true},
		{"tumor brca", false},
		{"umor", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := Match(ParseQuery(tt.query), fields); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestScoreLevels(t *testing.T) {
	s := NewScorer(DefaultWeights())
	q := ParseQuery("p53")

	exact := s.Score(q, []Field{{Kind: KindProtein, Text: "P53"}})
	prefix := s.Score(q, []Field{{Kind: KindProtein, Text: "p53 protein"}})
	token := s.Score(q, []Field{{Kind: KindProtein, Text: "cellular p53"}})
	none := s.Score(q, []Field{{Kind: KindProtein, Text: "brca1"}})

	if !(exact > prefix && prefix > token && token > none) {
		t.Fatalf("expected exact > prefix > token > none, got %v %v %v %v", exact, prefix, token, none)
	}
	if none != 0 {
		t.Errorf("unrelated field scored %v", none)
	}

	gene := s.Score(q, []Field{{Kind: KindGene, Text: "P53"}})
	if gene <= exact {
		t.Errorf("gene hit %v should outrank protein hit %v", gene, exact)
	}
}

func TestScoreIgnoresCase(t *testing.T) {
	s := NewScorer(DefaultWeights())
	fields := []Field{{Kind: KindGene, Text: "TP53"}}

	if a, b := s.Score(ParseQuery("TP53"), fields), s.Score(ParseQuery("tp53"), fields); a != b {
		t.Errorf("scores differ by case: %v vs %v", a, b)
	}
}

func TestSortTiesByKey(t *testing.T) {
	items := []Scored{
		{Key: "uniprot:B", Score: 1},
		{Key: "uniprot:C", Score: 2},
		{Key: "uniprot:A", Score: 1},
	}
	Sort(items)

	var keys []string
	for _, it := range items {
		keys = append(keys, it.Key)
	}
	want := []string{"uniprot:C", "uniprot:A", "uniprot:B"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Sort = %v, want %v", keys, want)
	}
}

func TestPage(t *testing.T) {
	tests := []struct {
		n, from, size int
		start, end    int
	}{
		{10, 0, 3, 0, 3},
		{10, 8, 5, 8, 10},
		{10, 12, 5, 10, 10},
		{10, -2, 3, 0, 3},
		{10, 0, -1, 0, 10},
		{0, 0, 10, 0, 0},
	}

	for _, tt := range tests {
		start, end := Page(tt.n, tt.from, tt.size)
		if start != tt.start || end != tt.end {
			t.Errorf("Page(%d, %d, %d) = [%d, %d), want [%d, %d)", tt.n, tt.from, tt.size, start, end, tt.start, tt.end)
		}
	}
}
