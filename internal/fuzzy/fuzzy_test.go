package fuzzy

import (
	"reflect"
	"sort"
	"testing"
)

// sliceDict is a test Dictionary backed by a sorted string slice.
type sliceDict []string

func (d sliceDict) Terms() []string { return d }

func (d sliceDict) HasTerm(term string) bool {
	i := sort.SearchStrings(d, term)
	return i < len(d) && d[i] == term
}

func newDict(terms ...string) sliceDict {
	sort.Strings(terms)
	return sliceDict(terms)
}

func TestBoundedDistance(t *testing.T) {
	tests := []struct {
		a, b string
		max  int
		want int
		ok   bool
	}{
		{"", "", 2, 0, true},
		{"abc", "", 3, 3, true},
		{"abc", "", 2, 3, false},
		{"kitten", "sitting", 3, 3, true},
		{"hello", "hello", 0, 0, true},
		{"hello", "helo", 1, 1, true},
		{"hello", "help", 2, 2, true},
		{"flaw", "lawn", 2, 2, true},
	}
	for _, tt := range tests {
		got, ok := BoundedDistance([]rune(tt.a), []rune(tt.b), tt.max)
		if ok != tt.ok {
			t.Errorf("BoundedDistance(%q, %q, %d) ok = %v, want %v", tt.a, tt.b, tt.max, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("BoundedDistance(%q, %q, %d) = %d, want %d", tt.a, tt.b, tt.max, got, tt.want)
		}
	}
}

func TestBoundedDistanceEarlyExit(t *testing.T) {
	// Distance is far above the bound; the row-minimum check must bail out
	// rather than compute the exact value.
	_, ok := BoundedDistance([]rune("completely"), []rune("different"), 1)
	if ok {
		t.Fatal("expected ok=false for distance above bound")
	}
}

func TestBoundedDistanceUnicode(t *testing.T) {
	// Rune-level, not byte-level: a multi-byte rune counts as one edit.
	d, ok := BoundedDistance([]rune("café"), []rune("cafe"), 1)
	if !ok || d != 1 {
		t.Fatalf("got (%d, %v), want (1, true)", d, ok)
	}
}

func TestExpandZeroDistanceIsExactLookup(t *testing.T) {
	m := NewMatcher(newDict("hello", "help", "halo"))

	if got := m.Expand("hello", 0); !reflect.DeepEqual(got, []string{"hello"}) {
		t.Errorf("Expand(hello, 0) = %v", got)
	}
	if got := m.Expand("helo", 0); got != nil {
		t.Errorf("Expand(helo, 0) = %v, want nil", got)
	}
}

func TestExpandWithinDistance(t *testing.T) {
	m := NewMatcher(newDict("hello", "help", "halo", "world", "yellow"))

	got := m.Expand("helo", 1)
	want := []string{"halo", "hello", "help"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand(helo, 1) = %v, want %v", got, want)
	}
}

func TestExpandMonotoneInDistance(t *testing.T) {
	m := NewMatcher(newDict("cat", "bat", "rat", "cart", "chart", "dog"))

	d1 := m.Expand("cat", 1)
	d2 := m.Expand("cat", 2)
	if len(d2) < len(d1) {
		t.Fatalf("larger bound matched fewer terms: %v vs %v", d1, d2)
	}
	set := make(map[string]struct{}, len(d2))
	for _, term := range d2 {
		set[term] = struct{}{}
	}
	for _, term := range d1 {
		if _, ok := set[term]; !ok {
			t.Errorf("term %q matched at distance 1 but not 2", term)
		}
	}
}

func TestExpandLengthPreFilter(t *testing.T) {
	m := NewMatcher(newDict("a", "antidisestablishment"))
	if got := m.Expand("ant", 1); got != nil {
		t.Errorf("Expand(ant, 1) = %v, want nil", got)
	}
}

func TestExpandResultsSorted(t *testing.T) {
	m := NewMatcher(newDict("tone", "bone", "cone", "gone", "zone"))
	got := m.Expand("stone", 2)
	if !sort.StringsAreSorted(got) {
		t.Errorf("Expand results not sorted: %v", got)
	}
	if len(got) == 0 {
		t.Error("expected matches for stone within distance 2")
	}
}
