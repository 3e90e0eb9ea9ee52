// Package fuzzy matches query terms against the index's term dictionary by
// bounded Levenshtein edit distance. There is no precomputed distance
// structure: every expansion scans the dictionary, pre-filtered by length
// difference and abandoned early once a candidate provably exceeds the
// bound. This trades query latency for zero index overhead.
package fuzzy

// Dictionary is the source of candidate terms, satisfied by the index.
type Dictionary interface {
	Terms() []string
	HasTerm(term string) bool
}

// Matcher expands terms against a Dictionary.
type Matcher struct {
	dict Dictionary
}

// NewMatcher creates a Matcher over the given dictionary.
func NewMatcher(dict Dictionary) *Matcher {
	return &Matcher{dict: dict}
}

// Expand returns every dictionary term within maxDistance edits of term, in
// dictionary (sorted) order. maxDistance 0 degenerates to exact lookup:
// the term itself if indexed, otherwise nothing.
func (m *Matcher) Expand(term string, maxDistance int) []string {
	if maxDistance <= 0 {
		if m.dict.HasTerm(term) {
			return []string{term}
		}
		return nil
	}
	target := []rune(term)
	var out []string
	for _, candidate := range m.dict.Terms() {
		cr := []rune(candidate)
		if diff := len(target) - len(cr); diff > maxDistance || diff < -maxDistance {
			continue
		}
		if d, ok := BoundedDistance(target, cr, maxDistance); ok && d <= maxDistance {
			out = append(out, candidate)
		}
	}
	return out
}

// BoundedDistance computes the Levenshtein distance between a and b using a
// two-row dynamic program. It returns ok=false as soon as every cell in the
// current row exceeds max, meaning the true distance is provably above the
// bound and the exact value does not matter.
func BoundedDistance(a, b []rune, max int) (int, bool) {
	if len(a) == 0 {
		return len(b), len(b) <= max
	}
	if len(b) == 0 {
		return len(a), len(a) <= max
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minOf(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return 0, false
		}
		prev, curr = curr, prev
	}
	return prev[len(b)], prev[len(b)] <= max
}

func minOf(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
