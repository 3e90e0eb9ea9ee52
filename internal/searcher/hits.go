package searcher

// hit is one candidate document during evaluation, accumulated bottom-up
// through the query tree. Hit lists stay ordered by document id so boolean
// combination is a linear merge, never a cross product.
type hit struct {
	docID   string
	score   float64
	matched map[string][]string // field -> matched terms
}

type hitList []hit

func (h hit) mergeMatched(other hit) map[string][]string {
	if len(other.matched) == 0 {
		return h.matched
	}
	if len(h.matched) == 0 {
		return other.matched
	}
	merged := make(map[string][]string, len(h.matched)+len(other.matched))
	for field, terms := range h.matched {
		merged[field] = append(merged[field], terms...)
	}
	for field, terms := range other.matched {
		merged[field] = append(merged[field], terms...)
	}
	return merged
}

// intersectHits keeps documents present in both lists, summing scores.
func intersectHits(a, b hitList) hitList {
	var out hitList
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].docID < b[j].docID:
			i++
		case a[i].docID > b[j].docID:
			j++
		default:
			out = append(out, hit{
				docID:   a[i].docID,
				score:   a[i].score + b[j].score,
				matched: a[i].mergeMatched(b[j]),
			})
			i++
			j++
		}
	}
	return out
}

// unionHits keeps documents present in either list, summing scores for
// documents in both.
func unionHits(a, b hitList) hitList {
	out := make(hitList, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].docID < b[j].docID:
			out = append(out, a[i])
			i++
		case a[i].docID > b[j].docID:
			out = append(out, b[j])
			j++
		default:
			out = append(out, hit{
				docID:   a[i].docID,
				score:   a[i].score + b[j].score,
				matched: a[i].mergeMatched(b[j]),
			})
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// subtractHits keeps documents of a that are absent from b. Scores of b are
// irrelevant: exclusion does not contribute to ranking.
func subtractHits(a, b hitList) hitList {
	var out hitList
	i, j := 0, 0
	for i < len(a) {
		for j < len(b) && b[j].docID < a[i].docID {
			j++
		}
		if j < len(b) && b[j].docID == a[i].docID {
			i++
			continue
		}
		out = append(out, a[i])
		i++
	}
	return out
}
