package index

import "sort"

// Posting records one document's occurrences of a term: positions per field
// and the total frequency across fields. A document appears at most once in
// a term's postings list.
type Posting struct {
	DocID     string           `json:"doc_id"`
	Fields    map[string][]int `json:"fields"`
	Frequency int              `json:"frequency"`
}

// PostingList is a term's postings, ordered by ascending document id. Lists
// are immutable once published to a snapshot; mutation always builds a new
// list.
type PostingList []Posting

// find returns the index of docID in the list and whether it is present.
func (pl PostingList) find(docID string) (int, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
	return i, i < len(pl) && pl[i].DocID == docID
}

// withPosting returns a new list with p inserted or replaced at its sorted
// position. The receiver is not modified.
func (pl PostingList) withPosting(p Posting) PostingList {
	i, exists := pl.find(p.DocID)
	next := make(PostingList, 0, len(pl)+1)
	next = append(next, pl[:i]...)
	next = append(next, p)
	if exists {
		next = append(next, pl[i+1:]...)
	} else {
		next = append(next, pl[i:]...)
	}
	return next
}

// withoutDoc returns a new list with docID removed, or the receiver itself
// if docID is absent.
func (pl PostingList) withoutDoc(docID string) PostingList {
	i, exists := pl.find(docID)
	if !exists {
		return pl
	}
	next := make(PostingList, 0, len(pl)-1)
	next = append(next, pl[:i]...)
	next = append(next, pl[i+1:]...)
	return next
}

// Ordered reports whether the list is strictly ordered by document id with
// no duplicates. Used when restoring snapshots: a violation means the
// snapshot is corrupt, not that the input was bad.
func (pl PostingList) Ordered() bool {
	for i := 1; i < len(pl); i++ {
		if pl[i-1].DocID >= pl[i].DocID {
			return false
		}
	}
	return true
}

// TermEntry pairs a term with its postings list for snapshot serialisation.
type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}
