// Package index implements the in-memory inverted index: a term-to-postings
// mapping plus a sorted term dictionary for prefix lookups.
//
// Mutations are serialized by a writer lock and published as a single atomic
// snapshot swap, so concurrent searches always observe either the fully-old
// or fully-new posting state for a document, never a partial update.
package index

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/quiver-search/quiver/internal/analyzer"
)

// snapshot is one immutable version of the index. Readers load the current
// snapshot once and work against it for the whole query.
type snapshot struct {
	postings    map[string]PostingList
	terms       []string // sorted dictionary over postings keys
	docLengths  map[string]int
	docTerms    map[string][]string
	totalTokens int64
}

var emptySnapshot = &snapshot{
	postings:   map[string]PostingList{},
	docLengths: map[string]int{},
	docTerms:   map[string][]string{},
}

// Index is the inverted index. The zero value is not usable; construct with
// New.
type Index struct {
	mu       sync.Mutex // serializes writers
	snap     atomic.Pointer[snapshot]
	analyzer *analyzer.Analyzer
	logger   *slog.Logger
}

// New creates an empty index that tokenises documents with the given
// analyzer.
func New(a *analyzer.Analyzer) *Index {
	idx := &Index{
		analyzer: a,
		logger:   slog.Default().With("component", "index"),
	}
	idx.snap.Store(emptySnapshot)
	return idx
}

// Analyzer returns the analyzer documents are ingested with. Query terms
// must pass through the same normalisation.
func (idx *Index) Analyzer() *analyzer.Analyzer {
	return idx.analyzer
}

// View is a pin on one immutable index version. Every lookup on the same
// View answers from the same snapshot, so a multi-read operation such as a
// query never mixes posting state from different versions, no matter how
// many writes are published while it runs.
type View struct {
	snap *snapshot
}

// Snapshot pins the current index version and returns a View over it.
func (idx *Index) Snapshot() *View {
	return &View{snap: idx.snap.Load()}
}

// Postings returns the postings list for an exact term, ordered by document
// id. The returned list is shared and must not be modified.
func (v *View) Postings(term string) PostingList {
	return v.snap.postings[term]
}

// TermsWithPrefix returns every dictionary term starting with prefix, in
// sorted order. An empty prefix returns nothing rather than the whole
// dictionary.
func (v *View) TermsWithPrefix(prefix string) []string {
	if prefix == "" {
		return nil
	}
	start := sort.SearchStrings(v.snap.terms, prefix)
	var out []string
	for i := start; i < len(v.snap.terms) && strings.HasPrefix(v.snap.terms[i], prefix); i++ {
		out = append(out, v.snap.terms[i])
	}
	return out
}

// Terms returns the sorted term dictionary. Shared; must not be modified.
func (v *View) Terms() []string {
	return v.snap.terms
}

// HasTerm reports whether term is in the dictionary.
func (v *View) HasTerm(term string) bool {
	_, ok := v.snap.postings[term]
	return ok
}

// DocLength returns the token count of a document, or 0 if unknown.
func (v *View) DocLength(id string) int {
	return v.snap.docLengths[id]
}

// DocCount returns the number of indexed documents.
func (v *View) DocCount() int {
	return len(v.snap.docTerms)
}

// AvgDocLength returns the mean token count across the corpus.
func (v *View) AvgDocLength() float64 {
	if len(v.snap.docTerms) == 0 {
		return 0
	}
	return float64(v.snap.totalTokens) / float64(len(v.snap.docTerms))
}

// Add indexes a document's fields under id. Re-adding an existing id fully
// retracts the old postings before inserting the new ones, so the operation
// is idempotent and never leaves stale entries behind.
func (idx *Index) Add(id string, fields map[string]string) {
	docPostings, tokenCount := idx.analyzeDoc(id, fields)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	next := cur.clone()
	next.retract(id)

	terms := make([]string, 0, len(docPostings))
	for term, posting := range docPostings {
		next.postings[term] = next.postings[term].withPosting(*posting)
		terms = append(terms, term)
	}
	sort.Strings(terms)
	next.docTerms[id] = terms
	next.docLengths[id] = tokenCount
	next.totalTokens += int64(tokenCount)
	next.rebuildDictionary()

	idx.snap.Store(next)
	idx.logger.Debug("document indexed",
		"doc_id", id,
		"token_count", tokenCount,
		"distinct_terms", len(terms),
	)
}

// Remove retracts all postings for id. Removing an unknown id is a no-op.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	if _, exists := cur.docTerms[id]; !exists {
		return
	}
	next := cur.clone()
	next.retract(id)
	next.rebuildDictionary()
	idx.snap.Store(next)
	idx.logger.Debug("document removed", "doc_id", id)
}

// Postings returns the postings list for an exact term in the current
// version. Multi-read callers should pin a Snapshot instead.
func (idx *Index) Postings(term string) PostingList {
	return idx.Snapshot().Postings(term)
}

// TermsWithPrefix returns every dictionary term starting with prefix, in
// sorted order.
func (idx *Index) TermsWithPrefix(prefix string) []string {
	return idx.Snapshot().TermsWithPrefix(prefix)
}

// Terms returns the sorted term dictionary. Shared; must not be modified.
func (idx *Index) Terms() []string {
	return idx.Snapshot().Terms()
}

// HasTerm reports whether term is in the dictionary.
func (idx *Index) HasTerm(term string) bool {
	return idx.Snapshot().HasTerm(term)
}

// HasDoc reports whether id is currently indexed.
func (idx *Index) HasDoc(id string) bool {
	_, ok := idx.snap.Load().docTerms[id]
	return ok
}

// DocCount returns the number of indexed documents.
func (idx *Index) DocCount() int {
	return idx.Snapshot().DocCount()
}

// TermCount returns the number of distinct terms.
func (idx *Index) TermCount() int {
	return len(idx.snap.Load().terms)
}

// DocFreq returns the number of documents containing term.
func (idx *Index) DocFreq(term string) int {
	return len(idx.snap.Load().postings[term])
}

// DocLength returns the token count of a document, or 0 if unknown.
func (idx *Index) DocLength(id string) int {
	return idx.Snapshot().DocLength(id)
}

// AvgDocLength returns the mean token count across the corpus.
func (idx *Index) AvgDocLength() float64 {
	return idx.Snapshot().AvgDocLength()
}

// Reset drops all documents and terms.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.snap.Store(emptySnapshot)
}

// Entries returns every term with its postings, ordered by term. Used by the
// snapshot writer.
func (idx *Index) Entries() []TermEntry {
	s := idx.snap.Load()
	entries := make([]TermEntry, 0, len(s.terms))
	for _, term := range s.terms {
		entries = append(entries, TermEntry{Term: term, Postings: s.postings[term]})
	}
	return entries
}

// Restore replaces the index contents with the given entries, rebuilding
// per-document statistics. Entries must carry ordered postings lists; the
// caller validates that before handing them over.
func (idx *Index) Restore(entries []TermEntry) {
	next := &snapshot{
		postings:   make(map[string]PostingList, len(entries)),
		docLengths: map[string]int{},
		docTerms:   map[string][]string{},
	}
	docTermSets := map[string][]string{}
	for _, entry := range entries {
		next.postings[entry.Term] = entry.Postings
		for _, p := range entry.Postings {
			docTermSets[p.DocID] = append(docTermSets[p.DocID], entry.Term)
			next.docLengths[p.DocID] += p.Frequency
			next.totalTokens += int64(p.Frequency)
		}
	}
	for id, terms := range docTermSets {
		sort.Strings(terms)
		next.docTerms[id] = terms
	}
	next.rebuildDictionary()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.snap.Store(next)
	idx.logger.Info("index restored", "terms", len(next.terms), "docs", len(next.docTerms))
}

// analyzeDoc tokenises every field and accumulates per-term postings for
// one document. Fields are visited in sorted order for determinism.
func (idx *Index) analyzeDoc(id string, fields map[string]string) (map[string]*Posting, int) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	docPostings := make(map[string]*Posting)
	tokenCount := 0
	for _, name := range names {
		for tok := range idx.analyzer.Tokens(fields[name], name) {
			p, exists := docPostings[tok.Term]
			if !exists {
				p = &Posting{DocID: id, Fields: make(map[string][]int, 1)}
				docPostings[tok.Term] = p
			}
			p.Fields[tok.Field] = append(p.Fields[tok.Field], tok.Position)
			p.Frequency++
			tokenCount++
		}
	}
	return docPostings, tokenCount
}

// clone copies the snapshot's top-level maps. Postings lists themselves are
// shared until a term is touched; touched terms get fresh lists from the
// with/without helpers.
func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		postings:    make(map[string]PostingList, len(s.postings)),
		docLengths:  make(map[string]int, len(s.docLengths)),
		docTerms:    make(map[string][]string, len(s.docTerms)),
		totalTokens: s.totalTokens,
	}
	for term, pl := range s.postings {
		next.postings[term] = pl
	}
	for id, n := range s.docLengths {
		next.docLengths[id] = n
	}
	for id, terms := range s.docTerms {
		next.docTerms[id] = terms
	}
	return next
}

// retract removes every posting for id and prunes terms whose lists become
// empty. Must be called on a cloned snapshot under the writer lock.
func (s *snapshot) retract(id string) {
	terms, exists := s.docTerms[id]
	if !exists {
		return
	}
	for _, term := range terms {
		pruned := s.postings[term].withoutDoc(id)
		if len(pruned) == 0 {
			delete(s.postings, term)
		} else {
			s.postings[term] = pruned
		}
	}
	s.totalTokens -= int64(s.docLengths[id])
	delete(s.docTerms, id)
	delete(s.docLengths, id)
}

func (s *snapshot) rebuildDictionary() {
	terms := make([]string, 0, len(s.postings))
	for term := range s.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	s.terms = terms
}
