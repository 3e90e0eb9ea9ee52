package index

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/quiver-search/quiver/internal/analyzer"
)

func newTestIndex() *Index {
	return New(analyzer.New(analyzer.WithStemmer(analyzer.NoStemmer{})))
}

func TestAddAndLookup(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{
		"name":        "iPhone 14",
		"description": "flagship smartphone",
	})

	pl := idx.Postings("smartphone")
	if len(pl) != 1 {
		t.Fatalf("expected one posting, got %d", len(pl))
	}
	if pl[0].DocID != "doc-1" {
		t.Errorf("posting doc id = %q", pl[0].DocID)
	}
	if positions := pl[0].Fields["description"]; len(positions) != 1 || positions[0] != 1 {
		t.Errorf("description positions = %v, want [1]", positions)
	}
	if !idx.HasDoc("doc-1") {
		t.Error("HasDoc(doc-1) = false")
	}
	if idx.DocCount() != 1 {
		t.Errorf("DocCount = %d", idx.DocCount())
	}
}

func TestAddAllFieldsSearchable(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{
		"title": "alpha",
		"body":  "beta gamma",
	})

	for _, term := range []string{"alpha", "beta", "gamma"} {
		if !idx.HasTerm(term) {
			t.Errorf("term %q missing from dictionary", term)
		}
	}
	if idx.DocLength("doc-1") != 3 {
		t.Errorf("DocLength = %d, want 3", idx.DocLength("doc-1"))
	}
}

func TestReAddReplacesPostings(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "old content here"})
	idx.Add("doc-1", map[string]string{"body": "fresh words"})

	if idx.HasTerm("old") {
		t.Error("stale term 'old' survived re-add")
	}
	if !idx.HasTerm("fresh") {
		t.Error("new term 'fresh' missing")
	}
	if idx.DocCount() != 1 {
		t.Errorf("DocCount = %d, want 1", idx.DocCount())
	}
	if idx.DocLength("doc-1") != 2 {
		t.Errorf("DocLength = %d, want 2", idx.DocLength("doc-1"))
	}
}

func TestRemove(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "shared unique1"})
	idx.Add("doc-2", map[string]string{"body": "shared unique2"})

	idx.Remove("doc-1")

	if idx.HasDoc("doc-1") {
		t.Error("doc-1 still present after Remove")
	}
	if idx.HasTerm("unique1") {
		t.Error("term unique to removed doc still in dictionary")
	}
	pl := idx.Postings("shared")
	if len(pl) != 1 || pl[0].DocID != "doc-2" {
		t.Errorf("shared postings after remove = %+v", pl)
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "content"})
	idx.Remove("ghost")
	if idx.DocCount() != 1 {
		t.Errorf("DocCount = %d after removing unknown id", idx.DocCount())
	}
}

func TestPostingsOrderedByDocID(t *testing.T) {
	idx := newTestIndex()
	// Insert out of id order; postings must still come back sorted.
	for _, id := range []string{"doc-3", "doc-1", "doc-2"} {
		idx.Add(id, map[string]string{"body": "common"})
	}
	pl := idx.Postings("common")
	if !pl.Ordered() {
		t.Fatalf("postings not ordered: %+v", pl)
	}
	if len(pl) != 3 || pl[0].DocID != "doc-1" || pl[2].DocID != "doc-3" {
		t.Errorf("unexpected postings order: %+v", pl)
	}
}

func TestTermsWithPrefix(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "index indexing indexer interval zebra"})

	got := idx.TermsWithPrefix("index")
	want := []string{"index", "indexer", "indexing"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TermsWithPrefix(index) = %v, want %v", got, want)
	}

	if got := idx.TermsWithPrefix("nomatch"); got != nil {
		t.Errorf("TermsWithPrefix(nomatch) = %v, want nil", got)
	}
	if got := idx.TermsWithPrefix(""); got != nil {
		t.Errorf("TermsWithPrefix(\"\") = %v, want nil", got)
	}
}

func TestDocFreqAndAvgDocLength(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "alpha beta"})
	idx.Add("doc-2", map[string]string{"body": "alpha gamma delta epsilon"})

	if df := idx.DocFreq("alpha"); df != 2 {
		t.Errorf("DocFreq(alpha) = %d, want 2", df)
	}
	if df := idx.DocFreq("gamma"); df != 1 {
		t.Errorf("DocFreq(gamma) = %d, want 1", df)
	}
	if avg := idx.AvgDocLength(); avg != 3 {
		t.Errorf("AvgDocLength = %v, want 3", avg)
	}
}

func TestEntriesRestoreRoundTrip(t *testing.T) {
	src := newTestIndex()
	src.Add("doc-1", map[string]string{"title": "alpha beta", "body": "alpha"})
	src.Add("doc-2", map[string]string{"body": "beta gamma"})

	dst := newTestIndex()
	dst.Restore(src.Entries())

	if dst.DocCount() != src.DocCount() {
		t.Fatalf("DocCount = %d, want %d", dst.DocCount(), src.DocCount())
	}
	if dst.TermCount() != src.TermCount() {
		t.Fatalf("TermCount = %d, want %d", dst.TermCount(), src.TermCount())
	}
	if !reflect.DeepEqual(dst.Terms(), src.Terms()) {
		t.Errorf("dictionaries differ: %v vs %v", dst.Terms(), src.Terms())
	}
	if dst.DocLength("doc-1") != src.DocLength("doc-1") {
		t.Errorf("doc-1 length %d, want %d", dst.DocLength("doc-1"), src.DocLength("doc-1"))
	}
	if !reflect.DeepEqual(dst.Postings("alpha"), src.Postings("alpha")) {
		t.Errorf("alpha postings differ")
	}
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	idx := newTestIndex()
	idx.Add("seed", map[string]string{"body": "stable anchor"})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers loop while a writer churns documents. Every observed postings
	// list must be internally consistent: ordered and duplicate-free.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				pl := idx.Postings("anchor")
				if !pl.Ordered() {
					t.Error("reader observed unordered postings")
					return
				}
				if len(pl) == 0 {
					t.Error("anchor term vanished mid-flight")
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		idx.Add(fmt.Sprintf("doc-%d", i%20), map[string]string{
			"body": fmt.Sprintf("anchor payload%d", i),
		})
	}
	close(stop)
	wg.Wait()
}

func TestPostingListImmutability(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "pinned"})

	before := idx.Postings("pinned")
	idx.Add("doc-2", map[string]string{"body": "pinned"})

	// The list handed out before the second write must not have grown.
	if len(before) != 1 {
		t.Fatalf("earlier snapshot's postings mutated: %+v", before)
	}
	if after := idx.Postings("pinned"); len(after) != 2 {
		t.Fatalf("current postings = %d, want 2", len(after))
	}
}

func TestReset(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "something"})
	idx.Reset()
	if idx.DocCount() != 0 || idx.TermCount() != 0 {
		t.Errorf("Reset left docs=%d terms=%d", idx.DocCount(), idx.TermCount())
	}
}

func TestSnapshotViewPinsOneVersion(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "alpha beta"})

	view := idx.Snapshot()
	idx.Add("doc-1", map[string]string{"body": "alpha gamma"})

	// The view keeps answering from the version it pinned.
	if pl := view.Postings("beta"); len(pl) != 1 {
		t.Fatalf("pinned view lost its postings: %+v", pl)
	}
	if pl := view.Postings("gamma"); len(pl) != 0 {
		t.Fatalf("pinned view observed a later write: %+v", pl)
	}
	if n := view.DocLength("doc-1"); n != 2 {
		t.Errorf("view DocLength = %d, want 2", n)
	}

	// The index itself answers from the latest version.
	if pl := idx.Postings("beta"); len(pl) != 0 {
		t.Fatalf("index still serves replaced postings: %+v", pl)
	}
	if pl := idx.Postings("gamma"); len(pl) != 1 {
		t.Fatalf("index missing current postings: %+v", pl)
	}
}

func TestSnapshotViewPrefixAndCounts(t *testing.T) {
	idx := newTestIndex()
	idx.Add("doc-1", map[string]string{"body": "care cart cash"})
	view := idx.Snapshot()
	idx.Remove("doc-1")

	if got := view.TermsWithPrefix("car"); !reflect.DeepEqual(got, []string{"care", "cart"}) {
		t.Fatalf("TermsWithPrefix = %v, want [care cart]", got)
	}
	if !view.HasTerm("cash") {
		t.Error("HasTerm(cash) = false on pinned view")
	}
	if view.DocCount() != 1 {
		t.Errorf("view DocCount = %d, want 1", view.DocCount())
	}
	if idx.DocCount() != 0 {
		t.Errorf("index DocCount = %d, want 0", idx.DocCount())
	}
}
