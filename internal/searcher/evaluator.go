// Package searcher evaluates parsed query trees against the inverted index
// and ranks the results. Term nodes expand through the synonym table and,
// when enabled, the fuzzy matcher; boolean nodes combine ordered hit lists
// by linear merge.
package searcher

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/quiver-search/quiver/internal/fuzzy"
	"github.com/quiver-search/quiver/internal/index"
	"github.com/quiver-search/quiver/internal/query"
	"github.com/quiver-search/quiver/internal/synonym"
)

// Options controls one evaluation.
type Options struct {
	// MaxFuzzyDistance enables typo-tolerant matching of term nodes when
	// greater than zero. Prefix and phrase nodes are always exact.
	MaxFuzzyDistance int
	// Fields restricts matching to the named fields. Empty means all.
	Fields []string
	// Limit and Offset page the ranked results. Limit must be positive.
	Limit  int
	Offset int
}

// ScoredResult is one ranked document.
type ScoredResult struct {
	DocID   string              `json:"doc_id"`
	Score   float64             `json:"score"`
	Matched map[string][]string `json:"matched,omitempty"`
}

// Evaluator walks query trees. Safe for concurrent use; every evaluation
// works against the index snapshot current at its start.
type Evaluator struct {
	idx      *index.Index
	synonyms *synonym.Table
	scorer   Scorer
	logger   *slog.Logger
}

// New creates an Evaluator with the default BM25 scorer.
func New(idx *index.Index, synonyms *synonym.Table) *Evaluator {
	return &Evaluator{
		idx:      idx,
		synonyms: synonyms,
		scorer:   NewBM25Scorer(),
		logger:   slog.Default().With("component", "evaluator"),
	}
}

// WithScorer replaces the ranking strategy.
func (e *Evaluator) WithScorer(s Scorer) *Evaluator {
	e.scorer = s
	return e
}

// Evaluate resolves the query tree to a ranked result list: descending
// score, ties broken by ascending document id. Identical index state and
// query always produce the identical sequence.
func (e *Evaluator) Evaluate(ctx context.Context, node query.Node, opts Options) ([]ScoredResult, error) {
	// Pin one index version for the whole walk. Every posting, dictionary
	// and length lookup below answers from this view, so concurrent writes
	// cannot leak a half-old, half-new document into the result.
	view := e.idx.Snapshot()
	stats := CorpusStats{
		TotalDocs:    view.DocCount(),
		AvgDocLength: view.AvgDocLength(),
	}
	var fieldFilter map[string]struct{}
	if len(opts.Fields) > 0 {
		fieldFilter = make(map[string]struct{}, len(opts.Fields))
		for _, f := range opts.Fields {
			fieldFilter[f] = struct{}{}
		}
	}
	ev := &evaluation{
		Evaluator: e,
		view:      view,
		matcher:   fuzzy.NewMatcher(view),
		stats:     stats,
		fields:    fieldFilter,
		fuzzyDist: opts.MaxFuzzyDistance,
	}

	hits, err := ev.eval(ctx, node)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, ScoredResult{
			DocID:   h.docID,
			Score:   math.Round(h.score*10000) / 10000,
			Matched: h.matched,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []ScoredResult{}, nil
		}
		results = results[opts.Offset:]
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// evaluation carries per-call state so the Evaluator itself stays
// stateless.
type evaluation struct {
	*Evaluator
	view      *index.View
	matcher   *fuzzy.Matcher
	stats     CorpusStats
	fields    map[string]struct{}
	fuzzyDist int
}

func (ev *evaluation) eval(ctx context.Context, node query.Node) (hitList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case query.Term:
		return ev.evalTerm(n), nil
	case query.Prefix:
		return ev.evalPrefix(n), nil
	case query.Phrase:
		return ev.evalPhrase(n), nil
	case query.And:
		return ev.evalAnd(ctx, n)
	case query.Or:
		return ev.evalOr(ctx, n)
	case query.Not:
		// A negation with no positive sibling would require scanning the
		// whole corpus; reject it like any other malformed query.
		return nil, &query.SyntaxError{Pos: n.Pos, Msg: "negation requires at least one positive clause"}
	default:
		return nil, &query.SyntaxError{Pos: 0, Msg: "unknown query node"}
	}
}

func (ev *evaluation) evalAnd(ctx context.Context, n query.And) (hitList, error) {
	var positives []query.Node
	var negatives []query.Not
	for _, child := range n.Children {
		if not, isNot := child.(query.Not); isNot {
			negatives = append(negatives, not)
			continue
		}
		// A word the analyzer discards entirely, such as a stop word,
		// carries no signal; intersecting with it would wrongly empty the
		// result, so the clause is skipped instead.
		if ev.droppedTerm(child) {
			continue
		}
		positives = append(positives, child)
	}
	if len(positives) == 0 {
		if len(negatives) > 0 {
			return nil, &query.SyntaxError{Pos: negatives[0].Pos, Msg: "negation requires at least one positive clause"}
		}
		return nil, nil
	}

	hits, err := ev.eval(ctx, positives[0])
	if err != nil {
		return nil, err
	}
	for _, child := range positives[1:] {
		if len(hits) == 0 {
			return nil, nil
		}
		childHits, err := ev.eval(ctx, child)
		if err != nil {
			return nil, err
		}
		hits = intersectHits(hits, childHits)
	}
	for _, not := range negatives {
		if len(hits) == 0 {
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		excluded, err := ev.eval(ctx, not.Child)
		if err != nil {
			return nil, err
		}
		hits = subtractHits(hits, excluded)
	}
	return hits, nil
}

func (ev *evaluation) evalOr(ctx context.Context, n query.Or) (hitList, error) {
	var hits hitList
	for _, child := range n.Children {
		childHits, err := ev.eval(ctx, child)
		if err != nil {
			return nil, err
		}
		hits = unionHits(hits, childHits)
	}
	return hits, nil
}

// evalTerm normalises the query word through the ingest analyzer, expands
// it through synonyms and (optionally) the fuzzy matcher, and unions the
// postings of every expanded term.
// droppedTerm reports whether node is a bare term that normalisation
// discards, leaving nothing to look up.
func (ev *evaluation) droppedTerm(node query.Node) bool {
	t, isTerm := node.(query.Term)
	if !isTerm {
		return false
	}
	_, ok := ev.idx.Analyzer().NormalizeTerm(t.Text)
	return !ok
}

func (ev *evaluation) evalTerm(n query.Term) hitList {
	term, ok := ev.idx.Analyzer().NormalizeTerm(n.Text)
	if !ok {
		return nil
	}
	var hits hitList
	for _, expanded := range ev.expandTerm(term) {
		hits = unionHits(hits, ev.termHits(expanded))
	}
	return hits
}

func (ev *evaluation) evalPrefix(n query.Prefix) hitList {
	stem := strings.ToLower(strings.TrimSpace(n.Stem))
	if stem == "" {
		return nil
	}
	var hits hitList
	for _, term := range ev.view.TermsWithPrefix(stem) {
		hits = unionHits(hits, ev.termHits(term))
	}
	return hits
}

// evalPhrase requires every constituent term in adjacent order within a
// single field occurrence. Phrase terms are exact: neither synonyms nor
// fuzzy matching apply inside quotes.
func (ev *evaluation) evalPhrase(n query.Phrase) hitList {
	terms := make([]string, 0, len(n.Words))
	for _, word := range n.Words {
		if term, ok := ev.idx.Analyzer().NormalizeTerm(word); ok {
			terms = append(terms, term)
		}
	}
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return ev.termHits(terms[0])
	}

	lists := make([]index.PostingList, len(terms))
	for i, term := range terms {
		lists[i] = ev.view.Postings(term)
		if len(lists[i]) == 0 {
			return nil
		}
	}

	var hits hitList
	cursors := make([]int, len(lists))
outer:
	for _, first := range lists[0] {
		aligned := make([]*index.Posting, len(lists))
		aligned[0] = &first
		for k := 1; k < len(lists); k++ {
			for cursors[k] < len(lists[k]) && lists[k][cursors[k]].DocID < first.DocID {
				cursors[k]++
			}
			if cursors[k] >= len(lists[k]) {
				break outer
			}
			if lists[k][cursors[k]].DocID != first.DocID {
				continue outer
			}
			aligned[k] = &lists[k][cursors[k]]
		}

		count, matchedFields := ev.phraseOccurrences(aligned)
		if count == 0 {
			continue
		}
		score := 0.0
		for i := range terms {
			score += ev.scorer.Score(count, len(lists[i]), ev.view.DocLength(first.DocID), ev.stats)
		}
		matched := make(map[string][]string, len(matchedFields))
		phrase := strings.Join(terms, " ")
		for _, field := range matchedFields {
			matched[field] = append(matched[field], phrase)
		}
		hits = append(hits, hit{docID: first.DocID, score: score, matched: matched})
	}
	return hits
}

// phraseOccurrences counts adjacency-ordered runs of the aligned postings
// within each allowed field, returning the total count and the fields that
// contain at least one run.
func (ev *evaluation) phraseOccurrences(aligned []*index.Posting) (int, []string) {
	total := 0
	var matchedFields []string
	for field, starts := range aligned[0].Fields {
		if !ev.fieldAllowed(field) {
			continue
		}
		candidates := starts
		for k := 1; k < len(aligned) && len(candidates) > 0; k++ {
			candidates = advanceAdjacent(candidates, aligned[k].Fields[field], k)
		}
		if len(candidates) > 0 {
			total += len(candidates)
			matchedFields = append(matchedFields, field)
		}
	}
	sort.Strings(matchedFields)
	return total, matchedFields
}

// advanceAdjacent keeps each start position p where p+offset appears in
// next. Both inputs are sorted, so this is a two-pointer merge.
func advanceAdjacent(starts, next []int, offset int) []int {
	var out []int
	j := 0
	for _, p := range starts {
		want := p + offset
		for j < len(next) && next[j] < want {
			j++
		}
		if j < len(next) && next[j] == want {
			out = append(out, p)
		}
	}
	return out
}

// termHits builds the ordered hit list for one exact term.
func (ev *evaluation) termHits(term string) hitList {
	postings := ev.view.Postings(term)
	if len(postings) == 0 {
		return nil
	}
	docFreq := len(postings)
	var hits hitList
	for _, p := range postings {
		tf := 0
		var matched map[string][]string
		for field, positions := range p.Fields {
			if !ev.fieldAllowed(field) {
				continue
			}
			tf += len(positions)
			if matched == nil {
				matched = make(map[string][]string, len(p.Fields))
			}
			matched[field] = append(matched[field], term)
		}
		if tf == 0 {
			continue
		}
		score := ev.scorer.Score(tf, docFreq, ev.view.DocLength(p.DocID), ev.stats)
		hits = append(hits, hit{docID: p.DocID, score: score, matched: matched})
	}
	return hits
}

// expandTerm applies synonym expansion, then fuzzy expansion of every
// synonym when enabled, and returns the deduplicated terms in sorted order
// so ranking stays deterministic.
func (ev *evaluation) expandTerm(term string) []string {
	set := make(map[string]struct{})
	for _, s := range ev.synonyms.Expand(term) {
		set[s] = struct{}{}
		if ev.fuzzyDist > 0 {
			for _, f := range ev.matcher.Expand(s, ev.fuzzyDist) {
				set[f] = struct{}{}
			}
		}
	}
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

func (ev *evaluation) fieldAllowed(field string) bool {
	if ev.fields == nil {
		return true
	}
	_, ok := ev.fields[field]
	return ok
}
