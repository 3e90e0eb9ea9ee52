// Package engine is the public entry point of the search core. It wires the
// analyzer, inverted index, synonym table, fuzzy matcher, and evaluator
// behind a narrow ingest/search API and owns no algorithmic logic of its
// own.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quiver-search/quiver/internal/analyzer"
	"github.com/quiver-search/quiver/internal/index"
	"github.com/quiver-search/quiver/internal/query"
	"github.com/quiver-search/quiver/internal/searcher"
	"github.com/quiver-search/quiver/internal/synonym"
	"github.com/quiver-search/quiver/pkg/config"
	"github.com/quiver-search/quiver/pkg/errors"
)

// SearchOptions tunes one search call. Zero values fall back to the
// configured defaults.
type SearchOptions struct {
	MaxFuzzyDistance int      `json:"max_fuzzy_distance"`
	Fields           []string `json:"fields,omitempty"`
	Limit            int      `json:"limit"`
	Offset           int      `json:"offset"`
}

// Result is the outcome of one search call.
type Result struct {
	Query     string                  `json:"query"`
	TotalHits int                     `json:"total_hits"`
	Results   []searcher.ScoredResult `json:"results"`
	TookMs    int64                   `json:"took_ms"`
}

// Stats describes the current index state.
type Stats struct {
	Docs         int     `json:"docs"`
	Terms        int     `json:"terms"`
	AvgDocLength float64 `json:"avg_doc_length"`
}

// Engine coordinates the search core.
type Engine struct {
	cfg       config.EngineConfig
	searchCfg config.SearchConfig
	analyzer  *analyzer.Analyzer
	idx       *index.Index
	synonyms  *synonym.Table
	evaluator *searcher.Evaluator
	logger    *slog.Logger

	scorerOverride searcher.Scorer
}

// Option configures the Engine at construction.
type Option func(*Engine)

// WithStemmer overrides the analyzer's stemming strategy.
func WithStemmer(s analyzer.Stemmer) Option {
	return func(e *Engine) {
		e.analyzer = buildAnalyzer(e.cfg, s)
	}
}

// WithScorer overrides the ranking strategy.
func WithScorer(s searcher.Scorer) Option {
	return func(e *Engine) {
		e.scorerOverride = s
	}
}

// New creates an Engine from configuration.
func New(cfg config.EngineConfig, searchCfg config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		searchCfg: searchCfg,
		analyzer:  buildAnalyzer(cfg, nil),
		synonyms:  synonym.NewTable(),
		logger:    slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.idx = index.New(e.analyzer)
	e.evaluator = searcher.New(e.idx, e.synonyms)
	if e.scorerOverride != nil {
		e.evaluator.WithScorer(e.scorerOverride)
	}
	return e
}

func buildAnalyzer(cfg config.EngineConfig, stemmer analyzer.Stemmer) *analyzer.Analyzer {
	var opts []analyzer.Option
	if stemmer != nil {
		opts = append(opts, analyzer.WithStemmer(stemmer))
	} else if !cfg.Stemming {
		opts = append(opts, analyzer.WithStemmer(analyzer.NoStemmer{}))
	}
	if !cfg.StopWords {
		opts = append(opts, analyzer.WithoutStopWords())
	}
	if cfg.MinTokenLen > 0 {
		opts = append(opts, analyzer.WithMinTokenLen(cfg.MinTokenLen))
	}
	return analyzer.New(opts...)
}

// Ingest indexes a document. Re-ingesting an existing id replaces its
// postings atomically; a failed validation leaves the corpus untouched.
func (e *Engine) Ingest(id string, fields map[string]string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New(errors.ErrIngest, http.StatusBadRequest, "document id must not be empty")
	}
	if len(fields) == 0 {
		return errors.New(errors.ErrIngest, http.StatusBadRequest, "document needs at least one field")
	}
	for name, text := range fields {
		if strings.TrimSpace(name) == "" {
			return errors.Newf(errors.ErrIngest, http.StatusBadRequest, "document %q has an empty field name", id)
		}
		if e.cfg.MaxFieldBytes > 0 && len(text) > e.cfg.MaxFieldBytes {
			return errors.Newf(errors.ErrIngest, http.StatusBadRequest,
				"document %q field %q exceeds %d bytes", id, name, e.cfg.MaxFieldBytes)
		}
	}
	e.idx.Add(id, fields)
	return nil
}

// Delete removes a document. Deleting an unknown id is a no-op; Delete
// never fails.
func (e *Engine) Delete(id string) {
	e.idx.Remove(strings.TrimSpace(id))
}

// Search parses and evaluates a query string. Malformed query text returns
// an error satisfying errors.Is(err, errors.ErrQuerySyntax); it is never
// reported as an empty result.
func (e *Engine) Search(ctx context.Context, queryString string, opts SearchOptions) (*Result, error) {
	start := time.Now()

	node, err := query.Parse(queryString)
	if err != nil {
		return nil, err
	}
	evalOpts := e.clampOptions(opts)

	results, err := e.evaluator.Evaluate(ctx, node, searcher.Options{
		MaxFuzzyDistance: evalOpts.MaxFuzzyDistance,
		Fields:           evalOpts.Fields,
		Limit:            0, // paging applied after counting total hits
		Offset:           0,
	})
	if err != nil {
		return nil, err
	}
	total := len(results)
	if evalOpts.Offset > 0 {
		if evalOpts.Offset >= len(results) {
			results = results[:0]
		} else {
			results = results[evalOpts.Offset:]
		}
	}
	if len(results) > evalOpts.Limit {
		results = results[:evalOpts.Limit]
	}

	res := &Result{
		Query:     queryString,
		TotalHits: total,
		Results:   results,
		TookMs:    time.Since(start).Milliseconds(),
	}
	e.logger.Debug("search executed",
		"query", queryString,
		"total_hits", total,
		"returned", len(results),
		"fuzzy_distance", evalOpts.MaxFuzzyDistance,
	)
	return res, nil
}

// DefineSynonymClass registers an equivalence class. Members are normalised
// through the ingest analyzer so they match indexed terms; overlap with an
// existing class is rejected atomically.
func (e *Engine) DefineSynonymClass(members []string) error {
	normalised := make([]string, 0, len(members))
	for _, m := range members {
		term, ok := e.analyzer.NormalizeTerm(m)
		if !ok {
			return errors.Newf(errors.ErrConfiguration, http.StatusBadRequest,
				"synonym %q normalises to nothing", m)
		}
		normalised = append(normalised, term)
	}
	return e.synonyms.DefineClass(normalised)
}

// SynonymClasses returns every configured class.
func (e *Engine) SynonymClasses() [][]string {
	return e.synonyms.Classes()
}

// Stats reports the current corpus shape.
func (e *Engine) Stats() Stats {
	return Stats{
		Docs:         e.idx.DocCount(),
		Terms:        e.idx.TermCount(),
		AvgDocLength: e.idx.AvgDocLength(),
	}
}

// Index exposes the underlying index for snapshotting. Callers must treat
// returned data as read-only.
func (e *Engine) Index() *index.Index {
	return e.idx
}

// RestoreSynonyms replaces the synonym table, validating disjointness. Used
// when loading a snapshot.
func (e *Engine) RestoreSynonyms(classes [][]string) error {
	return e.synonyms.Restore(classes)
}

// fallbackLimit bounds result pages when neither the caller nor the
// configuration names a positive limit.
const fallbackLimit = 10

func (e *Engine) clampOptions(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = e.searchCfg.DefaultLimit
	}
	if opts.Limit <= 0 {
		opts.Limit = fallbackLimit
	}
	if e.searchCfg.MaxResults > 0 && opts.Limit > e.searchCfg.MaxResults {
		opts.Limit = e.searchCfg.MaxResults
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.MaxFuzzyDistance < 0 {
		opts.MaxFuzzyDistance = 0
	}
	if e.searchCfg.MaxFuzzyDistance > 0 && opts.MaxFuzzyDistance > e.searchCfg.MaxFuzzyDistance {
		opts.MaxFuzzyDistance = e.searchCfg.MaxFuzzyDistance
	}
	return opts
}
