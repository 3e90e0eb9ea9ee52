package server

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quiver-search/quiver/internal/engine"
	"github.com/quiver-search/quiver/internal/query"
	"github.com/quiver-search/quiver/pkg/config"
	"github.com/quiver-search/quiver/pkg/errors"
	"github.com/quiver-search/quiver/pkg/logger"
	"github.com/quiver-search/quiver/pkg/metrics"
	"github.com/quiver-search/quiver/pkg/middleware"
	"github.com/quiver-search/quiver/pkg/tracing"
)

// Handler serves the REST API over the engine.
type Handler struct {
	engine  *engine.Engine
	cache   *QueryCache
	catalog *Catalog
	metrics *metrics.Metrics
	cfg     config.SearchConfig
	logger  *slog.Logger
}

// NewHandler creates the API handler. cache, catalog, and m may be nil.
func NewHandler(eng *engine.Engine, cache *QueryCache, catalog *Catalog, m *metrics.Metrics, cfg config.SearchConfig) *Handler {
	return &Handler{
		engine:  eng,
		cache:   cache,
		catalog: catalog,
		metrics: m,
		cfg:     cfg,
		logger:  slog.Default().With("component", "api-handler"),
	}
}

// Routes registers all API routes on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("PUT /api/v1/documents/{id}", h.Ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/synonyms", h.DefineSynonyms)
	mux.HandleFunc("GET /api/v1/synonyms", h.ListSynonyms)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search", middleware.GetRequestID(r.Context()))
	defer func() {
		span.End()
		span.Log()
	}()
	log := logger.FromContext(ctx)

	queryString := r.URL.Query().Get("q")
	if queryString == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	opts, err := h.parseSearchOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	span.SetAttr("query", queryString)
	var result *engine.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, queryString, opts, func() (*engine.Result, error) {
			return h.engine.Search(ctx, queryString, opts)
		})
	} else {
		result, err = h.engine.Search(ctx, queryString, opts)
	}

	if err != nil {
		h.observeSearch(err, nil, start, cacheHit)
		var syntaxErr *query.SyntaxError
		if stderrors.As(err, &syntaxErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":    "query syntax error",
				"message":  syntaxErr.Msg,
				"position": syntaxErr.Pos,
			})
			return
		}
		log.Error("search failed", "query", queryString, "error", err)
		h.writeError(w, errors.HTTPStatusCode(err), "search failed")
		return
	}

	h.observeSearch(nil, result, start, cacheHit)
	span.SetAttr("total_hits", result.TotalHits)
	span.SetAttr("cache_hit", cacheHit)
	log.Info("search completed",
		"query", queryString,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	id := r.PathValue("id")

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID != "" && req.ID != id {
		h.writeError(w, http.StatusBadRequest, "body id does not match path id")
		return
	}

	if err := h.engine.Ingest(id, req.Fields); err != nil {
		log.Error("ingest rejected", "doc_id", id, "error", err)
		h.writeError(w, errors.HTTPStatusCode(err), err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.DocsIngestedTotal.Inc()
		h.updateIndexGauges()
	}
	if h.catalog != nil {
		if err := h.catalog.Save(ctx, id, req.Fields); err != nil {
			log.Error("catalog save failed", "doc_id", id, "error", err)
		}
	}
	h.invalidateCache(r)
	log.Info("document ingested", "doc_id", id, "fields", len(req.Fields))
	h.writeJSON(w, http.StatusCreated, IngestResponse{DocumentID: id, Status: "indexed"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	id := r.PathValue("id")

	h.engine.Delete(id)
	if h.metrics != nil {
		h.metrics.DocsDeletedTotal.Inc()
		h.updateIndexGauges()
	}
	if h.catalog != nil {
		if err := h.catalog.Delete(ctx, id); err != nil {
			log.Error("catalog delete failed", "doc_id", id, "error", err)
		}
	}
	h.invalidateCache(r)
	log.Info("document deleted", "doc_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DefineSynonyms(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req SynonymRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.engine.DefineSynonymClass(req.Members); err != nil {
		log.Error("synonym class rejected", "members", req.Members, "error", err)
		h.writeError(w, errors.HTTPStatusCode(err), err.Error())
		return
	}
	h.invalidateCache(r)
	log.Info("synonym class defined", "members", req.Members)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) ListSynonyms(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"classes": h.engine.SynonymClasses()})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusNotFound, "query cache not configured")
		return
	}
	hits, misses := h.cache.Stats()
	h.writeJSON(w, http.StatusOK, map[string]int64{"hits": hits, "misses": misses})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusNotFound, "query cache not configured")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseSearchOptions(r *http.Request) (engine.SearchOptions, error) {
	opts := engine.SearchOptions{Limit: h.cfg.DefaultLimit}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, stderrors.New("limit must be a positive integer")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, stderrors.New("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	if v := q.Get("fuzzy"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, stderrors.New("fuzzy must be a non-negative integer")
		}
		opts.MaxFuzzyDistance = n
	}
	if v := q.Get("fields"); v != "" {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.Fields = append(opts.Fields, f)
			}
		}
	}
	return opts, nil
}

func (h *Handler) observeSearch(err error, result *engine.Result, start time.Time, cacheHit bool) {
	if h.metrics == nil {
		return
	}
	cacheStatus := "nocache"
	if h.cache != nil {
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	}
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	switch {
	case stderrors.Is(err, errors.ErrQuerySyntax):
		h.metrics.SearchesTotal.WithLabelValues("syntax_error").Inc()
	case err != nil:
		h.metrics.SearchesTotal.WithLabelValues("error").Inc()
	case result.TotalHits == 0:
		h.metrics.SearchesTotal.WithLabelValues("zero_result").Inc()
	default:
		h.metrics.SearchesTotal.WithLabelValues("ok").Inc()
	}
	if err == nil {
		h.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}
}

func (h *Handler) updateIndexGauges() {
	stats := h.engine.Stats()
	h.metrics.IndexDocs.Set(float64(stats.Docs))
	h.metrics.IndexTerms.Set(float64(stats.Terms))
}

func (h *Handler) invalidateCache(r *http.Request) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
