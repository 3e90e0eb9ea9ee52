// Package integration contains tests that verify the wiring between the
// HTTP handler, the engine, and real external dependencies. The Redis
// query-cache tests and PostgreSQL catalog tests skip when the respective
// backend is unavailable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/quiver-search/quiver/internal/engine"
	"github.com/quiver-search/quiver/internal/server"
	"github.com/quiver-search/quiver/pkg/config"
	"github.com/quiver-search/quiver/pkg/postgres"
	pkgredis "github.com/quiver-search/quiver/pkg/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testEngine() *engine.Engine {
	return engine.New(
		config.EngineConfig{Stemming: true, StopWords: true, MinTokenLen: 2, MaxFieldBytes: 1 << 20},
		testSearchConfig(),
	)
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{DefaultLimit: 10, MaxResults: 100, MaxFuzzyDistance: 2}
}

func testRedisConfig() config.RedisConfig {
	return config.RedisConfig{
		Addr:     envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		DB:       envOrDefaultInt("TEST_REDIS_DB", 15),
		PoolSize: 5,
		CacheTTL: time.Minute,
	}
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "quiver_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "quiver"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// skipIfNoRedis skips the test when Redis is unavailable.
func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	client, err := pkgredis.NewClient(testRedisConfig())
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newCachedServer wires a handler with a live Redis-backed query cache.
func newCachedServer(t *testing.T, client *pkgredis.Client) (*httptest.Server, *server.QueryCache) {
	t.Helper()
	cache := server.NewQueryCache(client, testRedisConfig())
	// Start from a clean cache so hit/miss counts are deterministic.
	if err := cache.Invalidate(context.Background()); err != nil {
		t.Fatalf("priming cache: %v", err)
	}
	h := server.NewHandler(testEngine(), cache, nil, nil, testSearchConfig())
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, cache
}

func ingestDoc(t *testing.T, baseURL, id string, fields map[string]string) {
	t.Helper()
	body, _ := json.Marshal(server.IngestRequest{ID: id, Fields: fields})
	req, _ := http.NewRequest(http.MethodPut, baseURL+"/api/v1/documents/"+id, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ingest %s: %v", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("ingest %s: expected 201, got %d: %s", id, resp.StatusCode, raw)
	}
}

func search(t *testing.T, baseURL, query string) *engine.Result {
	t.Helper()
	resp, err := http.Get(baseURL + "/api/v1/search?q=" + query)
	if err != nil {
		t.Fatalf("search %q: %v", query, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("search %q: expected 200, got %d: %s", query, resp.StatusCode, raw)
	}
	var result engine.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding search response: %v", err)
	}
	return &result
}

// ---------------------------------------------------------------------------
// Redis query cache
// ---------------------------------------------------------------------------

// TestSearchCacheHit verifies that a repeated identical query is served from
// the cache and that hit/miss counters reflect it.
func TestSearchCacheHit(t *testing.T) {
	client := skipIfNoRedis(t)
	srv, cache := newCachedServer(t, client)

	ingestDoc(t, srv.URL, "doc-1", map[string]string{
		"title": "wireless earbuds",
		"body":  "wireless earbuds with active noise cancelling",
	})

	first := search(t, srv.URL, "earbuds")
	if first.TotalHits != 1 {
		t.Fatalf("expected 1 hit, got %d", first.TotalHits)
	}
	second := search(t, srv.URL, "earbuds")
	if second.TotalHits != 1 {
		t.Fatalf("expected 1 hit on cached query, got %d", second.TotalHits)
	}

	hits, misses := cache.Stats()
	if hits < 1 {
		t.Errorf("expected at least 1 cache hit, got hits=%d misses=%d", hits, misses)
	}
	if misses < 1 {
		t.Errorf("expected at least 1 cache miss for the cold query, got misses=%d", misses)
	}
}

// TestMutationInvalidatesCache verifies that indexing a document after a
// cached search drops the stale entry, so the next search sees the new
// document.
func TestMutationInvalidatesCache(t *testing.T) {
	client := skipIfNoRedis(t)
	srv, _ := newCachedServer(t, client)

	ingestDoc(t, srv.URL, "doc-1", map[string]string{"body": "mechanical keyboard"})

	if got := search(t, srv.URL, "keyboard").TotalHits; got != 1 {
		t.Fatalf("expected 1 hit before second ingest, got %d", got)
	}

	ingestDoc(t, srv.URL, "doc-2", map[string]string{"body": "ergonomic keyboard tray"})

	if got := search(t, srv.URL, "keyboard").TotalHits; got != 2 {
		t.Errorf("expected 2 hits after ingest invalidated the cache, got %d", got)
	}
}

// TestCacheStatsAndInvalidateEndpoints exercises the cache admin endpoints
// against a live Redis.
func TestCacheStatsAndInvalidateEndpoints(t *testing.T) {
	client := skipIfNoRedis(t)
	srv, _ := newCachedServer(t, client)

	ingestDoc(t, srv.URL, "doc-1", map[string]string{"body": "portable charger"})
	search(t, srv.URL, "charger")

	resp, err := http.Get(srv.URL + "/api/v1/cache/stats")
	if err != nil {
		t.Fatalf("cache stats request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding cache stats: %v", err)
	}
	for _, field := range []string{"hits", "misses"} {
		if _, ok := stats[field]; !ok {
			t.Errorf("missing expected field: %s", field)
		}
	}

	invResp, err := http.Post(srv.URL+"/api/v1/cache/invalidate", "application/json", nil)
	if err != nil {
		t.Fatalf("cache invalidate request failed: %v", err)
	}
	invResp.Body.Close()
	if invResp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 from invalidate, got %d", invResp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// PostgreSQL document catalog
// ---------------------------------------------------------------------------

// TestCatalogSaveAndForEach verifies catalog upsert, replace, and streaming
// reads against a live PostgreSQL.
func TestCatalogSaveAndForEach(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	catalog, err := server.NewCatalog(ctx, db)
	if err != nil {
		t.Fatalf("creating catalog: %v", err)
	}

	// Unique ids so runs do not collide on a shared test database.
	prefix := fmt.Sprintf("it-%d-", time.Now().UnixNano())
	ids := []string{prefix + "a", prefix + "b"}
	t.Cleanup(func() {
		for _, id := range ids {
			catalog.Delete(context.Background(), id)
		}
	})

	for _, id := range ids {
		if err := catalog.Save(ctx, id, map[string]string{"title": "draft " + id}); err != nil {
			t.Fatalf("saving %s: %v", id, err)
		}
	}
	// Upsert replaces the fields in place.
	if err := catalog.Save(ctx, ids[0], map[string]string{"title": "final"}); err != nil {
		t.Fatalf("re-saving %s: %v", ids[0], err)
	}

	seen := make(map[string]map[string]string)
	err = catalog.ForEach(ctx, func(id string, fields map[string]string) error {
		seen[id] = fields
		return nil
	})
	if err != nil {
		t.Fatalf("streaming catalog: %v", err)
	}

	if got := seen[ids[0]]["title"]; got != "final" {
		t.Errorf("expected upsert to replace fields, got title=%q", got)
	}
	if _, ok := seen[ids[1]]; !ok {
		t.Errorf("expected %s in catalog scan", ids[1])
	}
}

// TestCatalogDeleteIsIdempotent verifies that deleting a missing document is
// not an error.
func TestCatalogDeleteIsIdempotent(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	catalog, err := server.NewCatalog(ctx, db)
	if err != nil {
		t.Fatalf("creating catalog: %v", err)
	}
	if err := catalog.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("deleting unknown id: %v", err)
	}
}

// TestCatalogBackedReindex verifies the boot path: documents persisted in
// the catalog can rebuild an empty index.
func TestCatalogBackedReindex(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	catalog, err := server.NewCatalog(ctx, db)
	if err != nil {
		t.Fatalf("creating catalog: %v", err)
	}

	id := fmt.Sprintf("it-reindex-%d", time.Now().UnixNano())
	t.Cleanup(func() { catalog.Delete(context.Background(), id) })

	if err := catalog.Save(ctx, id, map[string]string{"body": "solar powered lantern"}); err != nil {
		t.Fatalf("saving document: %v", err)
	}

	eng := testEngine()
	err = catalog.ForEach(ctx, func(docID string, fields map[string]string) error {
		return eng.Ingest(docID, fields)
	})
	if err != nil {
		t.Fatalf("reindexing from catalog: %v", err)
	}

	result, err := eng.Search(ctx, "lantern", engine.SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("searching rebuilt index: %v", err)
	}
	found := false
	for _, hit := range result.Results {
		if hit.DocID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in rebuilt index results", id)
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
