package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quiver-search/quiver/pkg/postgres"
	"github.com/quiver-search/quiver/pkg/resilience"
)

// Catalog stores raw documents in PostgreSQL. The index itself retains only
// derived postings, so the catalog is the source used to rebuild the index
// when no snapshot is available. The catalog is optional; without it the
// engine is purely in-memory plus snapshots.
//
// Writes go through a circuit breaker: a flapping database degrades the
// catalog without taking down the ingest path, since the index itself is
// the authoritative serving state.
type Catalog struct {
	client  *postgres.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewCatalog creates a Catalog and ensures its schema exists.
func NewCatalog(ctx context.Context, client *postgres.Client) (*Catalog, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			fields     JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := client.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating documents table: %w", err)
	}
	return &Catalog{
		client:  client,
		breaker: resilience.NewCircuitBreaker("catalog", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "catalog"),
	}, nil
}

// Save upserts one document.
func (c *Catalog) Save(ctx context.Context, id string, fields map[string]string) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshaling document fields: %w", err)
	}
	return c.breaker.Execute(func() error {
		return c.client.InTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO documents (id, fields, updated_at) VALUES ($1, $2, NOW())
				 ON CONFLICT (id) DO UPDATE SET fields = EXCLUDED.fields, updated_at = NOW()`,
				id, payload,
			)
			if err != nil {
				return fmt.Errorf("upserting document %s: %w", id, err)
			}
			return nil
		})
	})
}

// Delete removes one document. Unknown ids are not an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.breaker.Execute(func() error {
		_, err := c.client.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("deleting document %s: %w", id, err)
		}
		return nil
	})
}

// ForEach streams every stored document to fn, used for reindexing on boot.
func (c *Catalog) ForEach(ctx context.Context, fn func(id string, fields map[string]string) error) error {
	rows, err := c.client.DB.QueryContext(ctx, `SELECT id, fields FROM documents ORDER BY id`)
	if err != nil {
		return fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scanning document row: %w", err)
		}
		var fields map[string]string
		if err := json.Unmarshal(payload, &fields); err != nil {
			c.logger.Error("skipping unreadable document", "doc_id", id, "error", err)
			continue
		}
		if err := fn(id, fields); err != nil {
			return err
		}
	}
	return rows.Err()
}
