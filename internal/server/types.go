// Package server is the HTTP and Kafka transport around the search engine
// core. It maps external requests onto the engine's ingest/search API and
// owns the query cache, the document catalog, and the snapshot loop.
package server

import "time"

// IngestRequest is the JSON body accepted by the document endpoint.
type IngestRequest struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// IngestResponse is returned after a document is indexed.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// SynonymRequest is the JSON body for defining a synonym class.
type SynonymRequest struct {
	Members []string `json:"members"`
}

// DocumentEvent is the Kafka message payload for the ingest and delete
// topics.
type DocumentEvent struct {
	DocumentID string            `json:"document_id"`
	Fields     map[string]string `json:"fields,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
