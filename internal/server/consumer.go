package server

import (
	"context"
	"log/slog"

	"github.com/quiver-search/quiver/internal/engine"
	"github.com/quiver-search/quiver/pkg/kafka"
	"github.com/quiver-search/quiver/pkg/metrics"
)

// HandleIngestEvent returns a Kafka MessageHandler that indexes every
// document event from the ingest topic. Undecodable messages are logged and
// skipped rather than retried forever; an ingest rejection (bad payload)
// likewise affects only that document.
func HandleIngestEvent(eng *engine.Engine, cache *QueryCache, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event", "error", err, "key", string(key))
			return nil
		}
		if err := eng.Ingest(event.DocumentID, event.Fields); err != nil {
			logger.Error("document rejected", "doc_id", event.DocumentID, "error", err)
			return nil
		}
		if m != nil {
			m.DocsIngestedTotal.Inc()
		}
		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				logger.Error("cache invalidation failed", "error", err)
			}
		}
		logger.Info("document indexed", "doc_id", event.DocumentID)
		return nil
	}
}

// HandleDeleteEvent returns a Kafka MessageHandler for the delete topic.
func HandleDeleteEvent(eng *engine.Engine, cache *QueryCache, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "delete-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event", "error", err, "key", string(key))
			return nil
		}
		eng.Delete(event.DocumentID)
		if m != nil {
			m.DocsDeletedTotal.Inc()
		}
		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				logger.Error("cache invalidation failed", "error", err)
			}
		}
		logger.Info("document deleted", "doc_id", event.DocumentID)
		return nil
	}
}
