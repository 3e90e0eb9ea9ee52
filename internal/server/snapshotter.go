package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quiver-search/quiver/internal/engine"
	"github.com/quiver-search/quiver/internal/snapshot"
	"github.com/quiver-search/quiver/pkg/metrics"
	"github.com/quiver-search/quiver/pkg/resilience"
)

// Snapshotter periodically persists the index and restores it on boot.
type Snapshotter struct {
	engine   *engine.Engine
	store    *snapshot.Store
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewSnapshotter creates a Snapshotter. m may be nil.
func NewSnapshotter(eng *engine.Engine, store *snapshot.Store, interval time.Duration, m *metrics.Metrics) *Snapshotter {
	return &Snapshotter{
		engine:   eng,
		store:    store,
		interval: interval,
		metrics:  m,
		logger:   slog.Default().With("component", "snapshotter"),
	}
}

// Restore loads the most recent snapshot into the engine, if one exists.
func (s *Snapshotter) Restore() error {
	state, err := s.store.LoadLatest()
	if err != nil {
		return fmt.Errorf("loading latest snapshot: %w", err)
	}
	if state == nil {
		s.logger.Info("no snapshot found, starting empty")
		return nil
	}
	s.engine.Index().Restore(state.Entries)
	if err := s.engine.RestoreSynonyms(state.Synonyms); err != nil {
		return fmt.Errorf("restoring synonym classes: %w", err)
	}
	s.logger.Info("snapshot restored",
		"created_at", time.Unix(state.CreatedAt, 0).UTC().Format(time.RFC3339),
		"terms", len(state.Entries),
	)
	return nil
}

// Run snapshots the index every interval until ctx is cancelled, then takes
// one final snapshot so a clean shutdown never loses indexed documents.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.snapshotOnce(context.Background())
			return nil
		case <-ticker.C:
			s.snapshotOnce(ctx)
		}
	}
}

func (s *Snapshotter) snapshotOnce(ctx context.Context) {
	start := time.Now()
	state := snapshot.State{
		Entries:  s.engine.Index().Entries(),
		Synonyms: s.engine.SynonymClasses(),
	}
	err := resilience.Retry(ctx, "snapshot-save", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		_, err := s.store.Save(state)
		return err
	})
	if s.metrics != nil {
		s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.SnapshotsTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		s.logger.Error("snapshot failed", "error", err)
	}
}
