package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantara/marketd/internal/boardgraph"
	"github.com/quantara/marketd/internal/cachestore"
	"github.com/quantara/marketd/internal/domain"
	"github.com/quantara/marketd/internal/resolver"
)

// jobTimeout bounds a single background run; the graph rebuild may walk the
// whole resolution chain.
const jobTimeout = 5 * time.Minute

// GraphRefreshJob rebuilds the board graph from the sources.
type GraphRefreshJob struct {
	Manager *boardgraph.Manager
	Log     zerolog.Logger
}

func (j *GraphRefreshJob) Name() string { return "graph_refresh" }

func (j *GraphRefreshJob) Run() error {
	runID := uuid.New().String()
	log := j.Log.With().Str("run_id", runID).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	g, err := j.Manager.Refresh(ctx, true)
	if err != nil {
		return err
	}
	log.Info().
		Str("update_date", g.UpdateDate()).
		Int("edges", g.EdgeCount()).
		Msg("Scheduled graph refresh done")
	return nil
}

// SnapshotResolver is the slice of the resolver the refresh job needs.
type SnapshotResolver interface {
	ResolveSnapshot(ctx context.Context, kind domain.DataKind, forceRefresh bool) (*resolver.SnapshotResult, error)
}

// ReferenceRefreshJob re-resolves the slow-moving reference kinds past every
// cache tier, so the store and cache enter the session warm.
type ReferenceRefreshJob struct {
	Resolver SnapshotResolver
	Log      zerolog.Logger
}

func (j *ReferenceRefreshJob) Name() string { return "reference_refresh" }

func (j *ReferenceRefreshJob) Run() error {
	runID := uuid.New().String()
	log := j.Log.With().Str("run_id", runID).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	var firstErr error
	for _, kind := range []domain.DataKind{domain.KindStockBasic, domain.KindTradeCalendar} {
		res, err := j.Resolver.ResolveSnapshot(ctx, kind, true)
		if err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("Reference refresh failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info().
			Str("kind", string(kind)).
			Str("update_date", res.Snapshot.UpdateDate).
			Str("provenance", string(res.Provenance)).
			Msg("Reference data refreshed")
	}
	return firstErr
}

// CacheSweepJob evicts expired file cache entries.
type CacheSweepJob struct {
	Cache *cachestore.Store
	Log   zerolog.Logger
}

func (j *CacheSweepJob) Name() string { return "cache_sweep" }

func (j *CacheSweepJob) Run() error {
	runID := uuid.New().String()

	removed, err := j.Cache.Sweep()
	if err != nil {
		return err
	}
	j.Log.Info().
		Str("run_id", runID).
		Int("removed", removed).
		Msg("Cache sweep done")
	return nil
}
