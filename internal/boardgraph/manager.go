package boardgraph

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantara/marketd/internal/domain"
)

// Provider fetches a snapshot kind, typically backed by the resolver chain.
type Provider func(ctx context.Context, kind domain.DataKind, force bool) (*domain.Snapshot, error)

// Manager owns the live graph. Readers get the current instance through an
// atomic pointer and keep using it even while a refresh runs; only one
// refresh builds at a time.
type Manager struct {
	provider Provider
	cache    *SnapshotCache
	maxAge   time.Duration
	log      zerolog.Logger

	current   atomic.Pointer[Graph]
	refreshMu sync.Mutex
	now       func() time.Time
}

// NewManager wires the graph lifecycle. cache may be nil to disable
// persistence; maxAge <= 0 defaults to 24h.
func NewManager(provider Provider, cache *SnapshotCache, maxAge time.Duration, log zerolog.Logger) *Manager {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Manager{
		provider: provider,
		cache:    cache,
		maxAge:   maxAge,
		log:      log.With().Str("component", "boardgraph").Logger(),
		now:      time.Now,
	}
}

// Current returns the live graph, or nil before the first successful build.
func (m *Manager) Current() *Graph {
	return m.current.Load()
}

// Stale reports whether the live graph is missing or past its freshness
// window.
func (m *Manager) Stale() bool {
	g := m.current.Load()
	return g == nil || m.expired(g)
}

func (m *Manager) expired(g *Graph) bool {
	if d, err := time.Parse("2006-01-02", g.UpdateDate()); err == nil {
		return m.now().Sub(d) >= m.maxAge+24*time.Hour
	}
	return m.now().Sub(g.BuiltAt()) >= m.maxAge
}

// Ensure returns a fresh graph, building one if needed. The persisted
// capture is tried before the sources, so a restart on the same day never
// refetches board data.
func (m *Manager) Ensure(ctx context.Context) (*Graph, error) {
	if g := m.current.Load(); g != nil && !m.expired(g) {
		return g, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have refreshed while this one waited.
	if g := m.current.Load(); g != nil && !m.expired(g) {
		return g, nil
	}

	if m.cache != nil {
		boardSnap, stockSnap, err := m.cache.Load()
		switch {
		case err != nil:
			// Mismatched or corrupt captures are not fatal; rebuild below.
			m.log.Warn().Err(err).Msg("Persisted graph snapshot unusable, rebuilding")
		case boardSnap != nil:
			if g, buildErr := Build(boardSnap, stockSnap); buildErr == nil && !m.expired(g) {
				m.current.Store(g)
				m.log.Info().Str("update_date", g.UpdateDate()).Msg("Graph restored from snapshot")
				return g, nil
			}
		}
	}

	return m.refreshLocked(ctx, false)
}

// Refresh rebuilds the graph from the sources and swaps it in. force pushes
// the fetch past every cache tier.
func (m *Manager) Refresh(ctx context.Context, force bool) (*Graph, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	return m.refreshLocked(ctx, force)
}

func (m *Manager) refreshLocked(ctx context.Context, force bool) (*Graph, error) {
	started := m.now()

	boardSnap, err := m.provider(ctx, domain.KindBoardInfo, force)
	if err != nil {
		return nil, err
	}

	// Stock reference data enriches the graph but its absence never blocks
	// a rebuild.
	stockSnap, err := m.provider(ctx, domain.KindStockBasic, force)
	if err != nil {
		m.log.Warn().Err(err).Msg("Stock reference data unavailable for graph build")
		stockSnap = nil
	}

	g, err := Build(boardSnap, stockSnap)
	if err != nil {
		return nil, err
	}

	m.current.Store(g)
	m.log.Info().
		Str("update_date", g.UpdateDate()).
		Int("edges", g.EdgeCount()).
		Dur("took", m.now().Sub(started)).
		Msg("Graph rebuilt")

	if m.cache != nil {
		if err := m.cache.Save(boardSnap, stockSnap); err != nil {
			m.log.Warn().Err(err).Msg("Failed to persist graph snapshot")
		}
	}
	return g, nil
}
