package boardgraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantara/marketd/internal/domain"
)

// fixedNow keeps graph freshness deterministic relative to the fixture's
// 2026-03-10 update date.
var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type countingProvider struct {
	calls int
	fail  bool
}

func (p *countingProvider) fetch(_ context.Context, kind domain.DataKind, _ bool) (*domain.Snapshot, error) {
	p.calls++
	if p.fail {
		return nil, errors.New("sources down")
	}
	if kind == domain.KindStockBasic {
		return testStockSnapshot(), nil
	}
	return testBoardSnapshot(), nil
}

func newTestManager(t *testing.T, p *countingProvider, cache *SnapshotCache) *Manager {
	t.Helper()
	m := NewManager(p.fetch, cache, 24*time.Hour, zerolog.Nop())
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestEnsureBuildsOnce(t *testing.T) {
	p := &countingProvider{}
	m := newTestManager(t, p, nil)

	require.Nil(t, m.Current())
	assert.True(t, m.Stale())

	g, err := m.Ensure(context.Background())
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.False(t, m.Stale())
	assert.Equal(t, 2, p.calls) // boards + stocks

	// A fresh graph is reused without touching the provider.
	again, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.Same(t, g, again)
	assert.Equal(t, 2, p.calls)
}

func TestRefreshSwapsGraph(t *testing.T) {
	p := &countingProvider{}
	m := newTestManager(t, p, nil)

	first, err := m.Ensure(context.Background())
	require.NoError(t, err)

	second, err := m.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, m.Current())
}

func TestRefreshFailureKeepsOldGraph(t *testing.T) {
	p := &countingProvider{}
	m := newTestManager(t, p, nil)

	g, err := m.Ensure(context.Background())
	require.NoError(t, err)

	p.fail = true
	_, err = m.Refresh(context.Background(), true)
	require.Error(t, err)
	// Readers keep the last good graph.
	assert.Same(t, g, m.Current())
}

func TestEnsureRestoresFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	cache := NewSnapshotCache(filepath.Join(dir, "graph.bin"), zerolog.Nop())
	require.NoError(t, cache.Save(testBoardSnapshot(), testStockSnapshot()))

	p := &countingProvider{}
	m := newTestManager(t, p, cache)

	g, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", g.UpdateDate())
	// Restored from disk; the sources were never consulted.
	assert.Equal(t, 0, p.calls)
}

func TestSnapshotRoundtrip(t *testing.T) {
	cache := NewSnapshotCache(filepath.Join(t.TempDir(), "graph.bin"), zerolog.Nop())
	require.NoError(t, cache.Save(testBoardSnapshot(), testStockSnapshot()))

	boards, stocks, err := cache.Load()
	require.NoError(t, err)
	require.NotNil(t, boards)
	assert.Equal(t, "2026-03-10", boards.UpdateDate)
	assert.Len(t, boards.Boards, 5)
	assert.Len(t, stocks.Stocks, 2)
}

func TestSnapshotMissingIsNotAnError(t *testing.T) {
	cache := NewSnapshotCache(filepath.Join(t.TempDir(), "graph.bin"), zerolog.Nop())

	boards, stocks, err := cache.Load()
	require.NoError(t, err)
	assert.Nil(t, boards)
	assert.Nil(t, stocks)
}

func TestSnapshotVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.bin")
	stale := snapshotFile{
		Version:    "0.9",
		Schema:     SchemaSignature(),
		UpdateDate: "2026-03-10",
		Boards:     testBoardSnapshot().Boards,
	}
	data, err := msgpack.Marshal(&stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cache := NewSnapshotCache(path, zerolog.Nop())
	_, _, err = cache.Load()
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrSchemaMismatch))
}

func TestSnapshotSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.bin")
	stale := snapshotFile{
		Version:    snapshotVersion,
		Schema:     "nodes:stock|edges:membership",
		UpdateDate: "2026-03-10",
		Boards:     testBoardSnapshot().Boards,
	}
	data, err := msgpack.Marshal(&stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cache := NewSnapshotCache(path, zerolog.Nop())
	_, _, err = cache.Load()
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrSchemaMismatch))
}

func TestSnapshotCorruptionRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.bin")
	require.NoError(t, os.WriteFile(path, []byte("definitely not msgpack"), 0o644))

	cache := NewSnapshotCache(path, zerolog.Nop())
	_, _, err := cache.Load()
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrCacheCorruption))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUnusableSnapshotFallsBackToSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.bin")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	p := &countingProvider{}
	m := newTestManager(t, p, NewSnapshotCache(path, zerolog.Nop()))

	g, err := m.Ensure(context.Background())
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, 2, p.calls)
}
