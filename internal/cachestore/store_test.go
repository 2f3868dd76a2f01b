package cachestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantara/marketd/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), DefaultPolicies(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestPutGetRoundtrip(t *testing.T) {
	s := newTestStore(t)

	payload := []byte("hello-bars")
	require.NoError(t, s.Put(domain.KindStockBasic, "", "all", payload, domain.ProvenancePrimary))

	entry, err := s.Get(domain.KindStockBasic, "", "all")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, domain.ProvenancePrimary, entry.Provenance)
}

func TestGetMissOnAbsent(t *testing.T) {
	s := newTestStore(t)

	entry, err := s.Get(domain.KindStockBasic, "", "nothing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestUndatedEntryExpires(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	require.NoError(t, s.Put(domain.KindBoardInfo, "", "snapshot", []byte("x"), domain.ProvenanceSecondary))

	// Fresh just inside the window.
	s.now = func() time.Time { return base.Add(23 * time.Hour) }
	entry, err := s.Get(domain.KindBoardInfo, "", "snapshot")
	require.NoError(t, err)
	require.NotNil(t, entry)

	// Stale past the window; the file is removed on read.
	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	entry, err = s.Get(domain.KindBoardInfo, "", "snapshot")
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, statErr := os.Stat(s.path(domain.KindBoardInfo, "", "snapshot"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPastDayPartitionIsImmutable(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	// Written under yesterday's partition: a closed session.
	require.NoError(t, s.Put(domain.KindMarketData, "2026-03-09", "600000_1d_100", []byte("bars"), domain.ProvenancePrimary))

	// Even a year later it stays fresh.
	s.now = func() time.Time { return base.AddDate(1, 0, 0) }
	entry, err := s.Get(domain.KindMarketData, "2026-03-09", "600000_1d_100")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("bars"), entry.Payload)
}

func TestCurrentDayPartitionIsVolatile(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Put(domain.KindMarketData, "2026-03-10", "600000_1m_240", []byte("ticks"), domain.ProvenanceSecondary))

	// The default window is zero: every pass on current-day data goes back
	// to source, even immediately after the write.
	entry, err := s.Get(domain.KindMarketData, "2026-03-10", "600000_1m_240")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestIntradayWindowServesRepeats(t *testing.T) {
	policies := DefaultPolicies()
	p := policies[domain.KindMarketData]
	p.IntradayTTL = 5 * time.Minute
	policies[domain.KindMarketData] = p

	s, err := New(t.TempDir(), policies, zerolog.Nop())
	require.NoError(t, err)
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Put(domain.KindMarketData, "2026-03-10", "600000_1m_240", []byte("ticks"), domain.ProvenanceSecondary))

	// Inside the configured window: served.
	s.now = func() time.Time { return base.Add(time.Minute) }
	entry, err := s.Get(domain.KindMarketData, "2026-03-10", "600000_1m_240")
	require.NoError(t, err)
	require.NotNil(t, entry)

	// Past the window, still the same day: revalidate.
	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	entry, err = s.Get(domain.KindMarketData, "2026-03-10", "600000_1m_240")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCorruptEntrySelfHeals(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put(domain.KindStockBasic, "", "all", []byte("ok"), domain.ProvenancePrimary))
	target := s.path(domain.KindStockBasic, "", "all")
	require.NoError(t, os.WriteFile(target, []byte("not msgpack at all"), 0o644))

	entry, err := s.Get(domain.KindStockBasic, "", "all")
	require.NoError(t, err)
	assert.Nil(t, entry, "corrupt entry must never be served")

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr), "corrupt entry must be deleted")
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put(domain.KindBoardInfo, "", "snapshot", []byte("x"), domain.ProvenancePrimary))

	var leftovers []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() && strings.HasPrefix(d.Name(), ".tmp-") {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestClearPredicate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put(domain.KindMarketData, "2026-03-09", "600000_1d_100", []byte("a"), domain.ProvenancePrimary))
	require.NoError(t, s.Put(domain.KindMarketData, "2026-03-09", "000001_1d_100", []byte("b"), domain.ProvenancePrimary))
	require.NoError(t, s.Put(domain.KindBoardInfo, "", "snapshot", []byte("c"), domain.ProvenancePrimary))

	removed, err := s.ClearKind(domain.KindMarketData)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// The other kind survives.
	entry, err := s.Get(domain.KindBoardInfo, "", "snapshot")
	require.NoError(t, err)
	assert.NotNil(t, entry)

	// Clearing again is a no-op, not an error.
	removed, err = s.ClearKind(domain.KindMarketData)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	require.NoError(t, s.Put(domain.KindBoardInfo, "", "old", []byte("x"), domain.ProvenancePrimary))

	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	require.NoError(t, s.Put(domain.KindBoardInfo, "", "new", []byte("y"), domain.ProvenancePrimary))

	removed, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entry, err := s.Get(domain.KindBoardInfo, "", "new")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}
