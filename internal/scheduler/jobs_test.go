package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantara/marketd/internal/boardgraph"
	"github.com/quantara/marketd/internal/cachestore"
	"github.com/quantara/marketd/internal/domain"
	"github.com/quantara/marketd/internal/resolver"
)

func TestCacheSweepJob(t *testing.T) {
	cache, err := cachestore.New(t.TempDir(), cachestore.DefaultPolicies(), zerolog.Nop())
	require.NoError(t, err)

	job := &CacheSweepJob{Cache: cache, Log: zerolog.Nop()}
	assert.Equal(t, "cache_sweep", job.Name())
	assert.NoError(t, job.Run())
}

func TestRunNowByName(t *testing.T) {
	cache, err := cachestore.New(t.TempDir(), cachestore.DefaultPolicies(), zerolog.Nop())
	require.NoError(t, err)

	sched := New(zerolog.Nop())
	require.NoError(t, sched.AddJob("@hourly", &CacheSweepJob{Cache: cache, Log: zerolog.Nop()}))

	assert.Equal(t, []string{"cache_sweep"}, sched.JobNames())
	assert.NoError(t, sched.RunNow("cache_sweep"))

	err = sched.RunNow("defrag")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}

type calendarSource struct{}

func (calendarSource) Name() string { return "stub" }

func (calendarSource) FetchSeries(context.Context, string, domain.Period, int, time.Time, time.Time) ([]domain.Bar, error) {
	return nil, nil
}

func (calendarSource) FetchSnapshot(_ context.Context, kind domain.DataKind) (*domain.Snapshot, error) {
	switch kind {
	case domain.KindStockBasic:
		return &domain.Snapshot{Kind: kind, UpdateDate: "2026-03-10",
			Stocks: []domain.StockInfo{{Code: "600000", Name: "浦发银行"}}}, nil
	case domain.KindTradeCalendar:
		return &domain.Snapshot{Kind: kind, UpdateDate: "2026-03-10",
			TradeDates: []string{"2026-03-10"}}, nil
	}
	return &domain.Snapshot{Kind: kind}, nil
}

func TestReferenceRefreshJob(t *testing.T) {
	cache, err := cachestore.New(t.TempDir(), cachestore.DefaultPolicies(), zerolog.Nop())
	require.NoError(t, err)
	res := resolver.New(cache, calendarSource{}, nil, zerolog.Nop())

	job := &ReferenceRefreshJob{Resolver: res, Log: zerolog.Nop()}
	assert.Equal(t, "reference_refresh", job.Name())
	assert.NoError(t, job.Run())
}

func TestGraphRefreshJob(t *testing.T) {
	provider := func(_ context.Context, kind domain.DataKind, _ bool) (*domain.Snapshot, error) {
		if kind == domain.KindStockBasic {
			return &domain.Snapshot{Kind: kind, Stocks: []domain.StockInfo{{Code: "600000", Name: "浦发银行"}}}, nil
		}
		return &domain.Snapshot{
			Kind:       kind,
			UpdateDate: "2026-03-10",
			Boards: []domain.BoardDef{{
				Code: "HY110", Name: "银行", Class: domain.BoardIndustry, Level: 1,
				Cons: []domain.Constituent{{Code: "600000", Name: "浦发银行"}},
			}},
		}, nil
	}
	mgr := boardgraph.NewManager(provider, nil, 0, zerolog.Nop())

	job := &GraphRefreshJob{Manager: mgr, Log: zerolog.Nop()}
	assert.Equal(t, "graph_refresh", job.Name())
	require.NoError(t, job.Run())
	require.NotNil(t, mgr.Current())
	assert.Equal(t, "2026-03-10", mgr.Current().UpdateDate())
}
