// Package resolver walks the resolution chain for market data requests:
// cache, then the local store, then the remote gateway. Each tier is tried
// in order and every failure is kept, so an exhausted request reports why
// each tier declined rather than just the last error.
package resolver

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantara/marketd/internal/cachestore"
	"github.com/quantara/marketd/internal/domain"
	"github.com/quantara/marketd/internal/symbols"
)

// SeriesRequest asks for bars of one security.
type SeriesRequest struct {
	RawCode      string
	Period       domain.Period
	Count        int
	Start        time.Time
	End          time.Time
	ForceRefresh bool
}

// SeriesResult is a resolved series with its origin attached.
type SeriesResult struct {
	Code       string
	Bars       []domain.Bar
	Provenance domain.Provenance
	FromCache  bool
}

// SnapshotResult is a resolved snapshot with its origin attached.
type SnapshotResult struct {
	Snapshot   *domain.Snapshot
	Provenance domain.Provenance
	FromCache  bool
}

// Resolver owns the cache-primary-secondary chain.
type Resolver struct {
	cache     *cachestore.Store
	primary   domain.Source
	secondary domain.Source
	log       zerolog.Logger

	// day returns the cache partition for intraday requests, normally the
	// latest trading day. Swappable for tests.
	day func() string
}

// New wires the chain. secondary may be nil when the process runs offline;
// the chain then ends at the local store.
func New(cache *cachestore.Store, primary, secondary domain.Source, log zerolog.Logger) *Resolver {
	return &Resolver{
		cache:     cache,
		primary:   primary,
		secondary: secondary,
		log:       log.With().Str("component", "resolver").Logger(),
		day:       func() string { return time.Now().Format("2006-01-02") },
	}
}

// SetDayFunc overrides the cache partition function, typically with the
// trade calendar's latest-session lookup.
func (r *Resolver) SetDayFunc(fn func() string) {
	if fn != nil {
		r.day = fn
	}
}

// ResolveSeries fetches bars for one raw code through the chain.
func (r *Resolver) ResolveSeries(ctx context.Context, req SeriesRequest) (*SeriesResult, error) {
	sc, err := symbols.Normalize(req.RawCode)
	if err != nil {
		return nil, err
	}
	code := sc.Code
	key := seriesKey(code, req.Period, req.Count)
	day := r.day()

	var failures []domain.TierFailure

	if !req.ForceRefresh {
		entry, cacheErr := r.cache.Get(domain.KindMarketData, day, key)
		if cacheErr != nil {
			failures = append(failures, domain.TierFailure{Tier: "cache", Err: cacheErr})
		} else if entry != nil {
			var bars []domain.Bar
			if err := msgpack.Unmarshal(entry.Payload, &bars); err != nil {
				// Corrupt entries self-heal: drop the file so it is refetched
				// rather than ever served again.
				_ = r.cache.Remove(domain.KindMarketData, day, key)
				failures = append(failures, domain.TierFailure{Tier: "cache",
					Err: domain.WrapE(domain.ErrCacheCorruption, err, "cached series for %s failed to decode", code)})
			} else {
				r.log.Debug().Str("code", code).Str("key", key).Msg("Series cache hit")
				return &SeriesResult{Code: code, Bars: bars, Provenance: entry.Provenance, FromCache: true}, nil
			}
		} else {
			failures = append(failures, domain.TierFailure{Tier: "cache",
				Err: domain.E(domain.ErrNotFound, "no fresh entry for %s", key)})
		}
	}

	// Primary: the local store.
	bars, primErr := r.fetchSeriesFrom(ctx, r.primary, code, req)
	if primErr == nil {
		r.cacheSeries(day, key, code, bars, domain.ProvenancePrimary)
		return &SeriesResult{Code: code, Bars: bars, Provenance: domain.ProvenancePrimary}, nil
	}
	failures = append(failures, domain.TierFailure{Tier: "primary", Err: primErr})
	r.log.Debug().Err(primErr).Str("code", code).Msg("Primary tier declined, falling through")

	// Secondary: the remote gateway.
	if r.secondary != nil {
		bars, secErr := r.fetchSeriesFrom(ctx, r.secondary, code, req)
		if secErr == nil {
			r.backfillSeries(ctx, code, req.Period, bars)
			r.cacheSeries(day, key, code, bars, domain.ProvenanceSecondary)
			return &SeriesResult{Code: code, Bars: bars, Provenance: domain.ProvenanceSecondary}, nil
		}
		failures = append(failures, domain.TierFailure{Tier: "secondary", Err: secErr})
	}

	err = &domain.TierExhaustedError{Code: code, Failures: failures}
	r.log.Warn().Err(err).Str("code", code).Msg("All tiers exhausted for series")
	return nil, err
}

// fetchSeriesFrom queries one source and applies the sufficiency rule. A
// tier that answers with fewer rows than asked, or whose history starts
// after the requested window, is treated as failed so the next tier runs.
func (r *Resolver) fetchSeriesFrom(ctx context.Context, src domain.Source, code string, req SeriesRequest) ([]domain.Bar, error) {
	bars, err := src.FetchSeries(ctx, code, req.Period, req.Count, req.Start, req.End)
	if err != nil {
		if domain.KindOf(err) != domain.ErrUnknown {
			return nil, err
		}
		return nil, domain.WrapE(domain.ErrSourceUnavailable, err, "%s source failed", src.Name())
	}
	if len(bars) == 0 {
		return nil, domain.E(domain.ErrInsufficientData, "%s source has no rows for %s", src.Name(), code)
	}
	if req.Count > 0 && len(bars) < req.Count {
		return nil, domain.E(domain.ErrInsufficientData,
			"%s source returned %d of %d rows for %s", src.Name(), len(bars), req.Count, code)
	}
	if !req.Start.IsZero() && bars[0].Timestamp.After(req.Start.Add(maxStartSlack(req.Period))) {
		return nil, domain.E(domain.ErrInsufficientData,
			"%s source history for %s starts %s, after requested %s",
			src.Name(), code, bars[0].Timestamp.Format("2006-01-02"), req.Start.Format("2006-01-02"))
	}
	return bars, nil
}

// maxStartSlack allows the first bar to sit a few sessions after the
// requested start before the tier counts as insufficient, covering holiday
// runs at the window edge.
func maxStartSlack(period domain.Period) time.Duration {
	if period == domain.PeriodDaily {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

func (r *Resolver) cacheSeries(day, key, code string, bars []domain.Bar, prov domain.Provenance) {
	payload, err := msgpack.Marshal(bars)
	if err != nil {
		r.log.Warn().Err(err).Str("code", code).Msg("Failed to encode series for cache")
		return
	}
	if err := r.cache.Put(domain.KindMarketData, day, key, payload, prov); err != nil {
		r.log.Warn().Err(err).Str("code", code).Msg("Failed to cache series")
	}
}

// backfillSeries writes remote bars into the local store so the next pass
// resolves at the primary tier. Best effort: the caller already has data.
func (r *Resolver) backfillSeries(ctx context.Context, code string, period domain.Period, bars []domain.Bar) {
	sink, ok := r.primary.(domain.SeriesSink)
	if !ok {
		return
	}
	if err := sink.StoreSeries(ctx, code, period, bars); err != nil {
		r.log.Warn().Err(err).Str("code", code).Msg("Failed to backfill local store")
		return
	}
	r.log.Debug().Str("code", code).Int("bars", len(bars)).Msg("Backfilled local store from gateway")
}

// BatchItem is the outcome of one code in a batch resolve.
type BatchItem struct {
	RawCode string
	Result  *SeriesResult
	Err     error
}

// ResolveSeriesBatch resolves many codes independently, preserving input
// order. One bad code never aborts its neighbors.
func (r *Resolver) ResolveSeriesBatch(ctx context.Context, raws []string, req SeriesRequest) []BatchItem {
	items := make([]BatchItem, 0, len(raws))
	for _, raw := range raws {
		perReq := req
		perReq.RawCode = raw
		res, err := r.ResolveSeries(ctx, perReq)
		items = append(items, BatchItem{RawCode: raw, Result: res, Err: err})
	}
	return items
}

// ResolveSnapshot fetches a complete capture of one kind through the chain.
func (r *Resolver) ResolveSnapshot(ctx context.Context, kind domain.DataKind, forceRefresh bool) (*SnapshotResult, error) {
	key := string(kind)
	var failures []domain.TierFailure

	if !forceRefresh {
		entry, cacheErr := r.cache.Get(kind, "", key)
		if cacheErr != nil {
			failures = append(failures, domain.TierFailure{Tier: "cache", Err: cacheErr})
		} else if entry != nil {
			var snap domain.Snapshot
			if err := msgpack.Unmarshal(entry.Payload, &snap); err != nil {
				_ = r.cache.Remove(kind, "", key)
				failures = append(failures, domain.TierFailure{Tier: "cache",
					Err: domain.WrapE(domain.ErrCacheCorruption, err, "cached %s snapshot failed to decode", kind)})
			} else {
				return &SnapshotResult{Snapshot: &snap, Provenance: entry.Provenance, FromCache: true}, nil
			}
		} else {
			failures = append(failures, domain.TierFailure{Tier: "cache",
				Err: domain.E(domain.ErrNotFound, "no fresh %s snapshot", kind)})
		}
	}

	snap, primErr := r.fetchSnapshotFrom(ctx, r.primary, kind)
	if primErr == nil {
		r.cacheSnapshot(kind, key, snap, domain.ProvenancePrimary)
		return &SnapshotResult{Snapshot: snap, Provenance: domain.ProvenancePrimary}, nil
	}
	failures = append(failures, domain.TierFailure{Tier: "primary", Err: primErr})

	if r.secondary != nil {
		snap, secErr := r.fetchSnapshotFrom(ctx, r.secondary, kind)
		if secErr == nil {
			r.backfillSnapshot(ctx, snap)
			r.cacheSnapshot(kind, key, snap, domain.ProvenanceSecondary)
			return &SnapshotResult{Snapshot: snap, Provenance: domain.ProvenanceSecondary}, nil
		}
		failures = append(failures, domain.TierFailure{Tier: "secondary", Err: secErr})
	}

	err := &domain.TierExhaustedError{Code: key, Failures: failures}
	r.log.Warn().Err(err).Str("kind", string(kind)).Msg("All tiers exhausted for snapshot")
	return nil, err
}

func (r *Resolver) fetchSnapshotFrom(ctx context.Context, src domain.Source, kind domain.DataKind) (*domain.Snapshot, error) {
	snap, err := src.FetchSnapshot(ctx, kind)
	if err != nil {
		if domain.KindOf(err) != domain.ErrUnknown {
			return nil, err
		}
		return nil, domain.WrapE(domain.ErrSourceUnavailable, err, "%s source failed", src.Name())
	}
	if snap.Empty() {
		return nil, domain.E(domain.ErrInsufficientData, "%s source has no %s data", src.Name(), kind)
	}
	return snap, nil
}

func (r *Resolver) cacheSnapshot(kind domain.DataKind, key string, snap *domain.Snapshot, prov domain.Provenance) {
	payload, err := msgpack.Marshal(snap)
	if err != nil {
		r.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to encode snapshot for cache")
		return
	}
	if err := r.cache.Put(kind, "", key, payload, prov); err != nil {
		r.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to cache snapshot")
	}
}

func (r *Resolver) backfillSnapshot(ctx context.Context, snap *domain.Snapshot) {
	sink, ok := r.primary.(domain.SnapshotSink)
	if !ok {
		return
	}
	if err := sink.StoreSnapshot(ctx, snap); err != nil {
		r.log.Warn().Err(err).Str("kind", string(snap.Kind)).Msg("Failed to backfill snapshot")
	}
}

// ClearSeriesCache drops every cached series entry, forcing the next resolve
// back to the sources.
func (r *Resolver) ClearSeriesCache() (int, error) {
	return r.cache.ClearKind(domain.KindMarketData)
}

func seriesKey(code string, period domain.Period, count int) string {
	key := code + "_" + string(period)
	if count > 0 {
		key += "_" + strconv.Itoa(count)
	}
	return key
}
