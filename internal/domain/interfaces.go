package domain

import (
	"context"
	"time"
)

// Source is one data-provider tier in the resolution chain. Both the local
// store (primary) and the remote gateway (secondary) implement it, which
// keeps the resolver's fallback logic provider-agnostic.
//
// Any error, empty result, or timeout is uniformly treated as "tier failed"
// by the caller.
type Source interface {
	// Name identifies the source in logs and tier-failure reports.
	Name() string

	// FetchSeries returns up to count bars for one canonical code, oldest
	// first. start/end bound the range when non-zero; count bounds the tail.
	FetchSeries(ctx context.Context, code string, period Period, count int, start, end time.Time) ([]Bar, error)

	// FetchSnapshot returns a complete capture of the given kind.
	FetchSnapshot(ctx context.Context, kind DataKind) (*Snapshot, error)
}

// SeriesSink is implemented by sources that can absorb bars fetched from a
// lower-priority tier, so remote fetches backfill the local store.
type SeriesSink interface {
	StoreSeries(ctx context.Context, code string, period Period, bars []Bar) error
}

// SnapshotSink mirrors SeriesSink for snapshot kinds.
type SnapshotSink interface {
	StoreSnapshot(ctx context.Context, snap *Snapshot) error
}
