package cachestore

import (
	"time"

	"github.com/quantara/marketd/internal/domain"
)

// Policy is the staleness rule for one data kind.
//
// Day-partitioned kinds follow the calendar rule: an entry written under a
// past calendar day captures a closed session and is immutable, while an
// entry under the current day is volatile and only trusted for IntradayTTL.
// Undated kinds use the plain TTL window.
type Policy struct {
	TTL            time.Duration
	IntradayTTL    time.Duration
	DayPartitioned bool
}

// Default freshness windows per kind. Reference data follows the 24h rule.
// Current-day series default to a zero window, so every resolver pass
// revalidates them against source; config can widen it.
const (
	TTLReference = 24 * time.Hour
	TTLIntraday  = 0 * time.Second
)

// DefaultPolicies returns the per-kind staleness configuration.
// Callers may override individual windows from config before building the
// store; the resolver never hardcodes a window per call site.
func DefaultPolicies() map[domain.DataKind]Policy {
	return map[domain.DataKind]Policy{
		domain.KindMarketData:    {TTL: TTLReference, IntradayTTL: TTLIntraday, DayPartitioned: true},
		domain.KindStockBasic:    {TTL: TTLReference},
		domain.KindBoardInfo:     {TTL: TTLReference},
		domain.KindTradeCalendar: {TTL: TTLReference},
	}
}
