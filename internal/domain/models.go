// Package domain holds the shared types of the market data core.
// It is pure: no infrastructure dependencies, so every other package can
// import it without cycles.
package domain

import "time"

// Period is a supported bar interval.
type Period string

const (
	PeriodDaily Period = "1d"
	Period1Min  Period = "1m"
	Period5Min  Period = "5m"
)

// Valid reports whether the period is one of the supported intervals.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, Period1Min, Period5Min:
		return true
	}
	return false
}

// DataKind identifies a cacheable data family. Staleness policy is keyed on
// this, not on individual call sites.
type DataKind string

const (
	KindMarketData    DataKind = "market_data"
	KindStockBasic    DataKind = "stock_basic"
	KindBoardInfo     DataKind = "board_info"
	KindTradeCalendar DataKind = "trade_calendar"
)

// Provenance records which tier ultimately produced a payload.
type Provenance string

const (
	ProvenancePrimary   Provenance = "primary"
	ProvenanceSecondary Provenance = "secondary"
)

// Bar is a single OHLCV candle.
type Bar struct {
	Timestamp time.Time `json:"datetime" msgpack:"ts"`
	Open      float64   `json:"open" msgpack:"o"`
	High      float64   `json:"high" msgpack:"h"`
	Low       float64   `json:"low" msgpack:"l"`
	Close     float64   `json:"close" msgpack:"c"`
	Volume    int64     `json:"volume" msgpack:"v"`
	Amount    float64   `json:"amount" msgpack:"a"`
	PreClose  float64   `json:"pre_close" msgpack:"pc"`
}

// StockInfo is the per-security reference record.
type StockInfo struct {
	Code        string  `json:"code" msgpack:"code"`
	Name        string  `json:"name" msgpack:"name"`
	TotalMV     float64 `json:"total_mv,omitempty" msgpack:"total_mv"`
	CirMV       float64 `json:"cir_mv,omitempty" msgpack:"cir_mv"`
	PE          float64 `json:"pe,omitempty" msgpack:"pe"`
	PB          float64 `json:"pb,omitempty" msgpack:"pb"`
	TotalShares float64 `json:"total_shares,omitempty" msgpack:"total_shares"`
	CirShares   float64 `json:"cir_shares,omitempty" msgpack:"cir_shares"`
}

// Constituent is one stock row inside a board definition.
type Constituent struct {
	Code string `json:"code" msgpack:"code"`
	Name string `json:"name" msgpack:"name"`
}

// BoardClass distinguishes the three board families in raw snapshot data.
type BoardClass string

const (
	BoardIndustry BoardClass = "industry"
	BoardConcept  BoardClass = "concept"
	BoardIndex    BoardClass = "index"
)

// BoardDef is a raw board (sector) definition as reported by a source.
// Level is meaningful for industry boards only (1..3); ParentName links an
// industry board to its upper level. Related lists codes of boards the
// source reports as explicitly connected.
type BoardDef struct {
	Code       string        `json:"code" msgpack:"code"`
	Name       string        `json:"name" msgpack:"name"`
	Class      BoardClass    `json:"class" msgpack:"class"`
	Level      int           `json:"level,omitempty" msgpack:"level"`
	ParentName string        `json:"parent_name,omitempty" msgpack:"parent_name"`
	Related    []string      `json:"related,omitempty" msgpack:"related"`
	Cons       []Constituent `json:"cons" msgpack:"cons"`
}

// Snapshot is a complete, point-in-time capture of one data kind. Exactly
// one of the payload slices is populated, matching Kind. Snapshots are built
// wholesale and never patched, which keeps them internally consistent.
type Snapshot struct {
	Kind       DataKind    `json:"kind" msgpack:"kind"`
	UpdateDate string      `json:"update_date" msgpack:"update_date"` // YYYY-MM-DD
	Boards     []BoardDef  `json:"boards,omitempty" msgpack:"boards"`
	Stocks     []StockInfo `json:"stocks,omitempty" msgpack:"stocks"`
	TradeDates []string    `json:"trade_dates,omitempty" msgpack:"trade_dates"` // sorted YYYY-MM-DD
}

// Empty reports whether the snapshot carries no payload for its kind.
func (s *Snapshot) Empty() bool {
	if s == nil {
		return true
	}
	switch s.Kind {
	case KindBoardInfo:
		return len(s.Boards) == 0
	case KindStockBasic:
		return len(s.Stocks) == 0
	case KindTradeCalendar:
		return len(s.TradeDates) == 0
	}
	return true
}
