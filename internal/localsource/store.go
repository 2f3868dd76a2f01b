// Package localsource is the primary resolution tier: a process-local SQLite
// market store holding bars, board membership and stock reference data.
// It plays the role a vendor terminal's local data directory plays upstream;
// the remote gateway backfills it so later passes stay off the network.
package localsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantara/marketd/internal/database"
	"github.com/quantara/marketd/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
    code      TEXT NOT NULL,
    period    TEXT NOT NULL,
    ts        TEXT NOT NULL,
    open      REAL NOT NULL,
    high      REAL NOT NULL,
    low       REAL NOT NULL,
    close     REAL NOT NULL,
    volume    INTEGER NOT NULL,
    amount    REAL NOT NULL,
    pre_close REAL NOT NULL,
    PRIMARY KEY (code, period, ts)
);
CREATE INDEX IF NOT EXISTS idx_bars_lookup ON bars(code, period, ts DESC);

CREATE TABLE IF NOT EXISTS boards (
    code        TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    class       TEXT NOT NULL,
    level       INTEGER NOT NULL DEFAULT 0,
    parent_name TEXT NOT NULL DEFAULT '',
    related     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS board_members (
    board_code TEXT NOT NULL,
    stock_code TEXT NOT NULL,
    stock_name TEXT NOT NULL,
    position   INTEGER NOT NULL,
    PRIMARY KEY (board_code, stock_code)
);
CREATE INDEX IF NOT EXISTS idx_members_stock ON board_members(stock_code);

CREATE TABLE IF NOT EXISTS stock_basics (
    code         TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    total_mv     REAL NOT NULL DEFAULT 0,
    cir_mv       REAL NOT NULL DEFAULT 0,
    pe           REAL NOT NULL DEFAULT 0,
    pb           REAL NOT NULL DEFAULT 0,
    total_shares REAL NOT NULL DEFAULT 0,
    cir_shares   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trade_dates (
    d TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS meta (
    k TEXT PRIMARY KEY,
    v TEXT NOT NULL
);
`

const tsLayout = time.RFC3339

// Store is the SQLite-backed primary source.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New applies the schema and returns a store.
func New(db *database.DB, log zerolog.Logger) (*Store, error) {
	conn := db.Conn()
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply market store schema: %w", err)
	}
	return &Store{
		db:  conn,
		log: log.With().Str("source", "local").Logger(),
	}, nil
}

// NewFromConn wraps an existing connection (tests).
func NewFromConn(conn *sql.DB, log zerolog.Logger) (*Store, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply market store schema: %w", err)
	}
	return &Store{db: conn, log: log.With().Str("source", "local").Logger()}, nil
}

// Name implements domain.Source.
func (s *Store) Name() string { return "local" }

// FetchSeries returns up to count bars oldest-first, bounded by start/end
// when non-zero. What "enough" means is the resolver's call, not ours.
func (s *Store) FetchSeries(ctx context.Context, code string, period domain.Period, count int, start, end time.Time) ([]domain.Bar, error) {
	query := `SELECT ts, open, high, low, close, volume, amount, pre_close
	          FROM bars WHERE code = ? AND period = ?`
	args := []interface{}{code, string(period)}

	if !start.IsZero() {
		query += " AND ts >= ?"
		args = append(args, start.Format(tsLayout))
	}
	if !end.IsZero() {
		query += " AND ts <= ?"
		args = append(args, end.Format(tsLayout))
	}
	query += " ORDER BY ts DESC"
	if count > 0 {
		query += " LIMIT ?"
		args = append(args, count)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", code, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var ts string
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount, &b.PreClose); err != nil {
			return nil, fmt.Errorf("failed to scan bar for %s: %w", code, err)
		}
		b.Timestamp, err = time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q for %s: %w", ts, code, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query runs newest-first to take the tail; callers expect oldest-first.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// StoreSeries upserts bars, implementing domain.SeriesSink for backfill.
func (s *Store) StoreSeries(ctx context.Context, code string, period domain.Period, bars []domain.Bar) error {
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bars (code, period, ts, open, high, low, close, volume, amount, pre_close)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(code, period, ts) DO UPDATE SET
				open = excluded.open, high = excluded.high, low = excluded.low,
				close = excluded.close, volume = excluded.volume,
				amount = excluded.amount, pre_close = excluded.pre_close`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.ExecContext(ctx, code, string(period), b.Timestamp.Format(tsLayout),
				b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount, b.PreClose); err != nil {
				return err
			}
		}
		return nil
	})
}

// FetchSnapshot assembles a complete capture of one kind from the store.
func (s *Store) FetchSnapshot(ctx context.Context, kind domain.DataKind) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{Kind: kind, UpdateDate: s.updateDate(ctx, kind)}

	switch kind {
	case domain.KindBoardInfo:
		boards, err := s.fetchBoards(ctx)
		if err != nil {
			return nil, err
		}
		snap.Boards = boards
	case domain.KindStockBasic:
		stocks, err := s.fetchStockBasics(ctx)
		if err != nil {
			return nil, err
		}
		snap.Stocks = stocks
	case domain.KindTradeCalendar:
		dates, err := s.fetchTradeDates(ctx)
		if err != nil {
			return nil, err
		}
		snap.TradeDates = dates
	default:
		return nil, fmt.Errorf("unsupported snapshot kind: %s", kind)
	}
	return snap, nil
}

// StoreSnapshot replaces the stored capture of snap.Kind wholesale,
// implementing domain.SnapshotSink.
func (s *Store) StoreSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		switch snap.Kind {
		case domain.KindBoardInfo:
			return storeBoards(ctx, tx, snap.Boards)
		case domain.KindStockBasic:
			return storeStockBasics(ctx, tx, snap.Stocks)
		case domain.KindTradeCalendar:
			return storeTradeDates(ctx, tx, snap.TradeDates)
		default:
			return fmt.Errorf("unsupported snapshot kind: %s", snap.Kind)
		}
	})
	if err != nil {
		return err
	}

	updateDate := snap.UpdateDate
	if updateDate == "" {
		updateDate = time.Now().Format("2006-01-02")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		"update_date:"+string(snap.Kind), updateDate)
	return err
}

func (s *Store) updateDate(ctx context.Context, kind domain.DataKind) string {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = ?`, "update_date:"+string(kind)).Scan(&v)
	if err != nil {
		return ""
	}
	return v
}

func (s *Store) fetchBoards(ctx context.Context) ([]domain.BoardDef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, class, level, parent_name, related FROM boards ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close()

	var boards []domain.BoardDef
	for rows.Next() {
		var b domain.BoardDef
		var related string
		if err := rows.Scan(&b.Code, &b.Name, (*string)(&b.Class), &b.Level, &b.ParentName, &related); err != nil {
			return nil, err
		}
		b.Related = splitList(related)
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range boards {
		cons, err := s.fetchMembers(ctx, boards[i].Code)
		if err != nil {
			return nil, err
		}
		boards[i].Cons = cons
	}
	return boards, nil
}

func (s *Store) fetchMembers(ctx context.Context, boardCode string) ([]domain.Constituent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stock_code, stock_name FROM board_members WHERE board_code = ? ORDER BY position`,
		boardCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query members of %s: %w", boardCode, err)
	}
	defer rows.Close()

	var cons []domain.Constituent
	for rows.Next() {
		var c domain.Constituent
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		cons = append(cons, c)
	}
	return cons, rows.Err()
}

func (s *Store) fetchStockBasics(ctx context.Context) ([]domain.StockInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, total_mv, cir_mv, pe, pb, total_shares, cir_shares FROM stock_basics ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock basics: %w", err)
	}
	defer rows.Close()

	var stocks []domain.StockInfo
	for rows.Next() {
		var st domain.StockInfo
		if err := rows.Scan(&st.Code, &st.Name, &st.TotalMV, &st.CirMV, &st.PE, &st.PB, &st.TotalShares, &st.CirShares); err != nil {
			return nil, err
		}
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

func (s *Store) fetchTradeDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT d FROM trade_dates ORDER BY d`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func storeBoards(ctx context.Context, tx *sql.Tx, boards []domain.BoardDef) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM boards`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM board_members`); err != nil {
		return err
	}

	// Upstream captures may report the same board twice; the later row wins,
	// mirroring the graph's merge rule.
	boardStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO boards (code, name, class, level, parent_name, related) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer boardStmt.Close()

	memberDelStmt, err := tx.PrepareContext(ctx,
		`DELETE FROM board_members WHERE board_code = ?`)
	if err != nil {
		return err
	}
	defer memberDelStmt.Close()

	memberStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO board_members (board_code, stock_code, stock_name, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer memberStmt.Close()

	for _, b := range boards {
		if _, err := boardStmt.ExecContext(ctx, b.Code, b.Name, string(b.Class), b.Level, b.ParentName, joinList(b.Related)); err != nil {
			return err
		}
		if _, err := memberDelStmt.ExecContext(ctx, b.Code); err != nil {
			return err
		}
		for i, c := range b.Cons {
			if _, err := memberStmt.ExecContext(ctx, b.Code, c.Code, c.Name, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func storeStockBasics(ctx context.Context, tx *sql.Tx, stocks []domain.StockInfo) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_basics`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO stock_basics (code, name, total_mv, cir_mv, pe, pb, total_shares, cir_shares)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, st := range stocks {
		if _, err := stmt.ExecContext(ctx, st.Code, st.Name, st.TotalMV, st.CirMV, st.PE, st.PB, st.TotalShares, st.CirShares); err != nil {
			return err
		}
	}
	return nil
}

func storeTradeDates(ctx context.Context, tx *sql.Tx, dates []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_dates`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO trade_dates (d) VALUES (?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range dates {
		if _, err := stmt.ExecContext(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}
