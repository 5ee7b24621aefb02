package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tidemark/internal/market"

	_ "modernc.org/sqlite"
)

// HistoryStore persists OHLCV bars so snapshots survive restarts and the
// exchange only has to backfill the tail.
type HistoryStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewHistoryStore(path string) (*HistoryStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history store: path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &HistoryStore{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *HistoryStore) ensureSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`CREATE TABLE IF NOT EXISTS ohlcv (
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			open_time_ms INTEGER NOT NULL,
			close_time_ms INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			trades INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, interval, open_time_ms)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ohlcv_lookup ON ohlcv(symbol, interval, open_time_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("history store: schema: %w", err)
		}
	}
	return nil
}

// PutCandles upserts bars; replays of the same bar overwrite in place.
func (s *HistoryStore) PutCandles(ctx context.Context, symbol, interval string, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ohlcv
		(symbol, interval, open_time_ms, close_time_ms, open, high, low, close, volume, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time_ms) DO UPDATE SET
		close_time_ms=excluded.close_time_ms, open=excluded.open, high=excluded.high,
		low=excluded.low, close=excluded.close, volume=excluded.volume, trades=excluded.trades`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, interval, c.OpenTime, c.CloseTime,
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades); err != nil {
			tx.Rollback()
			return fmt.Errorf("history store: put %s %s: %w", symbol, interval, err)
		}
	}
	return tx.Commit()
}

// RecentCandles returns up to limit most recent bars in ascending time order.
func (s *HistoryStore) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT open_time_ms, close_time_ms, open, high, low, close, volume, trades
		FROM ohlcv WHERE symbol = ? AND interval = ?
		ORDER BY open_time_ms DESC LIMIT ?`, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("history store: query %s %s: %w", symbol, interval, err)
	}
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Trades); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to ascending
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LatestOpenTime returns the newest stored open time for (symbol, interval),
// or 0 when nothing is stored yet.
func (s *HistoryStore) LatestOpenTime(ctx context.Context, symbol, interval string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(open_time_ms) FROM ohlcv WHERE symbol = ? AND interval = ?`, symbol, interval).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
