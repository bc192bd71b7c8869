// Package store journals completed trades to SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"margin_maker/internal/core"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const tradesSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id    TEXT NOT NULL,
	order_id    TEXT NOT NULL,
	pair        TEXT NOT NULL,
	side        TEXT NOT NULL,
	price       TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_cycle ON trades(cycle_id);
`

// SQLiteStore implements core.ITradeStore on a WAL-mode SQLite database.
// Decimal columns are stored as text to keep exact precision.
type SQLiteStore struct {
	db     *sql.DB
	logger core.ILogger
}

func NewSQLiteStore(dbPath string, logger core.ILogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(tradesSchema); err != nil {
		return nil, fmt.Errorf("failed to create trades schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "trade_store"),
	}, nil
}

// RecordTrade appends one completed execution to the journal.
func (s *SQLiteStore) RecordTrade(ctx context.Context, trade *core.Trade) error {
	query := `INSERT INTO trades (cycle_id, order_id, pair, side, price, quantity, realized_pnl, executed_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trade.CycleID,
		trade.OrderID,
		trade.Pair,
		string(trade.Side),
		trade.Price.String(),
		trade.Quantity.String(),
		trade.RealizedPnL.String(),
		trade.ExecutedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}

	s.logger.Info("Recorded trade",
		"cycle_id", trade.CycleID,
		"side", string(trade.Side),
		"price", trade.Price.String(),
		"quantity", trade.Quantity.String(),
		"realized_pnl", trade.RealizedPnL.String())
	return nil
}

// TradesByCycle returns the trades of one cycle in execution order.
func (s *SQLiteStore) TradesByCycle(ctx context.Context, cycleID string) ([]*core.Trade, error) {
	query := `SELECT cycle_id, order_id, pair, side, price, quantity, realized_pnl, executed_at
	          FROM trades WHERE cycle_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*core.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TotalRealizedPnL sums realized P&L over the whole journal.
func (s *SQLiteStore) TotalRealizedPnL(ctx context.Context) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT realized_pnl FROM trades`)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query pnl: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		pnl, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt pnl value %q: %w", raw, err)
		}
		total = total.Add(pnl)
	}
	return total, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanTrade(rows *sql.Rows) (*core.Trade, error) {
	var (
		t                  core.Trade
		side               string
		price, qty, pnl    string
		executedAtUnixNano int64
	)
	if err := rows.Scan(&t.CycleID, &t.OrderID, &t.Pair, &side, &price, &qty, &pnl, &executedAtUnixNano); err != nil {
		return nil, fmt.Errorf("failed to scan trade: %w", err)
	}

	var err error
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("corrupt price %q: %w", price, err)
	}
	if t.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("corrupt quantity %q: %w", qty, err)
	}
	if t.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
		return nil, fmt.Errorf("corrupt pnl %q: %w", pnl, err)
	}
	t.Side = core.Side(side)
	t.ExecutedAt = time.Unix(0, executedAtUnixNano)
	return &t, nil
}
