package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"sentiment-trading-bot/internal/backtest"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/types"
)

// SQLiteRecorder stores runs, their trades and equity curves in SQLite.
// Timestamps are stored as Unix nanoseconds.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

var _ Recorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	r := &SQLiteRecorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info(context.Background(), "SQLite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at       INTEGER NOT NULL,
			symbol           TEXT NOT NULL,
			start_time       INTEGER NOT NULL,
			end_time         INTEGER NOT NULL,
			initial_capital  REAL NOT NULL,
			final_value      REAL,
			total_return_pct REAL,
			max_drawdown_pct REAL,
			sharpe           REAL,
			closed_trades    INTEGER,
			stats_json       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol ON backtest_runs(symbol, created_at)`,

		`CREATE TABLE IF NOT EXISTS backtest_trades (
			run_id            INTEGER NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
			seq               INTEGER NOT NULL,
			time              INTEGER NOT NULL,
			symbol            TEXT NOT NULL,
			action            TEXT NOT NULL,
			quantity          INTEGER NOT NULL,
			price             REAL NOT NULL,
			confidence        REAL,
			stop_loss_price   REAL,
			take_profit_price REAL,
			reason            TEXT,
			forced            INTEGER,
			exit_state        TEXT,
			realized_pnl      REAL,
			PRIMARY KEY (run_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS backtest_equity (
			run_id INTEGER NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
			seq    INTEGER NOT NULL,
			time   INTEGER NOT NULL,
			value  REAL NOT NULL,
			cash   REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) Save(ctx context.Context, res *backtest.Result) (int64, error) {
	stats, err := json.Marshal(res.Stats)
	if err != nil {
		return 0, fmt.Errorf("encode stats: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	out, err := tx.ExecContext(ctx, `INSERT INTO backtest_runs
		(created_at, symbol, start_time, end_time, initial_capital,
		 final_value, total_return_pct, max_drawdown_pct, sharpe, closed_trades, stats_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.now().UnixNano(), res.Symbol, res.Start.UnixNano(), res.End.UnixNano(), res.InitialCapital,
		res.Stats.FinalValue, res.Stats.TotalReturnPct, res.Stats.MaxDrawdownPct, res.Stats.Sharpe,
		res.Stats.ClosedTrades, string(stats),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := out.LastInsertId()
	if err != nil {
		return 0, err
	}

	tradeStmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_trades
		(run_id, seq, time, symbol, action, quantity, price, confidence,
		 stop_loss_price, take_profit_price, reason, forced, exit_state, realized_pnl)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer tradeStmt.Close()
	for i, t := range res.Trades {
		if _, err := tradeStmt.ExecContext(ctx,
			id, i, t.Time.UnixNano(), t.Symbol, string(t.Action), t.Quantity, t.Price, t.Confidence,
			t.StopLossPrice, t.TakeProfitPrice, t.Reason, t.Forced, string(t.Exit), t.RealizedPnL,
		); err != nil {
			return 0, fmt.Errorf("insert trade %d: %w", i, err)
		}
	}

	eqStmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_equity
		(run_id, seq, time, value, cash) VALUES (?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer eqStmt.Close()
	for i, e := range res.Equity {
		if _, err := eqStmt.ExecContext(ctx, id, i, e.Time.UnixNano(), e.Value, e.Cash); err != nil {
			return 0, fmt.Errorf("insert equity point %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *SQLiteRecorder) Load(ctx context.Context, id int64) (*backtest.Result, error) {
	res := &backtest.Result{Trades: []backtest.Trade{}}
	var start, end int64
	var stats string
	err := r.db.QueryRowContext(ctx, `SELECT symbol, start_time, end_time, initial_capital, stats_json
		FROM backtest_runs WHERE id = ?`, id).Scan(&res.Symbol, &start, &end, &res.InitialCapital, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	res.Start, res.End = fromNanos(start), fromNanos(end)
	if err := json.Unmarshal([]byte(stats), &res.Stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT time, symbol, action, quantity, price, confidence,
		stop_loss_price, take_profit_price, reason, forced, exit_state, realized_pnl
		FROM backtest_trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t            backtest.Trade
			ts           int64
			action, exit string
		)
		if err := rows.Scan(&ts, &t.Symbol, &action, &t.Quantity, &t.Price, &t.Confidence,
			&t.StopLossPrice, &t.TakeProfitPrice, &t.Reason, &t.Forced, &exit, &t.RealizedPnL); err != nil {
			return nil, err
		}
		t.Time = fromNanos(ts)
		t.Action = types.Action(action)
		t.Exit = portfolio.State(exit)
		res.Trades = append(res.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	eqRows, err := r.db.QueryContext(ctx, `SELECT time, value, cash
		FROM backtest_equity WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer eqRows.Close()
	for eqRows.Next() {
		var (
			e  backtest.EquityPoint
			ts int64
		)
		if err := eqRows.Scan(&ts, &e.Value, &e.Cash); err != nil {
			return nil, err
		}
		e.Time = fromNanos(ts)
		res.Equity = append(res.Equity, e)
	}
	return res, eqRows.Err()
}

func (r *SQLiteRecorder) List(ctx context.Context, symbol string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, created_at, symbol, start_time, end_time, initial_capital,
		final_value, total_return_pct, max_drawdown_pct, sharpe, closed_trades
		FROM backtest_runs WHERE (? = '' OR symbol = ?)
		ORDER BY created_at DESC, id DESC LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var created, st, end int64
		if err := rows.Scan(&s.ID, &created, &s.Symbol, &st, &end, &s.InitialCapital,
			&s.FinalValue, &s.TotalReturnPct, &s.MaxDrawdownPct, &s.Sharpe, &s.ClosedTrades); err != nil {
			return nil, err
		}
		s.CreatedAt, s.Start, s.End = fromNanos(created), fromNanos(st), fromNanos(end)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
