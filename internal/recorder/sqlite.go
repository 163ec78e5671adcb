package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"TrendSentinel/internal/model"
)

// SQLiteRecorder persists signals, executions, backtest trades and biases to SQLite.
// It also satisfies the bias store contract.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bias_state (
			symbol     TEXT NOT NULL,
			timeframe  TEXT NOT NULL,
			bias       TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, timeframe)
		)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			cycle_id      TEXT,
			signal_id     TEXT,
			symbol        TEXT,
			pattern       TEXT,
			timeframe     TEXT,
			bar_time      INTEGER,
			bias          TEXT,
			entry_price   REAL,
			stop_price    REAL,
			take_profit   REAL,
			stop_distance REAL,
			stop_pips     REAL,
			reward_ratio  REAL,
			executed      INTEGER,
			note          TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(timestamp)`,

		`CREATE TABLE IF NOT EXISTS executions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			cycle_id  TEXT,
			signal_id TEXT,
			account   TEXT,
			symbol    TEXT,
			outcome   TEXT,
			ticket    TEXT,
			price     REAL,
			size      REAL,
			attempts  INTEGER,
			last_code INTEGER,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_ts ON executions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			symbol      TEXT,
			direction   TEXT,
			entry_time  INTEGER,
			exit_time   INTEGER,
			entry_price REAL,
			exit_price  REAL,
			stop_price  REAL,
			take_profit REAL,
			size        REAL,
			pnl         REAL,
			pnl_pips    REAL,
			commission  REAL,
			exit_reason TEXT,
			bars_held   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_run ON backtest_trades(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// LoadBias returns the stored bias of (symbol, tf); ok is false when none was saved.
func (r *SQLiteRecorder) LoadBias(symbol string, tf model.Timeframe) (model.Bias, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b string
	err := r.db.QueryRow(`SELECT bias FROM bias_state WHERE symbol = ? AND timeframe = ?`, symbol, string(tf)).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BiasNone, false, nil
	}
	if err != nil {
		return model.BiasNone, false, fmt.Errorf("load bias: %w", err)
	}
	return model.ParseBias(b), true, nil
}

// SaveBias replaces the stored bias of (symbol, tf).
func (r *SQLiteRecorder) SaveBias(symbol string, tf model.Timeframe, b model.Bias) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO bias_state (symbol, timeframe, bias, updated_at) VALUES (?,?,?,?)`,
		symbol, string(tf), string(b), time.Now().Unix())
	return err
}

func (r *SQLiteRecorder) RecordSignal(evt *SignalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := evt.Signal
	_, err := r.db.Exec(`INSERT INTO signals
		(timestamp, cycle_id, signal_id, symbol, pattern, timeframe, bar_time, bias,
		 entry_price, stop_price, take_profit, stop_distance, stop_pips, reward_ratio,
		 executed, note)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.CycleID, s.ID(), s.Symbol, string(s.Pattern), string(s.Timeframe), s.Time.Unix(), string(evt.Bias),
		s.EntryPrice, s.StopPrice, s.TakeProfit, s.StopDistance, s.StopPips, s.RewardRatio,
		evt.Executed, evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordExecution(evt *ExecutionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO executions
		(timestamp, cycle_id, signal_id, account, symbol, outcome, ticket, price, size, attempts, last_code, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.CycleID, evt.SignalID, evt.Account, evt.Symbol, evt.Outcome,
		evt.Ticket, evt.Price, evt.Size, evt.Attempts, evt.LastCode, evt.Error,
	)
	return err
}

// RecordBacktest stores every trade of a run in one transaction.
func (r *SQLiteRecorder) RecordBacktest(runID string, trades []model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO backtest_trades
		(run_id, symbol, direction, entry_time, exit_time, entry_price, exit_price, stop_price, take_profit,
		 size, pnl, pnl_pips, commission, exit_reason, bars_held)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.Exec(runID, t.Symbol, string(t.Direction), t.EntryTime.Unix(), t.ExitTime.Unix(),
			t.EntryPrice, t.ExitPrice, t.StopPrice, t.TakeProfit, t.Size, t.PnL, t.PnLPips, t.Commission,
			string(t.ExitReason), t.BarsHeld); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trade: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
