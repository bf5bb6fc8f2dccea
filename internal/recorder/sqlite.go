package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"DeepTrader/internal/model"
)

// SQLiteRecorder persists training history to a SQLite database. It
// implements both Recorder and Reader.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the monitor reads while the trainer writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("History database opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			mode        TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			interval    TEXT NOT NULL,
			state_size  INTEGER NOT NULL,
			episodes    INTEGER NOT NULL,
			state       TEXT NOT NULL,
			final_value REAL,
			best_value  REAL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS episodes (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL,
			episode      INTEGER NOT NULL,
			steps        INTEGER NOT NULL,
			total_reward REAL,
			final_value  REAL,
			peak_value   REAL,
			epsilon      REAL,
			avg_loss     REAL,
			trades       INTEGER,
			forced_exits INTEGER,
			finished_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_run ON episodes(run_id, episode)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL,
			episode      INTEGER NOT NULL,
			step         INTEGER NOT NULL,
			time         INTEGER NOT NULL,
			action       TEXT NOT NULL,
			forced       INTEGER NOT NULL,
			price        REAL,
			units        REAL,
			cash_after   REAL,
			value_after  REAL,
			realized_pnl REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, episode)`,

		`CREATE TABLE IF NOT EXISTS indicator_snapshots (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			time            INTEGER NOT NULL,
			symbol          TEXT NOT NULL,
			close           REAL,
			volume          REAL,
			sma_20          REAL,
			sma_50          REAL,
			ema_12          REAL,
			ema_26          REAL,
			rsi_14          REAL,
			macd            REAL,
			macd_signal     REAL,
			macd_hist       REAL,
			bb_upper        REAL,
			bb_middle       REAL,
			bb_lower        REAL,
			bb_position     REAL,
			stoch_k         REAL,
			stoch_d         REAL,
			atr_14          REAL,
			obv             REAL,
			momentum_5      REAL,
			volume_ratio_20 REAL,
			volatility_20   REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_indicators_ts ON indicator_snapshots(time)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) StartRun(info model.RunInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO runs
		(run_id, mode, symbol, interval, state_size, episodes, state, final_value, best_value, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,0)`,
		info.RunID, info.Mode, info.Symbol, info.Interval, info.StateSize,
		info.Episodes, model.RunRunning, 0.0, 0.0, info.StartedAt.Unix(),
	)
	return err
}

func (r *SQLiteRecorder) RecordEpisode(stats model.EpisodeStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO episodes
		(run_id, episode, steps, total_reward, final_value, peak_value, epsilon, avg_loss, trades, forced_exits, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		stats.RunID, stats.Episode, stats.Steps, stats.TotalReward,
		stats.FinalValue, stats.PeakValue, stats.Epsilon, stats.AvgLoss,
		stats.Trades, stats.ForcedExits, stats.FinishedAt.Unix(),
	)
	return err
}

// RecordTrades inserts one episode's trade batch in a single transaction.
func (r *SQLiteRecorder) RecordTrades(trades []model.TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO trades
		(run_id, episode, step, time, action, forced, price, units, cash_after, value_after, realized_pnl)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.Exec(
			t.RunID, t.Episode, t.Step, t.Time.Unix(), t.ActionName,
			boolToInt(t.Forced), t.Price, t.Units, t.CashAfter, t.ValueAfter, t.RealizedPnL,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordIndicators(snap *model.IndicatorSnapshot) error {
	if snap == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO indicator_snapshots
		(time, symbol, close, volume, sma_20, sma_50, ema_12, ema_26, rsi_14,
		 macd, macd_signal, macd_hist, bb_upper, bb_middle, bb_lower, bb_position,
		 stoch_k, stoch_d, atr_14, obv, momentum_5, volume_ratio_20, volatility_20)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		snap.Time.Unix(), snap.Symbol, snap.Close, snap.Volume,
		snap.SMA20, snap.SMA50, snap.EMA12, snap.EMA26, snap.RSI14,
		snap.MACD, snap.MACDSignal, snap.MACDHist,
		snap.BBUpper, snap.BBMiddle, snap.BBLower, snap.BBPosition,
		snap.StochK, snap.StochD, snap.ATR14, snap.OBV,
		snap.Momentum5, snap.VolumeRatio20, snap.Volatility20,
	)
	return err
}

func (r *SQLiteRecorder) FinishRun(runID, state string, finalValue, bestValue float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`UPDATE runs
		SET state = ?, final_value = ?, best_value = ?, finished_at = ?
		WHERE run_id = ?`,
		state, finalValue, bestValue, time.Now().Unix(), runID,
	)
	return err
}

func (r *SQLiteRecorder) LatestRun() (*model.RunInfo, error) {
	row := r.db.QueryRow(`SELECT run_id, mode, symbol, interval, state_size, episodes, state,
		final_value, best_value, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)

	var info model.RunInfo
	var started, finished int64
	err := row.Scan(&info.RunID, &info.Mode, &info.Symbol, &info.Interval,
		&info.StateSize, &info.Episodes, &info.State,
		&info.FinalValue, &info.BestValue, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info.StartedAt = time.Unix(started, 0).UTC()
	if finished > 0 {
		info.FinishedAt = time.Unix(finished, 0).UTC()
	}
	return &info, nil
}

// RecentEpisodes returns the newest episodes first.
func (r *SQLiteRecorder) RecentEpisodes(limit int) ([]model.EpisodeStats, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`SELECT run_id, episode, steps, total_reward, final_value,
		peak_value, epsilon, avg_loss, trades, forced_exits, finished_at
		FROM episodes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EpisodeStats
	for rows.Next() {
		var st model.EpisodeStats
		var finished int64
		if err := rows.Scan(&st.RunID, &st.Episode, &st.Steps, &st.TotalReward,
			&st.FinalValue, &st.PeakValue, &st.Epsilon, &st.AvgLoss,
			&st.Trades, &st.ForcedExits, &finished); err != nil {
			return nil, err
		}
		st.FinishedAt = time.Unix(finished, 0).UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecentTrades returns the newest trades first.
func (r *SQLiteRecorder) RecentTrades(limit int) ([]model.TradeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`SELECT run_id, episode, step, time, action, forced,
		price, units, cash_after, value_after, realized_pnl
		FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TradeEvent
	for rows.Next() {
		var t model.TradeEvent
		var ts int64
		var forced int
		if err := rows.Scan(&t.RunID, &t.Episode, &t.Step, &ts, &t.ActionName,
			&forced, &t.Price, &t.Units, &t.CashAfter, &t.ValueAfter, &t.RealizedPnL); err != nil {
			return nil, err
		}
		t.Time = time.Unix(ts, 0).UTC()
		t.Forced = forced != 0
		if a, err := model.ParseAction(t.ActionName); err == nil {
			t.Action = a
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) LatestIndicators() (*model.IndicatorSnapshot, error) {
	row := r.db.QueryRow(`SELECT time, symbol, close, volume, sma_20, sma_50, ema_12, ema_26,
		rsi_14, macd, macd_signal, macd_hist, bb_upper, bb_middle, bb_lower, bb_position,
		stoch_k, stoch_d, atr_14, obv, momentum_5, volume_ratio_20, volatility_20
		FROM indicator_snapshots ORDER BY id DESC LIMIT 1`)

	var snap model.IndicatorSnapshot
	var ts int64
	err := row.Scan(&ts, &snap.Symbol, &snap.Close, &snap.Volume,
		&snap.SMA20, &snap.SMA50, &snap.EMA12, &snap.EMA26, &snap.RSI14,
		&snap.MACD, &snap.MACDSignal, &snap.MACDHist,
		&snap.BBUpper, &snap.BBMiddle, &snap.BBLower, &snap.BBPosition,
		&snap.StochK, &snap.StochD, &snap.ATR14, &snap.OBV,
		&snap.Momentum5, &snap.VolumeRatio20, &snap.Volatility20)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.Time = time.Unix(ts, 0).UTC()
	return &snap, nil
}

func (r *SQLiteRecorder) EpisodeValues(runID string) ([]float64, error) {
	rows, err := r.db.Query(`SELECT final_value FROM episodes
		WHERE run_id = ? ORDER BY episode ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("Closing history database")
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
