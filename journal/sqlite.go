package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/lifecycle"
)

// SQLite is the durable store behind the guard and the monitor.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one writer; transactions must not interleave
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LoadRiskState returns the persisted state, or false when none exists.
func (j *SQLite) LoadRiskState(ctx context.Context) (guard.State, bool, error) {
	var data string
	err := j.db.QueryRowContext(ctx, `SELECT data FROM risk_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return guard.State{}, false, nil
	}
	if err != nil {
		return guard.State{}, false, fmt.Errorf("load risk state: %w", err)
	}

	var st guard.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return guard.State{}, false, fmt.Errorf("decode risk state: %w", err)
	}
	return st, true, nil
}

func (j *SQLite) SaveRiskState(ctx context.Context, st guard.State) error {
	return saveRiskState(ctx, j.db, st)
}

func saveRiskState(ctx context.Context, ex execer, st guard.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode risk state: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO risk_state (id, date, data, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		st.Date, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}

// InsertSignal stores a newly accepted signal and the guard state that
// accounts for it in one transaction.
func (j *SQLite) InsertSignal(ctx context.Context, s lifecycle.OpenSignal, st guard.State) error {
	reasons, err := json.Marshal(s.Reasons)
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}

	return j.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO signals
			(id, symbol, side, strategy_type, status, entry, stop, initial_stop,
			 tp1, tp2, tp3, frac1, frac2, breakeven, tp1_hit, tp2_hit, r_target,
			 qty, notional, margin, leverage, risk_pct, risk_amount, score, reasons,
			 opened_at, deadline, last_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.Symbol, string(s.Side), s.StrategyType, StatusOpen, s.Entry, s.Stop, s.InitialStop,
			s.TP1, s.TP2, s.TP3, s.Frac1, s.Frac2, s.Breakeven, s.TP1Hit, s.TP2Hit, s.RTarget,
			s.Qty, s.Notional, s.Margin, s.Leverage, s.RiskPct, s.RiskAmount, s.Score, string(reasons),
			s.OpenedAt.UTC(), s.Deadline.UTC(), s.LastPrice,
		)
		if err != nil {
			return fmt.Errorf("insert signal %s: %w", s.ID, err)
		}
		return saveRiskState(ctx, tx, st)
	})
}

// UpdateSignal writes the mutable fields of an open signal.
func (j *SQLite) UpdateSignal(ctx context.Context, s lifecycle.OpenSignal) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE signals
		SET stop = ?, tp1_hit = ?, tp2_hit = ?, last_price = ?
		WHERE id = ? AND status = ?`,
		s.Stop, s.TP1Hit, s.TP2Hit, s.LastPrice, s.ID, StatusOpen,
	)
	if err != nil {
		return fmt.Errorf("update signal %s: %w", s.ID, err)
	}
	return mustAffect(res, s.ID)
}

// CloseSignal marks a signal closed and stores the guard state that books
// its result in one transaction.
func (j *SQLite) CloseSignal(ctx context.Context, c lifecycle.ClosedSignal, st guard.State) error {
	return j.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE signals
			SET status = ?, stop = ?, tp1_hit = ?, tp2_hit = ?, last_price = ?,
			    exit_price = ?, closed_at = ?, r = ?
			WHERE id = ? AND status = ?`,
			string(c.Outcome), c.Stop, c.TP1Hit, c.TP2Hit, c.LastPrice,
			c.ExitPrice, c.ClosedAt.UTC(), c.R, c.ID, StatusOpen,
		)
		if err != nil {
			return fmt.Errorf("close signal %s: %w", c.ID, err)
		}
		if err := mustAffect(res, c.ID); err != nil {
			return err
		}
		return saveRiskState(ctx, tx, st)
	})
}

// HandleEvent appends ev to the events table.
func (j *SQLite) HandleEvent(ctx context.Context, ev lifecycle.Event) error {
	e := eventRecord(ev)
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events
		(time, kind, signal_id, symbol, side, strategy_type, price, outcome, r)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time, e.Kind, e.SignalID, e.Symbol, e.Side, e.StrategyType, e.Price, e.Outcome, e.R,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func (j *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func mustAffect(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("signal %q: %w", id, ErrNotFound)
	}
	return nil
}
