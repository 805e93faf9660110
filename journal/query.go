package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/lifecycle"
	"github.com/rustyeddy/signalgov/market"
)

const signalColumns = `
	id, symbol, side, strategy_type, status, entry, stop, initial_stop,
	tp1, tp2, tp3, frac1, frac2, breakeven, tp1_hit, tp2_hit, r_target,
	qty, notional, margin, leverage, risk_pct, risk_amount, score, reasons,
	opened_at, deadline, last_price, exit_price, closed_at, r`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (SignalRecord, error) {
	var (
		rec     SignalRecord
		side    string
		reasons string
		exit    sql.NullFloat64
		closed  sql.NullTime
		r       sql.NullFloat64
	)
	s := &rec.OpenSignal
	err := row.Scan(
		&s.ID, &s.Symbol, &side, &s.StrategyType, &rec.Status, &s.Entry, &s.Stop, &s.InitialStop,
		&s.TP1, &s.TP2, &s.TP3, &s.Frac1, &s.Frac2, &s.Breakeven, &s.TP1Hit, &s.TP2Hit, &s.RTarget,
		&s.Qty, &s.Notional, &s.Margin, &s.Leverage, &s.RiskPct, &s.RiskAmount, &s.Score, &reasons,
		&s.OpenedAt, &s.Deadline, &s.LastPrice, &exit, &closed, &r,
	)
	if err != nil {
		return SignalRecord{}, err
	}

	s.Side = market.Side(side)
	if reasons != "" && reasons != "null" {
		if err := json.Unmarshal([]byte(reasons), &s.Reasons); err != nil {
			return SignalRecord{}, fmt.Errorf("decode reasons of %s: %w", s.ID, err)
		}
	}
	if !rec.IsOpen() {
		rec.Outcome = market.Outcome(rec.Status)
	}
	rec.ExitPrice = exit.Float64
	rec.ClosedAt = closed.Time
	rec.R = r.Float64
	return rec, nil
}

func (j *SQLite) querySignals(ctx context.Context, query string, args ...any) ([]SignalRecord, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenSignals returns every signal that is still open, oldest first.
func (j *SQLite) OpenSignals(ctx context.Context) ([]lifecycle.OpenSignal, error) {
	recs, err := j.querySignals(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE status = ?
		ORDER BY opened_at ASC, id ASC`, StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("list open signals: %w", err)
	}

	out := make([]lifecycle.OpenSignal, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.OpenSignal)
	}
	return out, nil
}

// GetSignal returns a single signal record by ID.
func (j *SQLite) GetSignal(ctx context.Context, id string) (SignalRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE id = ?`, id)

	rec, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SignalRecord{}, fmt.Errorf("signal %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return SignalRecord{}, fmt.Errorf("get signal %q: %w", id, err)
	}
	return rec, nil
}

// ListSignalsClosedBetween returns signals whose closed_at is within [start, end).
func (j *SQLite) ListSignalsClosedBetween(ctx context.Context, start, end time.Time) ([]SignalRecord, error) {
	recs, err := j.querySignals(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE status != ? AND closed_at >= ? AND closed_at < ?
		ORDER BY closed_at ASC`, StatusOpen, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("list closed signals: %w", err)
	}
	return recs, nil
}

// ListSignalsOpenedBetween returns signals whose opened_at is within [start, end).
func (j *SQLite) ListSignalsOpenedBetween(ctx context.Context, start, end time.Time) ([]SignalRecord, error) {
	recs, err := j.querySignals(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE opened_at >= ? AND opened_at < ?
		ORDER BY opened_at ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("list opened signals: %w", err)
	}
	return recs, nil
}

// DayPortfolio rebuilds the in-memory day portfolio from the signals table:
// the risk committed by signals opened since dayStart and the open count.
func (j *SQLite) DayPortfolio(ctx context.Context, dayStart time.Time) (guard.DayPortfolio, error) {
	var p guard.DayPortfolio
	err := j.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN opened_at >= ? THEN risk_pct ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM signals`, dayStart.UTC(), StatusOpen).Scan(&p.RiskUsedPct, &p.OpenSignals)
	if err != nil {
		return guard.DayPortfolio{}, fmt.Errorf("day portfolio: %w", err)
	}
	return p, nil
}

// Performance groups signals closed since the given time by strategy.
// TTL exits are counted but do not enter the R statistics.
func (j *SQLite) Performance(ctx context.Context, since time.Time) ([]StrategyPerf, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT strategy_type,
			SUM(CASE WHEN status IN ('TP','SL') THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'TP' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'TTL' THEN 1 ELSE 0 END),
			COALESCE(SUM(CASE WHEN status IN ('TP','SL') THEN r END), 0),
			COALESCE(MAX(CASE WHEN status IN ('TP','SL') THEN r END), 0),
			COALESCE(MIN(CASE WHEN status IN ('TP','SL') THEN r END), 0)
		FROM signals
		WHERE status != ? AND closed_at >= ?
		GROUP BY strategy_type
		ORDER BY strategy_type ASC`, StatusOpen, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("performance: %w", err)
	}
	defer rows.Close()

	var out []StrategyPerf
	for rows.Next() {
		var p StrategyPerf
		if err := rows.Scan(&p.Strategy, &p.Scored, &p.Wins, &p.Expired, &p.TotalR, &p.MaxR, &p.MinR); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEventsBetween returns recorded events within [start, end).
func (j *SQLite) ListEventsBetween(ctx context.Context, start, end time.Time) ([]EventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, kind, signal_id, symbol, side, strategy_type, price, outcome, r
		FROM events
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.Time, &e.Kind, &e.SignalID, &e.Symbol, &e.Side,
			&e.StrategyType, &e.Price, &e.Outcome, &e.R); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
