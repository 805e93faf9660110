// Package lifecycle tracks accepted signals from acceptance to closure.
package lifecycle

import (
	"errors"
	"time"

	"github.com/rustyeddy/signalgov/market"
)

// ErrNotFound is returned by a Store when a signal id has no record.
var ErrNotFound = errors.New("signal not found")

// Stage is the position of a signal in its take-profit ladder.
type Stage string

const (
	StageOpen   Stage = "OPEN"
	StageTP1    Stage = "TP1_HIT"
	StageTP2    Stage = "TP2_HIT"
	StageClosed Stage = "CLOSED"
)

// OpenSignal is an accepted signal that has not been closed yet.
type OpenSignal struct {
	ID     string      `json:"id"`
	Symbol string      `json:"symbol"`
	Side   market.Side `json:"side"`

	Entry       float64 `json:"entry"`
	Stop        float64 `json:"stop"`
	InitialStop float64 `json:"initial_stop"`
	TP1         float64 `json:"tp1"`
	TP2         float64 `json:"tp2"`
	TP3         float64 `json:"tp3"`
	Frac1       float64 `json:"frac1"`
	Frac2       float64 `json:"frac2"`
	Breakeven   bool    `json:"breakeven"` // move stop to entry after TP1
	TP1Hit      bool    `json:"tp1_hit"`
	TP2Hit      bool    `json:"tp2_hit"`

	Deadline     time.Time `json:"deadline"`
	StrategyType string    `json:"strategy_type"`
	RTarget      float64   `json:"r_target"`

	Qty        float64 `json:"qty"`
	Notional   float64 `json:"notional"`
	Margin     float64 `json:"margin"`
	Leverage   float64 `json:"leverage"`
	RiskPct    float64 `json:"risk_pct"`
	RiskAmount float64 `json:"risk_amount"`

	Score     float64   `json:"score"`
	Reasons   []string  `json:"reasons,omitempty"`
	OpenedAt  time.Time `json:"opened_at"`
	LastPrice float64   `json:"last_price"`
}

// Stage derives the ladder position from the hit flags.
func (s OpenSignal) Stage() Stage {
	switch {
	case s.TP2Hit:
		return StageTP2
	case s.TP1Hit:
		return StageTP1
	default:
		return StageOpen
	}
}

// TPRemainder is the fraction of the position that exits at TP3.
func (s OpenSignal) TPRemainder() float64 {
	r := 1 - s.Frac1 - s.Frac2
	if r < 0 {
		return 0
	}
	return r
}

// ClosedSignal is the final record of a signal.
type ClosedSignal struct {
	OpenSignal
	Outcome   market.Outcome `json:"outcome"`
	ExitPrice float64        `json:"exit_price"`
	ClosedAt  time.Time      `json:"closed_at"`
	R         float64        `json:"r"`
}

// Transition is the result of one observation. A zero Kind means nothing
// changed.
type Transition struct {
	Kind    EventKind
	Price   float64
	Outcome market.Outcome
	R       float64
}

// Closes reports whether the transition ends the signal.
func (t Transition) Closes() bool { return t.Kind == EventClosed }

// Observe advances the state machine by at most one step. A non-positive
// price means no usable observation; only the deadline is checked then.
//
// The take-profit ladder is evaluated before the stop, and the deadline only
// when the price produced no transition.
func (s *OpenSignal) Observe(price float64, now time.Time) Transition {
	if price > 0 {
		s.LastPrice = price

		switch {
		case !s.TP1Hit && s.Side.Reached(price, s.TP1):
			s.TP1Hit = true
			if s.Breakeven {
				s.Stop = s.Entry
			}
			return Transition{Kind: EventTP1, Price: price}

		case s.TP1Hit && !s.TP2Hit && s.Side.Reached(price, s.TP2):
			s.TP2Hit = true
			return Transition{Kind: EventTP2, Price: price}

		case s.TP2Hit && s.Side.Reached(price, s.TP3):
			return Transition{
				Kind:    EventClosed,
				Price:   price,
				Outcome: market.OutcomeTP,
				R:       s.RTarget * s.TPRemainder(),
			}

		case s.Side.Breached(price, s.Stop):
			return Transition{
				Kind:    EventClosed,
				Price:   price,
				Outcome: market.OutcomeSL,
				R:       -1.0,
			}
		}
	}

	if !s.Deadline.IsZero() && now.After(s.Deadline) {
		exit := s.LastPrice
		if exit <= 0 {
			exit = s.Entry
		}
		return Transition{Kind: EventClosed, Price: exit, Outcome: market.OutcomeTTL}
	}
	return Transition{}
}

// Close builds the closed record for t.
func (s OpenSignal) Close(t Transition, at time.Time) ClosedSignal {
	return ClosedSignal{
		OpenSignal: s,
		Outcome:    t.Outcome,
		ExitPrice:  t.Price,
		ClosedAt:   at,
		R:          t.R,
	}
}
