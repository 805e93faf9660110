// Package journal persists signals, the guard's risk state and the event
// stream.
package journal

import (
	"time"

	"github.com/rustyeddy/signalgov/lifecycle"
)

// ErrNotFound is returned when a signal id has no record.
var ErrNotFound = lifecycle.ErrNotFound

// StatusOpen marks a signal that has not been closed. Closed signals carry
// their outcome (TP, SL, TTL) as status.
const StatusOpen = "open"

// SignalRecord is one row of the signals table, open or closed.
type SignalRecord struct {
	lifecycle.ClosedSignal
	Status string
}

func (r SignalRecord) IsOpen() bool { return r.Status == StatusOpen }

// EventRecord is one row of the event stream.
type EventRecord struct {
	Time         time.Time
	Kind         string
	SignalID     string
	Symbol       string
	Side         string
	StrategyType string
	Price        float64
	Outcome      string
	R            float64
}

func eventRecord(ev lifecycle.Event) EventRecord {
	return EventRecord{
		Time:         ev.Time.UTC(),
		Kind:         string(ev.Kind),
		SignalID:     ev.SignalID,
		Symbol:       ev.Symbol,
		Side:         string(ev.Side),
		StrategyType: ev.StrategyType,
		Price:        ev.Price,
		Outcome:      string(ev.Outcome),
		R:            ev.R,
	}
}

// StrategyPerf summarizes closed signals of one strategy.
type StrategyPerf struct {
	Strategy string
	Scored   int // TP + SL
	Wins     int
	Expired  int // TTL
	TotalR   float64
	MaxR     float64
	MinR     float64
}

func (p StrategyPerf) WinRate() float64 {
	if p.Scored == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.Scored)
}

func (p StrategyPerf) AvgR() float64 {
	if p.Scored == 0 {
		return 0
	}
	return p.TotalR / float64(p.Scored)
}
