package lifecycle

import (
	"context"
	"time"

	"github.com/rustyeddy/signalgov/market"
)

type EventKind string

const (
	EventAccepted EventKind = "accepted"
	EventTP1      EventKind = "tp1_hit"
	EventTP2      EventKind = "tp2_hit"
	EventClosed   EventKind = "closed"
)

// Event is emitted once per accepted signal and once per transition.
type Event struct {
	Kind         EventKind
	SignalID     string
	Symbol       string
	Side         market.Side
	StrategyType string
	Price        float64
	Outcome      market.Outcome // closed only
	R            float64        // closed only
	Time         time.Time
	OpenedAt     time.Time

	// Signal is the signal after the transition was applied.
	Signal OpenSignal
}

func newEvent(kind EventKind, s OpenSignal, t Transition, at time.Time) Event {
	return Event{
		Kind:         kind,
		SignalID:     s.ID,
		Symbol:       s.Symbol,
		Side:         s.Side,
		StrategyType: s.StrategyType,
		Price:        t.Price,
		Outcome:      t.Outcome,
		R:            t.R,
		Time:         at,
		OpenedAt:     s.OpenedAt,
		Signal:       s,
	}
}

// EventSink consumes the event stream. Errors are logged by the caller and
// never stop the stream.
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) HandleEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }
