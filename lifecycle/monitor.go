package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/market"
)

// Store persists open and closed signals. InsertSignal and CloseSignal write
// the signal and the guard state in one transaction.
type Store interface {
	OpenSignals(ctx context.Context) ([]OpenSignal, error)
	InsertSignal(ctx context.Context, s OpenSignal, st guard.State) error
	UpdateSignal(ctx context.Context, s OpenSignal) error
	CloseSignal(ctx context.Context, c ClosedSignal, st guard.State) error
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithSinks registers the consumers of the event stream.
func WithSinks(sinks ...EventSink) Option {
	return func(m *Monitor) { m.sinks = append(m.sinks, sinks...) }
}

// Monitor owns the set of open signals and advances them on every Tick.
type Monitor struct {
	mu    sync.Mutex
	open  map[string]*OpenSignal
	store Store
	guard *guard.Guard

	prices market.PriceSource
	cfg    config.FollowConfig
	sinks  []EventSink

	now func() time.Time
	log *slog.Logger
}

func NewMonitor(store Store, g *guard.Guard, prices market.PriceSource, cfg config.FollowConfig, opts ...Option) *Monitor {
	m := &Monitor{
		open:   make(map[string]*OpenSignal),
		store:  store,
		guard:  g,
		prices: prices,
		cfg:    cfg,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the in-memory set with the open signals in the store.
func (m *Monitor) Load(ctx context.Context) error {
	sigs, err := m.store.OpenSignals(ctx)
	if err != nil {
		return fmt.Errorf("load open signals: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = make(map[string]*OpenSignal, len(sigs))
	for i := range sigs {
		s := sigs[i]
		m.open[s.ID] = &s
	}
	m.log.Info("open signals loaded", "count", len(sigs))
	return nil
}

// Count is the number of open signals.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Signals returns copies of the open signals, oldest first.
func (m *Monitor) Signals() []OpenSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() []OpenSignal {
	out := make([]OpenSignal, 0, len(m.open))
	for _, s := range m.open {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// HasOpen reports whether symbol already has an open signal.
func (m *Monitor) HasOpen(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.open {
		if s.Symbol == symbol {
			return true
		}
	}
	return false
}

// Open accepts s: the guard books it and the store inserts it in one unit,
// then the signal joins the open set.
func (m *Monitor) Open(ctx context.Context, s OpenSignal) error {
	m.mu.Lock()
	if _, dup := m.open[s.ID]; dup {
		m.mu.Unlock()
		return fmt.Errorf("open signal %s: already open", s.ID)
	}
	err := m.guard.Accept(ctx, s.Symbol, s.Side, s.RiskPct, func(next guard.State) error {
		return m.store.InsertSignal(ctx, s, next)
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("open signal %s: %w", s.ID, err)
	}
	cp := s
	m.open[s.ID] = &cp
	m.mu.Unlock()

	m.emit(ctx, newEvent(EventAccepted, s, Transition{Price: s.Entry}, s.OpenedAt))
	return nil
}

// Tick observes one price per open signal and applies at most one
// transition to each. A store failure aborts the tick; the remaining
// signals are retried on the next one.
func (m *Monitor) Tick(ctx context.Context) error {
	for _, s := range m.Signals() {
		if err := ctx.Err(); err != nil {
			return err
		}
		price := m.fetch(ctx, s.Symbol)

		ev, ok, err := m.step(ctx, s.ID, price)
		if err != nil {
			return err
		}
		if ok {
			m.emit(ctx, ev)
		}
	}
	return nil
}

// fetch returns zero when no usable price is available.
func (m *Monitor) fetch(ctx context.Context, symbol string) float64 {
	if d := m.cfg.PriceTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	px, err := m.prices.Price(ctx, symbol)
	if err != nil {
		m.log.Debug("price unavailable", "symbol", symbol, "err", err)
		return 0
	}
	if px <= 0 {
		m.log.Debug("non-positive price", "symbol", symbol, "price", px)
		return 0
	}
	return px
}

// step applies one observation to the signal with the given id.
// State application is not cancellable, so it runs on a context detached
// from the caller's cancellation.
func (m *Monitor) step(ctx context.Context, id string, price float64) (Event, bool, error) {
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.open[id]
	if !ok {
		return Event{}, false, nil
	}

	now := m.now()
	next := *cur
	t := next.Observe(price, now)

	switch {
	case t.Kind == "":
		cur.LastPrice = next.LastPrice
		return Event{}, false, nil

	case t.Closes():
		closed := next.Close(t, now)
		err := m.guard.Settle(ctx, next.Symbol, t.Outcome, t.R, func(st guard.State) error {
			return m.store.CloseSignal(ctx, closed, st)
		})
		if errors.Is(err, ErrNotFound) {
			m.dropLocked(id)
			return Event{}, false, nil
		}
		if err != nil {
			return Event{}, false, fmt.Errorf("close signal %s: %w", id, err)
		}
		delete(m.open, id)
		m.log.Info("signal closed",
			"id", id, "symbol", next.Symbol, "outcome", t.Outcome,
			"price", t.Price, "r", t.R)

	default:
		err := m.store.UpdateSignal(ctx, next)
		if errors.Is(err, ErrNotFound) {
			m.dropLocked(id)
			return Event{}, false, nil
		}
		if err != nil {
			return Event{}, false, fmt.Errorf("update signal %s: %w", id, err)
		}
		*cur = next
		m.log.Info("signal advanced",
			"id", id, "symbol", next.Symbol, "stage", next.Stage(),
			"price", t.Price, "stop", next.Stop)
	}

	return newEvent(t.Kind, next, t, now), true, nil
}

// dropLocked forgets a signal whose record vanished from the store.
func (m *Monitor) dropLocked(id string) {
	delete(m.open, id)
	m.guard.Release()
	m.log.Warn("open signal has no record, dropped", "id", id)
}

// emit runs outside the lock; sink failures are logged only.
func (m *Monitor) emit(ctx context.Context, ev Event) {
	for _, sink := range m.sinks {
		if err := sink.HandleEvent(ctx, ev); err != nil {
			m.log.Warn("event sink failed", "kind", ev.Kind, "id", ev.SignalID, "err", err)
		}
	}
}

// Run ticks every poll interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	poll := m.cfg.Poll()
	if poll <= 0 {
		poll = 3 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.log.Error("monitor tick", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
