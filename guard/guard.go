package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/market"
)

// Store persists the single RiskState record.
type Store interface {
	LoadRiskState(ctx context.Context) (State, bool, error)
	SaveRiskState(ctx context.Context, s State) error
}

// CommitFunc durably writes next together with whatever else belongs to the
// same unit of work (an inserted or closed signal). The guard only adopts
// next after CommitFunc returns nil.
type CommitFunc func(next State) error

type Option func(*Guard)

// WithClock replaces time.Now. Tests use it to drive the guard through days.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.log = l }
}

// Guard is the day governor. All methods are safe for concurrent use.
type Guard struct {
	mu        sync.Mutex
	cfg       config.GuardConfig
	consensus config.ConsensusConfig
	portfolio config.PortfolioConfig
	deposit   float64
	store     Store

	state State
	day   DayPortfolio

	now func() time.Time
	log *slog.Logger
}

// New loads the persisted state (or starts a fresh one) and applies the day
// boundary check before returning.
func New(ctx context.Context, cfg *config.Config, store Store, opts ...Option) (*Guard, error) {
	g := &Guard{
		cfg:       cfg.Guard,
		consensus: cfg.Consensus,
		portfolio: cfg.Portfolio,
		deposit:   cfg.Account.Deposit,
		store:     store,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	st, ok, err := store.LoadRiskState(ctx)
	if err != nil {
		return nil, fmt.Errorf("guard: load risk state: %w", err)
	}
	if !ok {
		st = NewState(g.now())
		if err := store.SaveRiskState(ctx, st); err != nil {
			return nil, fmt.Errorf("guard: save initial risk state: %w", err)
		}
	}
	if st.Blocked == nil {
		st.Blocked = make(map[string]time.Time)
	}
	if st.SideCooldowns == nil {
		st.SideCooldowns = make(map[string]time.Time)
	}
	g.state = st

	if _, err := g.OnDayBoundary(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// SetDayPortfolio restores the in-memory portfolio, e.g. from the store
// after a restart.
func (g *Guard) SetDayPortfolio(p DayPortfolio) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.day = p
}

// OnDayBoundary resets the day counters and the day's committed risk when
// the UTC date changed since the last update. Signals carried over from the
// previous day stay counted; Accept and Release keep that count exact.
// It reports whether a reset happened.
func (g *Guard) OnDayBoundary(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	next := g.state.Clone()
	rolled := next.rollover(now)
	pruned := len(next.Blocked) + len(next.SideCooldowns)
	next.prune(now)
	pruned -= len(next.Blocked) + len(next.SideCooldowns)
	if !rolled && pruned == 0 {
		return false, nil
	}

	if err := g.store.SaveRiskState(ctx, next); err != nil {
		return false, fmt.Errorf("guard: save risk state: %w", err)
	}
	g.state = next
	if !rolled {
		return false, nil
	}

	g.day.RiskUsedPct = 0
	g.log.Info("day boundary", "date", next.Date, "open_signals", g.day.OpenSignals)
	return true, nil
}

// CanAccept is false while the guard cooldown runs or the daily signal limit
// is reached.
func (g *Guard) CanAccept() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canAcceptLocked(g.now())
}

func (g *Guard) canAcceptLocked(now time.Time) bool {
	if now.Before(g.state.CooldownUntil) {
		return false
	}
	return g.state.SignalsSent < g.cfg.MaxSignalsPerDay
}

// CooldownRemaining is the time left on the guard cooldown, zero when none.
func (g *Guard) CooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.state.CooldownUntil.Sub(g.now())
	if d < 0 {
		return 0
	}
	return d
}

// IsSymbolBlocked reports whether symbol is inside a post-outcome cooldown.
func (g *Guard) IsSymbolBlocked(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.state.Blocked[symbol])
}

// SideCooling reports whether a new signal on symbol/side is held back by an
// earlier acceptance on the same or the opposite side.
func (g *Guard) SideCooling(symbol string, side market.Side) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.state.SideCooldowns[market.SideKey(symbol, side)])
}

// DayRiskAllowed reports whether addPct more risk fits under the day cap.
func (g *Guard) DayRiskAllowed(addPct float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.day.RiskUsedPct+addPct <= g.portfolio.DayMaxRiskPct+1e-12
}

// OpenSignalAllowed reports whether another signal may be opened.
func (g *Guard) OpenSignalAllowed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.day.OpenSignals < g.portfolio.MaxOpenSignals
}

// Snapshot returns a copy of the current state and day portfolio.
func (g *Guard) Snapshot() (State, DayPortfolio) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Clone(), g.day
}

// RegisterSignalSent counts one accepted signal.
func (g *Guard) RegisterSignalSent(ctx context.Context) error {
	return g.apply(ctx, nil, func(s *State, _ time.Time) {
		s.SignalsSent++
	})
}

// RegisterTradeResult books a realized R and starts a cooldown when the day
// stop or the loss streak limit is hit.
func (g *Guard) RegisterTradeResult(ctx context.Context, r float64) error {
	return g.apply(ctx, nil, func(s *State, now time.Time) {
		s.applyTradeResult(g.cfg, g.deposit, r, now)
	})
}

// RegisterOutcomeCooldown blocks symbol after a TP or SL when configured.
func (g *Guard) RegisterOutcomeCooldown(ctx context.Context, symbol string, outcome market.Outcome) error {
	return g.apply(ctx, nil, func(s *State, now time.Time) {
		s.applyOutcome(g.cfg, symbol, outcome, now)
	})
}

// Accept books an accepted signal: the signal counter, the side cooldowns
// and the day portfolio. commit persists the signal and next in one
// transaction; a nil commit only saves the state.
func (g *Guard) Accept(ctx context.Context, symbol string, side market.Side, riskPct float64, commit CommitFunc) error {
	err := g.apply(ctx, commit, func(s *State, now time.Time) {
		s.SignalsSent++
		s.applySideCooldowns(g.consensus, symbol, side, now)
	})
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.day.RiskUsedPct += riskPct
	g.day.OpenSignals++
	g.mu.Unlock()
	return nil
}

// Settle books a closed signal: its R (when the outcome is scored), the
// resulting cooldowns and the symbol block. commit persists the closed
// signal and next in one transaction.
func (g *Guard) Settle(ctx context.Context, symbol string, outcome market.Outcome, r float64, commit CommitFunc) error {
	err := g.apply(ctx, commit, func(s *State, now time.Time) {
		if outcome.Scored() {
			s.applyTradeResult(g.cfg, g.deposit, r, now)
		}
		s.applyOutcome(g.cfg, symbol, outcome, now)
	})
	if err != nil {
		return err
	}
	g.Release()
	return nil
}

// Release frees one open signal slot without touching the persisted state.
// The monitor uses it when an open signal vanished from the store.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.day.OpenSignals > 0 {
		g.day.OpenSignals--
	}
}

// apply computes the next state on a copy, commits it and only then swaps
// it in. A failed commit leaves the live state untouched.
func (g *Guard) apply(ctx context.Context, commit CommitFunc, fn func(s *State, now time.Time)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	next := g.state.Clone()
	rolled := next.rollover(now)
	prevCooldown := next.CooldownUntil
	fn(&next, now)

	if commit == nil {
		commit = func(s State) error { return g.store.SaveRiskState(ctx, s) }
	}
	if err := commit(next); err != nil {
		return fmt.Errorf("guard: commit risk state: %w", err)
	}
	g.state = next
	if rolled {
		g.day.RiskUsedPct = 0
	}

	if next.CooldownUntil.After(prevCooldown) {
		g.log.Warn("guard cooldown",
			"until", next.CooldownUntil.UTC().Format(time.RFC3339),
			"r_day", next.RDay,
			"loss_streak", next.LossStreak)
	}
	return nil
}
