// Package engine runs the acceptance pass: it collects candidates from the
// strategies, ranks and allocates them, applies the gates and hands the
// survivors to the lifecycle monitor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/consensus"
	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/internal/id"
	"github.com/rustyeddy/signalgov/lifecycle"
	"github.com/rustyeddy/signalgov/market"
	"github.com/rustyeddy/signalgov/metrics"
	"github.com/rustyeddy/signalgov/risk"
)

// Strategy is an opaque producer of candidates for one symbol.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, symbol string) ([]market.Candidate, error)
}

// Store is everything the engine persists through.
type Store interface {
	guard.Store
	lifecycle.Store
	DayPortfolio(ctx context.Context, dayStart time.Time) (guard.DayPortfolio, error)
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCorrelator measures correlation to the reference symbol instead of
// trusting the candidate's own corr_to_ref.
func WithCorrelator(c market.Correlator) Option {
	return func(e *Engine) { e.corr = c }
}

type Engine struct {
	cfg        *config.Config
	strategies []Strategy
	prices     market.PriceSource
	corr       market.Correlator
	store      Store
	guard      *guard.Guard
	monitor    *lifecycle.Monitor
	metrics    *metrics.Metrics

	now func() time.Time
	log *slog.Logger
}

func New(cfg *config.Config, store Store, g *guard.Guard, mon *lifecycle.Monitor,
	prices market.PriceSource, strategies []Strategy, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		strategies: strategies,
		prices:     prices,
		store:      store,
		guard:      g,
		monitor:    mon,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore reloads the open signals and the day portfolio after a restart.
func (e *Engine) Restore(ctx context.Context) error {
	if err := e.monitor.Load(ctx); err != nil {
		return err
	}
	now := e.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	p, err := e.store.DayPortfolio(ctx, dayStart)
	if err != nil {
		return err
	}
	e.guard.SetDayPortfolio(p)
	e.log.Info("state restored", "open_signals", p.OpenSignals, "day_risk_used", p.RiskUsedPct)
	e.observe()
	return nil
}

// PassResult summarizes one acceptance pass.
type PassResult struct {
	Collected int
	Ranked    int
	Accepted  []lifecycle.OpenSignal
	Rejected  map[string]int // by violation code
	Skipped   string         // why the whole pass was skipped
}

func (r *PassResult) reject(d risk.Decision) {
	if r.Rejected == nil {
		r.Rejected = make(map[string]int)
	}
	for _, v := range d.Violations {
		r.Rejected[v.Code]++
	}
}

// Pass runs one acceptance pass. Store failures abort it; everything else
// is logged and skipped.
func (e *Engine) Pass(ctx context.Context) (PassResult, error) {
	var res PassResult
	defer e.observe()
	if e.metrics != nil {
		e.metrics.Pass()
	}

	if _, err := e.guard.OnDayBoundary(ctx); err != nil {
		return res, err
	}

	now := e.now()
	if !e.cfg.Scan.Sessions.Allowed(now) {
		res.Skipped = "outside session hours"
		e.log.Debug("pass skipped", "reason", res.Skipped, "hour", now.UTC().Hour())
		return res, nil
	}
	if !e.guard.CanAccept() {
		res.Skipped = "guard closed"
		e.log.Info("pass skipped", "reason", res.Skipped, "cooldown", e.guard.CooldownRemaining().Round(time.Second))
		return res, nil
	}

	cands := e.collect(ctx)
	res.Collected = len(cands)

	ranked := consensus.Rank(cands, e.cfg.Consensus.MinScore, e.cfg.Consensus.MaxPerSymbol)
	res.Ranked = len(ranked)
	allocs := consensus.Allocate(e.cfg.Account.Deposit, e.cfg.Allocator, ranked)

	for _, a := range allocs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sig, d := e.evaluate(ctx, a)
		if !d.Allowed {
			res.reject(d)
			for _, v := range d.Violations {
				if e.metrics != nil {
					e.metrics.Rejected(v.Code)
				}
			}
			c := a.Candidate
			e.log.Info("candidate rejected",
				"symbol", c.Symbol, "side", c.Side, "strategy", c.StrategyType,
				"score", c.Score, "codes", d.Codes())
			continue
		}

		if err := e.monitor.Open(ctx, sig); err != nil {
			return res, err
		}
		res.Accepted = append(res.Accepted, sig)
		e.log.Info("signal accepted",
			"id", sig.ID, "symbol", sig.Symbol, "side", sig.Side, "strategy", sig.StrategyType,
			"entry", sig.Entry, "stop", sig.Stop, "qty", sig.Qty, "leverage", sig.Leverage)
	}
	return res, nil
}

// collect asks every strategy about every symbol. Failures of one strategy
// for one symbol do not stop the pass.
func (e *Engine) collect(ctx context.Context) []market.Candidate {
	w := e.cfg.Weights
	var out []market.Candidate
	for _, sym := range e.cfg.Scan.Symbols {
		for _, st := range e.strategies {
			cands, err := st.Candidates(ctx, sym)
			if err != nil {
				e.log.Warn("strategy failed", "strategy", st.Name(), "symbol", sym, "err", err)
				continue
			}
			for _, c := range cands {
				if c.Symbol == "" {
					c.Symbol = sym
				}
				if c.StrategyType == "" {
					c.StrategyType = st.Name()
				}
				if !c.Side.Valid() {
					e.log.Warn("candidate with invalid side", "strategy", st.Name(), "symbol", sym, "side", c.Side)
					continue
				}
				if w.Enable {
					if floor := w.MinScore(c.StrategyType); c.Score < floor {
						continue
					}
					c.Score *= w.Weight(c.StrategyType)
				}
				out = append(out, c)
			}
		}
	}
	return out
}

// evaluate runs the gates for one allocation and, when it survives, builds
// the signal to open.
func (e *Engine) evaluate(ctx context.Context, a consensus.Allocation) (lifecycle.OpenSignal, risk.Decision) {
	d := risk.Allow()
	c := a.Candidate

	switch {
	case !e.guard.CanAccept():
		d.Add(risk.CodeGuardClosed, "guard cooldown or daily limit")
	case e.guard.IsSymbolBlocked(c.Symbol):
		d.Add(risk.CodeSymbolBlocked, c.Symbol+" in post-outcome cooldown")
	case e.monitor.HasOpen(c.Symbol):
		d.Add(risk.CodeAlreadyOpen, c.Symbol+" has an open signal")
	case e.guard.SideCooling(c.Symbol, c.Side):
		d.Add(risk.CodeSideCooldown, c.Key()+" re-entry cooldown")
	case !e.guard.OpenSignalAllowed():
		d.Add(risk.CodeMaxOpen, "open signal limit reached")
	case !e.guard.DayRiskAllowed(a.RiskPct):
		d.Add(risk.CodeDayRiskCap, fmt.Sprintf("day risk cap %.4f", e.cfg.Portfolio.DayMaxRiskPct))
	}
	if !d.Allowed {
		return lifecycle.OpenSignal{}, d
	}

	// the reference symbol is what correlation is measured against
	if e.cfg.Risk.CorrCap.Enable && !strings.EqualFold(c.Symbol, e.cfg.Scan.Reference) {
		risk.CheckCorrelation(&d, c.Symbol, e.beta(ctx, c), e.cfg.Risk.CorrCap)
		if !d.Allowed {
			return lifecycle.OpenSignal{}, d
		}
	}

	entry := e.entry(ctx, c)
	if entry <= 0 {
		d.Add(risk.CodeNoPrice, "no entry price for "+c.Symbol)
		return lifecycle.OpenSignal{}, d
	}

	rc := e.cfg.Risk
	lv := risk.BuildLevels(c.Side, entry, c.ATRPct,
		e.cfg.Weights.StopMult(c.StrategyType, rc.ATRMult), rc.RRTarget)
	if !lv.Valid() {
		d.Add(risk.CodeInvalidSize, fmt.Sprintf("bad stop distance from atr %.4f%%", c.ATRPct))
		return lifecycle.OpenSignal{}, d
	}
	lev := risk.Leverage(c.ATRPct, rc.Leverage)
	size := risk.Calculate(risk.SizeInputs{
		Deposit:  e.cfg.Account.Deposit,
		Entry:    entry,
		Stop:     lv.Stop,
		RiskPct:  a.RiskPct,
		Leverage: lev,
	})
	if err := size.Check(rc.MinNotional); err != nil {
		var v *risk.Violation
		if errors.As(err, &v) {
			d.Add(v.Code, v.Msg)
		} else {
			d.Add(risk.CodeInvalidSize, err.Error())
		}
		return lifecycle.OpenSignal{}, d
	}

	now := e.now()
	sig := lifecycle.OpenSignal{
		ID:           id.NewAt(now),
		Symbol:       c.Symbol,
		Side:         c.Side,
		Entry:        entry,
		Stop:         lv.Stop,
		InitialStop:  lv.Stop,
		TP1:          lv.TP1,
		TP2:          lv.TP2,
		TP3:          lv.TP3,
		Frac1:        rc.PartialTP.Fraction1,
		Frac2:        rc.PartialTP.Fraction2,
		Breakeven:    rc.PartialTP.BreakevenAfterTP1,
		Deadline:     now.Add(e.cfg.Follow.TTL()),
		StrategyType: c.StrategyType,
		RTarget:      rc.RRTarget,
		Qty:          size.Qty,
		Notional:     size.Notional,
		Margin:       size.Margin,
		Leverage:     size.Leverage,
		RiskPct:      a.RiskPct,
		RiskAmount:   size.RiskAmount,
		Score:        c.Score,
		Reasons:      append([]string(nil), c.Reasons...),
		OpenedAt:     now,
		LastPrice:    entry,
	}
	return sig, d
}

// beta prefers a measured correlation and falls back to the candidate's.
func (e *Engine) beta(ctx context.Context, c market.Candidate) float64 {
	if e.corr == nil {
		return c.CorrToRef
	}
	b, err := e.corr.Beta(ctx, c.Symbol)
	if err != nil {
		e.log.Debug("correlation unavailable", "symbol", c.Symbol, "err", err)
		return c.CorrToRef
	}
	return b
}

// entry is the live price, or the candidate's reference price when the
// source has none.
func (e *Engine) entry(ctx context.Context, c market.Candidate) float64 {
	if e.prices != nil {
		if d := e.cfg.Follow.PriceTimeout(); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		px, err := e.prices.Price(ctx, c.Symbol)
		if err == nil && px > 0 {
			return px
		}
		e.log.Debug("live price unavailable", "symbol", c.Symbol, "err", err)
	}
	return c.Entry
}

func (e *Engine) observe() {
	if e.metrics == nil {
		return
	}
	st, day := e.guard.Snapshot()
	e.metrics.ObserveGuard(st, day, e.guard.CooldownRemaining())
}

// Run drives the scan loop and the monitor loop until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.monitor.Run(ctx); err != nil {
			e.log.Error("monitor stopped", "err", err)
		}
	}()

	interval := e.cfg.Scan.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.Pass(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("acceptance pass", "err", err)
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
		}
	}
}
