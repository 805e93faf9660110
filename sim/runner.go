package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/signalgov/engine"
	"github.com/rustyeddy/signalgov/lifecycle"
	"github.com/rustyeddy/signalgov/market"
)

// Summary is what a replay produced.
type Summary struct {
	Steps    int
	Passes   int
	Accepted int
	Rejected map[string]int
	Closed   map[market.Outcome]int
	R        float64 // over scored closures
}

// Runner steps a scenario: it advances the clock, publishes prices, ticks
// the monitor and runs an acceptance pass every ScanEvery steps.
type Runner struct {
	sc     *Scenario
	clock  *Clock
	prices *PriceStore
	script *Script
	log    *slog.Logger

	// Pace sleeps between steps; zero replays as fast as possible.
	Pace time.Duration

	mu     sync.Mutex
	closed map[market.Outcome]int
	r      float64
}

func NewRunner(sc *Scenario, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		sc:     sc,
		clock:  NewClock(sc.Start),
		prices: NewPriceStore(0),
		script: NewScript(sc.Passes),
		log:    log,
		closed: make(map[market.Outcome]int),
	}
	r.warmup()
	return r
}

func (r *Runner) Now() time.Time      { return r.clock.Now() }
func (r *Runner) Prices() *PriceStore { return r.prices }
func (r *Runner) Script() *Script     { return r.script }

// warmup loads history ending one step before Start.
func (r *Runner) warmup() {
	step := r.sc.Step()
	for sym, closes := range r.sc.Warmup {
		n := len(closes)
		for i, px := range closes {
			r.prices.Set(sym, r.sc.Start.Add(-time.Duration(n-i)*step), px)
		}
		r.prices.Unset(sym)
	}
}

// Advance moves the market to step i.
func (r *Runner) Advance(i int) {
	r.clock.Set(r.sc.At(i))
	r.script.SetStep(i)
	for sym, path := range r.sc.Prices {
		if i >= len(path) || path[i] <= 0 {
			r.prices.Unset(sym)
			continue
		}
		r.prices.Set(sym, r.sc.At(i), path[i])
	}
}

// HandleEvent tallies closures; register the runner as a monitor sink.
func (r *Runner) HandleEvent(_ context.Context, ev lifecycle.Event) error {
	if ev.Kind != lifecycle.EventClosed {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[ev.Outcome]++
	if ev.Outcome.Scored() {
		r.r += ev.R
	}
	return nil
}

// Run replays every step. The monitor observes before the pass so a signal
// accepted at step i is first followed at step i+1.
func (r *Runner) Run(ctx context.Context, eng *engine.Engine, mon *lifecycle.Monitor) (Summary, error) {
	sum := Summary{Rejected: make(map[string]int)}
	steps := r.sc.Steps()
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		r.Advance(i)
		if err := mon.Tick(ctx); err != nil {
			return sum, err
		}
		if i%r.sc.ScanEvery == 0 {
			res, err := eng.Pass(ctx)
			if err != nil {
				return sum, err
			}
			sum.Passes++
			sum.Accepted += len(res.Accepted)
			for code, n := range res.Rejected {
				sum.Rejected[code] += n
			}
		}
		if r.Pace > 0 && i < steps-1 {
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			case <-time.After(r.Pace):
			}
		}
	}
	sum.Steps = steps

	r.mu.Lock()
	sum.Closed = make(map[market.Outcome]int, len(r.closed))
	for k, v := range r.closed {
		sum.Closed[k] = v
	}
	sum.R = r.r
	r.mu.Unlock()

	r.log.Info("scenario finished", "steps", sum.Steps, "passes", sum.Passes,
		"accepted", sum.Accepted, "open", mon.Count(), "r", sum.R)
	return sum, nil
}
