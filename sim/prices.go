// Package sim replays a scripted market against the engine: a manual clock,
// an in-memory price store and a strategy that proposes scripted candidates.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rustyeddy/signalgov/market"
)

// PriceStore keeps the latest price and a bounded bar history per symbol.
// It serves as PriceSource, HistorySource and CandleSource at once.
type PriceStore struct {
	mu   sync.RWMutex
	last map[string]float64
	bars map[string][]market.Candle
	keep int
}

// NewPriceStore keeps at most keep bars per symbol; keep <= 0 means 500.
func NewPriceStore(keep int) *PriceStore {
	if keep <= 0 {
		keep = 500
	}
	return &PriceStore{
		last: make(map[string]float64),
		bars: make(map[string][]market.Candle),
		keep: keep,
	}
}

// Set records px as the current price and closes a bar at t that opens at
// the previous close.
func (p *PriceStore) Set(symbol string, t time.Time, px float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last[symbol] = px
	bars := p.bars[symbol]
	open := px
	if n := len(bars); n > 0 {
		open = bars[n-1].Close
	}
	bars = append(bars, market.Candle{
		Time:  t,
		Open:  open,
		High:  math.Max(open, px),
		Low:   math.Min(open, px),
		Close: px,
	})
	if len(bars) > p.keep {
		bars = bars[len(bars)-p.keep:]
	}
	p.bars[symbol] = bars
}

// Unset makes the symbol's feed silent until the next Set.
func (p *PriceStore) Unset(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.last, symbol)
}

func (p *PriceStore) Price(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	px, ok := p.last[symbol]
	if !ok {
		return 0, market.ErrNoPrice
	}
	return px, nil
}

func (p *PriceStore) Candles(_ context.Context, symbol string, n int) ([]market.Candle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars := p.bars[symbol]
	if len(bars) == 0 {
		return nil, market.ErrNoPrice
	}
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return append([]market.Candle(nil), bars...), nil
}

func (p *PriceStore) Closes(ctx context.Context, symbol string, n int) ([]float64, error) {
	bars, err := p.Candles(ctx, symbol, n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out, nil
}

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}
