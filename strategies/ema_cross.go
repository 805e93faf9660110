package strategies

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/signalgov/indicators"
	"github.com/rustyeddy/signalgov/market"
)

// EMACross proposes a candidate on the bar where the fast EMA crosses the
// slow one: long on a bull cross, short on a bear cross.
type EMACross struct {
	EMACrossConfig
	src market.CandleSource
}

type EMACrossConfig struct {
	FastPeriod int     `json:"fast_period" yaml:"fast_period"` // 9
	SlowPeriod int     `json:"slow_period" yaml:"slow_period"` // 21
	ATRPeriod  int     `json:"atr_period" yaml:"atr_period"`   // 14
	BaseScore  float64 `json:"base_score" yaml:"base_score"`   // score of a bare cross
}

func DefaultEMACrossConfig() EMACrossConfig {
	return EMACrossConfig{FastPeriod: 9, SlowPeriod: 21, ATRPeriod: 14, BaseScore: 2.0}
}

func NewEMACross(src market.CandleSource, cfg EMACrossConfig) *EMACross {
	return &EMACross{EMACrossConfig: cfg, src: src}
}

func (s *EMACross) Name() string { return "ema-cross" }

func (s *EMACross) Candidates(ctx context.Context, symbol string) ([]market.Candidate, error) {
	x, ok, err := detectCross(ctx, s.src, symbol, s.EMACrossConfig, nil)
	if err != nil || !ok {
		return nil, err
	}
	c := x.candidate(symbol, s.Name())
	// separation beyond one ATR adds at most a point
	c.Score = s.BaseScore + math.Min(x.strength, 1)
	return []market.Candidate{c}, nil
}

// cross is what detectCross saw on the last bar.
type cross struct {
	side     market.Side
	strength float64 // |fast-slow| in ATRs
	atrPct   float64
	adx      float64
	close    float64
	reasons  []string
}

func (x cross) candidate(symbol, strategy string) market.Candidate {
	return market.Candidate{
		Symbol:       symbol,
		Side:         x.side,
		ATRPct:       x.atrPct,
		ADX:          x.adx,
		StrategyType: strategy,
		Reasons:      x.reasons,
		Entry:        x.close,
	}
}

// detectCross runs the EMAs (and any extra indicators) over recent candles
// and reports a cross on the final bar.
func detectCross(ctx context.Context, src market.CandleSource, symbol string,
	cfg EMACrossConfig, extra []indicators.Indicator) (cross, bool, error) {
	if src == nil {
		return cross{}, false, nil
	}
	need := max(3*cfg.SlowPeriod, cfg.ATRPeriod+2)
	for _, ind := range extra {
		need = max(need, ind.Warmup()+2)
	}
	candles, err := src.Candles(ctx, symbol, need)
	if err != nil {
		return cross{}, false, fmt.Errorf("candles %s: %w", symbol, err)
	}
	if len(candles) < cfg.SlowPeriod+2 {
		return cross{}, false, nil
	}

	fast := indicators.NewEMA(cfg.FastPeriod)
	slow := indicators.NewEMA(cfg.SlowPeriod)
	atr := indicators.NewATR(cfg.ATRPeriod)
	inds := append([]indicators.Indicator{fast, slow, atr}, extra...)

	last := len(candles) - 1
	indicators.Feed(candles[:last], inds...)
	prev := fast.Float64() - slow.Float64()
	indicators.Feed(candles[last:], inds...)
	diff := fast.Float64() - slow.Float64()

	if !slow.Ready() || !atr.Ready() || atr.Float64() <= 0 {
		return cross{}, false, nil
	}

	x := cross{
		strength: math.Abs(diff) / atr.Float64(),
		atrPct:   atr.Pct(),
		close:    candles[last].Close,
	}
	switch {
	case diff > 0 && prev <= 0:
		x.side = market.Long
		x.reasons = []string{fmt.Sprintf("%s over %s", fast.Name(), slow.Name())}
	case diff < 0 && prev >= 0:
		x.side = market.Short
		x.reasons = []string{fmt.Sprintf("%s under %s", fast.Name(), slow.Name())}
	default:
		return cross{}, false, nil
	}
	x.reasons = append(x.reasons, fmt.Sprintf("ATR %.2f%%", x.atrPct))
	return x, true, nil
}
