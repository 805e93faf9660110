package strategies

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/signalgov/indicators"
	"github.com/rustyeddy/signalgov/market"
)

// EMAADX is EMACross filtered by trend strength: crosses below MinADX are
// ignored and stronger trends score higher.
type EMAADX struct {
	EMAADXConfig
	src market.CandleSource
}

type EMAADXConfig struct {
	EMACrossConfig `yaml:",inline"`
	ADXPeriod      int     `json:"adx_period" yaml:"adx_period"` // 14
	MinADX         float64 `json:"min_adx" yaml:"min_adx"`       // 25
}

func DefaultEMAADXConfig() EMAADXConfig {
	return EMAADXConfig{
		EMACrossConfig: DefaultEMACrossConfig(),
		ADXPeriod:      14,
		MinADX:         25,
	}
}

func NewEMAADX(src market.CandleSource, cfg EMAADXConfig) *EMAADX {
	return &EMAADX{EMAADXConfig: cfg, src: src}
}

func (s *EMAADX) Name() string { return "ema-adx" }

func (s *EMAADX) Candidates(ctx context.Context, symbol string) ([]market.Candidate, error) {
	adx := indicators.NewADX(s.ADXPeriod)
	x, ok, err := detectCross(ctx, s.src, symbol, s.EMACrossConfig, []indicators.Indicator{adx})
	if err != nil || !ok {
		return nil, err
	}
	if !adx.Ready() || adx.Float64() < s.MinADX {
		return nil, nil
	}

	x.adx = adx.Float64()
	x.reasons = append(x.reasons, fmt.Sprintf("ADX %.1f", x.adx))
	c := x.candidate(symbol, s.Name())
	trend := math.Min((x.adx-s.MinADX)/25, 1)
	c.Score = s.BaseScore + trend + 0.5*math.Min(x.strength, 1)
	return []market.Candidate{c}, nil
}
