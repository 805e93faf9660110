package risk

import (
	"math"

	"github.com/rustyeddy/signalgov/config"
)

// Leverage picks leverage from volatility: lower ATR% gets more leverage.
// The multiplier of the first band whose boundary exceeds atrPct is applied
// to the base and the result clamped to [Min, Max]. Above every band the
// minimum leverage is used.
func Leverage(atrPct float64, cfg config.LeverageConfig) float64 {
	if !cfg.Auto {
		return clamp(cfg.Base, cfg.Min, cfg.Max)
	}
	for i, b := range cfg.Bands {
		if atrPct < b {
			if i >= len(cfg.Multipliers) {
				break
			}
			return clamp(cfg.Base*cfg.Multipliers[i], cfg.Min, cfg.Max)
		}
	}
	return cfg.Min
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
