// Package indicators provides streaming technical indicators over closed
// candles.
package indicators

import "github.com/rustyeddy/signalgov/market"

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use in live and replayed runs.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "ADX(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	Reset()

	// Update consumes the next *closed* candle.
	Update(c market.Candle)

	// Ready reports whether Float64() is meaningful.
	Ready() bool

	Float64() float64
}

// Feed pushes candles through every indicator in order.
func Feed(candles []market.Candle, inds ...Indicator) {
	for _, c := range candles {
		for _, ind := range inds {
			ind.Update(c)
		}
	}
}

func max3(a, b, c float64) float64 {
	if a >= b && a >= c {
		return a
	}
	if b >= a && b >= c {
		return b
	}
	return c
}
