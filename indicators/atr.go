package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/signalgov/market"
)

// ATR is a streaming Average True Range with Wilder smoothing.
type ATR struct {
	period    int
	atr       float64
	count     int
	warmupSum float64
	prev      market.Candle
	hasPrev   bool
}

func NewATR(period int) *ATR {
	if period <= 0 {
		panic("ATR period must be > 0")
	}
	return &ATR{period: period}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR(%d)", a.period) }

// Warmup is period+1: a true range needs the previous candle.
func (a *ATR) Warmup() int { return a.period + 1 }

func (a *ATR) Reset() {
	*a = ATR{period: a.period}
}

func (a *ATR) Update(c market.Candle) {
	if !a.hasPrev {
		a.prev = c
		a.hasPrev = true
		return
	}

	tr := TrueRange(c, a.prev)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prev = c
}

func (a *ATR) Ready() bool { return a.count >= a.period }

func (a *ATR) Float64() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

// Pct is the ATR as a percentage of the last close.
func (a *ATR) Pct() float64 {
	if !a.Ready() || a.prev.Close <= 0 {
		return 0
	}
	return a.atr / a.prev.Close * 100
}

// TrueRange of current given the previous candle.
func TrueRange(current, previous market.Candle) float64 {
	return max3(
		current.High-current.Low,
		math.Abs(current.High-previous.Close),
		math.Abs(current.Low-previous.Close),
	)
}
