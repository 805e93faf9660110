package indicators

import (
	"fmt"

	"github.com/rustyeddy/signalgov/market"
)

// EMA tracks an exponential moving average of closes. The first close seeds
// the average and it reports Ready once period closes have been fed.
type EMA struct {
	period int
	k      float64 // 2 / (period + 1)
	n      int
	avg    float64
}

func NewEMA(period int) *EMA {
	if period <= 0 {
		panic("EMA period must be > 0")
	}
	return &EMA{period: period, k: 2.0 / float64(period+1)}
}

func (e *EMA) Name() string     { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *EMA) Warmup() int      { return e.period }
func (e *EMA) Ready() bool      { return e.n >= e.period }
func (e *EMA) Float64() float64 { return e.avg }

func (e *EMA) Reset() {
	*e = EMA{period: e.period, k: e.k}
}

func (e *EMA) Update(c market.Candle) {
	e.n++
	if e.n == 1 {
		e.avg = c.Close
		return
	}
	e.avg += e.k * (c.Close - e.avg)
}
