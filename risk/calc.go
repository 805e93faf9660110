package risk

import (
	"math"

	"github.com/rustyeddy/signalgov/market"
)

// Levels are the protective stop and the three take-profit targets of a
// signal, ordered away from entry in the side's favourable direction.
type Levels struct {
	Stop     float64
	TP1      float64
	TP2      float64
	TP3      float64
	Distance float64
}

// BuildLevels derives the stop from ATR% and places TP1..TP3 at 1x, 2x and
// 3x rr times the stop distance.
func BuildLevels(side market.Side, entry, atrPct, atrMult, rr float64) Levels {
	dist := atrPct * entry / 100.0 * atrMult
	s := side.Sign()
	return Levels{
		Stop:     entry - s*dist,
		TP1:      entry + s*rr*dist,
		TP2:      entry + s*2*rr*dist,
		TP3:      entry + s*3*rr*dist,
		Distance: dist,
	}
}

// Valid reports whether the stop sits a positive, finite distance away from
// entry. A non-positive ATR% or multiplier inverts the levels.
func (l Levels) Valid() bool {
	return l.Distance > 0 && !math.IsInf(l.Distance, 0)
}

// RR is the reward to risk ratio of a target.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// RiskPct is plannedRisk as a fraction of deposit.
func RiskPct(plannedRisk, deposit float64) float64 {
	if deposit <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / deposit
}
