package risk

import (
	"errors"
	"math"
)

// ErrInvalidSize is returned when a position cannot be sized: zero stop
// distance, non-positive entry or leverage.
var ErrInvalidSize = errors.New("invalid position size")

type SizeInputs struct {
	Deposit  float64
	Entry    float64
	Stop     float64
	RiskPct  float64 // 0.005 = 0.5% of deposit
	Leverage float64
}

type Size struct {
	Qty        float64
	Notional   float64
	Margin     float64 // initial margin, notional / leverage
	RiskAmount float64 // deposit currency lost if the stop is hit
	StopDist   float64
	Leverage   float64
	Valid      bool
}

// Calculate sizes a position so that a stop-out costs RiskPct of the deposit,
// scaled by leverage. Invalid inputs return a zero Size with Valid false.
func Calculate(in SizeInputs) Size {
	dist := math.Abs(in.Entry - in.Stop)
	if dist == 0 || in.Entry <= 0 || in.Leverage <= 0 ||
		math.IsNaN(dist) || math.IsInf(dist, 0) {
		return Size{}
	}

	riskAmt := in.Deposit * in.RiskPct
	qty := riskAmt / dist * in.Leverage
	notional := qty * in.Entry

	return Size{
		Qty:        qty,
		Notional:   notional,
		Margin:     notional / in.Leverage,
		RiskAmount: riskAmt,
		StopDist:   dist,
		Leverage:   in.Leverage,
		Valid:      true,
	}
}

// Check returns ErrInvalidSize for an invalid size or one whose notional is
// below the exchange minimum.
func (s Size) Check(minNotional float64) error {
	if !s.Valid || s.Qty <= 0 {
		return ErrInvalidSize
	}
	if s.Notional < minNotional {
		return &Violation{Code: CodeMinNotional, Msg: "notional below minimum"}
	}
	return nil
}
