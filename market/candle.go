package market

import (
	"context"
	"time"
)

// Candle is one closed OHLC bar.
type Candle struct {
	Time   time.Time `json:"time" yaml:"time"`
	Open   float64   `json:"open" yaml:"open"`
	High   float64   `json:"high" yaml:"high"`
	Low    float64   `json:"low" yaml:"low"`
	Close  float64   `json:"close" yaml:"close"`
	Volume float64   `json:"volume,omitempty" yaml:"volume,omitempty"`
}

// CandleSource returns the last n closed candles for a symbol, oldest first.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, n int) ([]Candle, error)
}
