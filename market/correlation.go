package market

import (
	"context"
	"fmt"
	"math"
)

// MinCorrelationSamples is the shortest return series Correlation will use.
const MinCorrelationSamples = 10

// Returns converts closes into simple returns. Non-positive closes yield a
// zero return for that step.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-prev)/prev)
	}
	return out
}

// Correlation is the Pearson correlation of a and b. It returns fallback when
// the series differ in length, are shorter than MinCorrelationSamples, or
// either has zero variance.
func Correlation(a, b []float64, fallback float64) float64 {
	n := len(a)
	if n != len(b) || n < MinCorrelationSamples {
		return fallback
	}

	var sa, sb float64
	for i := 0; i < n; i++ {
		sa += a[i]
		sb += b[i]
	}
	ma, mb := sa/float64(n), sb/float64(n)

	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return fallback
	}

	c := cov / math.Sqrt(va*vb)
	return math.Max(-1, math.Min(1, c))
}

// SeriesCorrelator computes Beta from the return series of a symbol and a
// reference symbol.
type SeriesCorrelator struct {
	History   HistorySource
	Reference string
	Window    int
	Fallback  float64
}

func (c SeriesCorrelator) Beta(ctx context.Context, symbol string) (float64, error) {
	if symbol == c.Reference {
		return 1, nil
	}
	n := c.Window
	if n <= 0 {
		n = 20
	}
	ref, err := c.History.Closes(ctx, c.Reference, n)
	if err != nil {
		return c.Fallback, fmt.Errorf("closes %s: %w", c.Reference, err)
	}
	sym, err := c.History.Closes(ctx, symbol, n)
	if err != nil {
		return c.Fallback, fmt.Errorf("closes %s: %w", symbol, err)
	}
	return Correlation(Returns(sym), Returns(ref), c.Fallback), nil
}
