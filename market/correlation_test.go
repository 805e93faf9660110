package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestCorrelation(t *testing.T) {
	t.Parallel()

	a := series(20, func(i int) float64 { return float64(i%5) - 2 })
	b := series(20, func(i int) float64 { return 2 * (float64(i%5) - 2) })
	neg := series(20, func(i int) float64 { return -(float64(i%5) - 2) })

	assert.InDelta(t, 1.0, Correlation(a, b, 0), 1e-12)
	assert.InDelta(t, -1.0, Correlation(a, neg, 0), 1e-12)
}

func TestCorrelationFallback(t *testing.T) {
	t.Parallel()

	short := []float64{1, 2, 3}
	assert.Equal(t, 0.25, Correlation(short, short, 0.25))

	a := series(12, func(i int) float64 { return float64(i) })
	b := series(11, func(i int) float64 { return float64(i) })
	assert.Equal(t, 0.25, Correlation(a, b, 0.25))

	flat := series(12, func(int) float64 { return 3 })
	assert.Equal(t, 0.25, Correlation(a, flat, 0.25))
}

func TestReturns(t *testing.T) {
	t.Parallel()

	got := Returns([]float64{100, 110, 99, 0, 5})
	require.Len(t, got, 4)
	assert.InDelta(t, 0.1, got[0], 1e-12)
	assert.InDelta(t, -0.1, got[1], 1e-12)
	assert.InDelta(t, -1.0, got[2], 1e-12)
	assert.Equal(t, 0.0, got[3])
	assert.Nil(t, Returns([]float64{1}))
}

type mapHistory map[string][]float64

func (m mapHistory) Closes(_ context.Context, symbol string, n int) ([]float64, error) {
	c, ok := m[symbol]
	if !ok {
		return nil, errors.New("no history")
	}
	if len(c) > n {
		c = c[len(c)-n:]
	}
	return c, nil
}

func TestSeriesCorrelator(t *testing.T) {
	t.Parallel()

	ref := series(21, func(i int) float64 { return 100 + float64(i%4) })
	follow := series(21, func(i int) float64 { return 50 + 0.5*float64(i%4) })

	c := SeriesCorrelator{
		History:   mapHistory{"BTCUSDT": ref, "ETHUSDT": follow},
		Reference: "BTCUSDT",
		Window:    21,
		Fallback:  0,
	}

	beta, err := c.Beta(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Greater(t, beta, 0.9)

	self, err := c.Beta(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, self)

	_, err = c.Beta(context.Background(), "XRPUSDT")
	assert.Error(t, err)
}
