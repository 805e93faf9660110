package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"long", Long, false},
		{"LONG", Long, false},
		{" buy ", Long, false},
		{"short", Short, false},
		{"Sell", Short, false},
		{"flat", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSide(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSideComparisonsMirror(t *testing.T) {
	t.Parallel()

	assert.True(t, Long.Reached(110, 110))
	assert.False(t, Long.Reached(109.9, 110))
	assert.True(t, Short.Reached(90, 90))
	assert.False(t, Short.Reached(90.1, 90))

	assert.True(t, Long.Breached(95, 95))
	assert.False(t, Long.Breached(95.1, 95))
	assert.True(t, Short.Breached(105, 105))
	assert.False(t, Short.Breached(104.9, 105))

	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, Long, Short.Opposite())
	assert.Equal(t, "BTCUSDT:short", SideKey("BTCUSDT", Short))
}
