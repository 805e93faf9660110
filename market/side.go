package market

import (
	"fmt"
	"strings"
)

// Side is the direction of a candidate or open signal.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// ParseSide accepts long/short in any case, plus buy/sell.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) Valid() bool { return s == Long || s == Short }

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Sign is +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Reached reports whether price has reached level in the side's favourable
// direction: at or above for longs, at or below for shorts.
func (s Side) Reached(price, level float64) bool {
	if s == Short {
		return price <= level
	}
	return price >= level
}

// Breached reports whether price has crossed a protective stop.
func (s Side) Breached(price, stop float64) bool {
	if s == Short {
		return price >= stop
	}
	return price <= stop
}
