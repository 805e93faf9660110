package sim

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Tick is one recorded price.
type Tick struct {
	Time   time.Time
	Symbol string
	Price  float64
}

// ReadTicksCSV reads rows of
//
//	time,symbol,price
//
// where time is RFC3339 or RFC3339Nano. A single header row is allowed and
// empty or short rows are skipped.
func ReadTicksCSV(r io.Reader) ([]Tick, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var (
		out      []Tick
		sawFirst bool
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}
		if !sawFirst {
			sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}
		tk, ok, err := parseTickRow(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, tk)
		}
	}
}

// LoadTicksCSV reads a tick file from disk.
func LoadTicksCSV(path string) ([]Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ticks, err := ReadTicksCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ticks, nil
}

func parseTickRow(row []string) (Tick, bool, error) {
	if len(row) < 3 {
		return Tick{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return Tick{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return Tick{}, false, fmt.Errorf("bad time %q: %w", ts, err)
		}
		t = t2
	}

	sym := strings.TrimSpace(row[1])
	if sym == "" {
		return Tick{}, false, nil
	}

	px, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return Tick{}, false, fmt.Errorf("bad price %q: %w", row[2], err)
	}
	return Tick{Time: t.UTC(), Symbol: strings.ToUpper(sym), Price: px}, true, nil
}
