package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/signalgov/lifecycle"
)

var eventHeader = []string{"time", "kind", "signal_id", "symbol", "side", "strategy_type", "price", "outcome", "r"}

// CSVEventLog appends the event stream to a CSV file. The header is written
// only when the file is new or empty.
type CSVEventLog struct {
	mu sync.Mutex
	w  *csv.Writer
	f  *os.File
}

func NewCSVEventLog(path string) (*CSVEventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat event log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(eventHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return &CSVEventLog{w: w, f: f}, nil
}

func (l *CSVEventLog) HandleEvent(_ context.Context, ev lifecycle.Event) error {
	e := eventRecord(ev)

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.w.Write([]string{
		e.Time.Format(time.RFC3339),
		e.Kind,
		e.SignalID,
		e.Symbol,
		e.Side,
		e.StrategyType,
		f(e.Price),
		e.Outcome,
		f(e.R),
	})
	if err != nil {
		return err
	}

	l.w.Flush()
	return l.w.Error()
}

func (l *CSVEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
