// Package notify delivers human-readable messages about signal events.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Message struct {
	Level Level
	Title string
	Text  string
}

// Notifier sends a message somewhere. Failures are reported to the caller,
// which logs them; they never affect signal state.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Log writes messages to a slog.Logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, m Message) error {
	lg := l.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lvl := slog.LevelInfo
	switch m.Level {
	case LevelWarning:
		lvl = slog.LevelWarn
	case LevelError:
		lvl = slog.LevelError
	}
	lg.Log(ctx, lvl, m.Title, "text", m.Text)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (ns Multi) Notify(ctx context.Context, m Message) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
