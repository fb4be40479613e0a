package logger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	slogbetterstack "github.com/samber/slog-betterstack"
)

const betterStackTimeout = 10 * time.Second

func newBetterStackHandler(token string, level slog.Level) slog.Handler {
	return slogbetterstack.Option{
		Level:   level,
		Token:   token,
		Timeout: betterStackTimeout,
	}.NewBetterstackHandler()
}

// fanout sends every record to all enabled sinks.
// Records are cloned per sink so attribute slices are never shared.
type fanout struct {
	sinks []slog.Handler
}

func newFanout(sinks ...slog.Handler) *fanout {
	return &fanout{sinks: sinks}
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.sinks))
	for i, s := range f.sinks {
		next[i] = s.WithAttrs(attrs)
	}
	return &fanout{sinks: next}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.sinks))
	for i, s := range f.sinks {
		next[i] = s.WithGroup(name)
	}
	return &fanout{sinks: next}
}
