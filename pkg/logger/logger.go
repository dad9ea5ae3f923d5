// Package logger sets up log/slog for the bot and carries the request logger
// through context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETUP
// ══════════════════════════════════════════════════════════════════════════════

// Options configures New.
type Options struct {
	// Level: debug, info, warn or error.
	Level string

	// JSON switches to the JSON handler (production).
	JSON bool

	// Output defaults to os.Stdout.
	Output io.Writer

	// AddSource adds file:line to records.
	AddSource bool
}

// ParseLevel parses a level name. Unknown names give info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a slog logger.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// FromContextOr returns the logger stored in ctx or fallback.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

func OlympID(id int64) slog.Attr         { return slog.Int64("olymp_id", id) }
func ParticipantID(id int64) slog.Attr   { return slog.Int64("participant_id", id) }
func ExaminerID(id int64) slog.Attr      { return slog.Int64("examiner_id", id) }
func EntryID(id int64) slog.Attr         { return slog.Int64("entry_id", id) }
func TelegramID(id int64) slog.Attr      { return slog.Int64("telegram_id", id) }
func CorrelationID(id string) slog.Attr  { return slog.String("correlation_id", id) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Operation(name string) slog.Attr   { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }

// Err creates an error field.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}
