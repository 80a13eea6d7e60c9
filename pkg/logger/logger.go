package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

var (
	level       = new(slog.LevelVar)
	secureLevel = new(slog.LevelVar)
)

func Setup(lvl string, format string) {
	SetupWriter(os.Stdout, lvl, format)
}

// SetupWriter installs the default logger writing to w.
func SetupWriter(w io.Writer, lvl string, format string) {
	level.Set(parseLevel(lvl))
	opts := &slog.HandlerOptions{
		Level: level,
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the level of the default logger at runtime.
func SetLevel(lvl string) {
	level.Set(parseLevel(lvl))
}

// Level returns the current level of the default logger.
func Level() slog.Level {
	return level.Level()
}

// NewSecure returns the logger for personal data and raw upstream payloads.
// It writes JSON to path, which must be a restricted location. An empty path
// discards everything; secure entries never fall back to stdout.
func NewSecure(path string, lvl string) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), nopCloser{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening secure log %s: %w", path, err)
	}
	secureLevel.Set(parseLevel(lvl))
	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: secureLevel})
	return slog.New(handler).With("channel", "secure"), f, nil
}

// SetSecureLevel changes the level of the secure logger at runtime.
func SetSecureLevel(lvl string) {
	secureLevel.Set(parseLevel(lvl))
}

func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, contextKey{}, callID)
}

// CallIDFromContext returns the correlation id stored in ctx, if any.
func CallIDFromContext(ctx context.Context) string {
	callID, _ := ctx.Value(contextKey{}).(string)
	return callID
}

func FromContext(ctx context.Context) *slog.Logger {
	return Scoped(ctx, slog.Default())
}

// Scoped adds the call id from ctx to base.
func Scoped(ctx context.Context, base *slog.Logger) *slog.Logger {
	if callID := CallIDFromContext(ctx); callID != "" {
		return base.With("call_id", callID)
	}
	return base
}

func parseLevel(lvl string) slog.Level {
	switch lvl {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
