package logger

import (
	"context"
	"log/slog"
	"os"
)

// New builds the process-wide structured logger: JSON at info for deployed
// environments, human-readable text at debug for local and dev.
func New(appEnv string) *slog.Logger {
	var h slog.Handler
	switch appEnv {
	case "local", "dev":
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(h).With("service", "comms-platform")
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets the context's logger, falling back to slog.Default(). Pipeline
// code always logs through this so batch and webhook processing keep their
// request or sweep scoped attributes.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
