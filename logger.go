package identity

import (
	"context"
	"log/slog"
)

type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger adapts a slog.Logger to Logger
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLogger{logger: logger.With("component", "identity")}
}

func (l slogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l slogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l slogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l slogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// defLogger writes through slog.Default
type defLogger struct{}

func (defLogger) Debug(msg string, args ...any) {
	slog.Default().Debug(msg, args...)
}

func (defLogger) Info(msg string, args ...any) {
	slog.Default().Info(msg, args...)
}

func (defLogger) Warn(msg string, args ...any) {
	slog.Default().Warn(msg, args...)
}

func (defLogger) Error(msg string, args ...any) {
	slog.Default().Error(msg, args...)
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

func resolveLogger(logger Logger) Logger {
	if logger == nil {
		return defLogger{}
	}
	return logger
}

type loggerCtxKey struct{}

// WithContextLogger stores logger in ctx
func WithContextLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// LoggerFromContext returns the logger stored in ctx or fallback
func LoggerFromContext(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey{}).(Logger); ok && logger != nil {
			return logger
		}
	}
	return resolveLogger(fallback)
}
