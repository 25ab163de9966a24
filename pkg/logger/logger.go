// Package logger wraps zap the way the rest of the fabric expects to
// consume it: a logger lives in the context, handed down from the
// process entrypoint, and every component pulls its logger out of
// ctx rather than reaching for a package global.
package logger

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

var fallback = func() *zap.SugaredLogger {
	l, _ := zap.NewProduction()
	if l == nil {
		l = zap.NewNop()
	}

	return l.Sugar()
}()

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// Ctx retrieves the logger stored in ctx, falling back to a process-wide
// production logger if none was attached.
func Ctx(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}

	return fallback
}

// CtxErr returns the context logger with an "error" field attached.
func CtxErr(ctx context.Context, err error) *zap.SugaredLogger {
	return Ctx(ctx).With("error", err)
}

// New builds a SugaredLogger for the given mode. development=true
// produces human-readable console output; otherwise JSON production
// logging is used.
func New(development bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)

	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}

	if err != nil {
		return nil, err
	}

	return l.Sugar(), nil
}

// Seed installs l as the process-wide fallback logger used whenever a
// context carries none. Intended for use during process bootstrap only.
func Seed(l *zap.SugaredLogger) {
	if l != nil {
		fallback = l
	}
}
