package utils

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is what the store, the facade and the shell log through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
}

// NopLogger discards everything; the facade starts with it.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any) {}
func (NopLogger) Warn(string, ...any) {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) DebugCtx(context.Context, string, ...any) {}
func (NopLogger) InfoCtx(context.Context, string, ...any) {}
func (NopLogger) WarnCtx(context.Context, string, ...any) {}

/*
	DefaultLogger writes slog text records. The Ctx methods append the
	document and session fields attached with WithDocument and
	WithSession.
*/
type DefaultLogger struct {
	logger *slog.Logger
}

func NewDefaultLogger(level slog.Level) *DefaultLogger {
	return NewLogger(os.Stderr, level)
}

func NewLogger(w io.Writer, level slog.Level) *DefaultLogger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &DefaultLogger{logger: slog.New(h).With("lib", "joy")}
}

func (d *DefaultLogger) Debug(msg string, args ...any) { d.logger.Debug(msg, args...) }
func (d *DefaultLogger) Info(msg string, args ...any)  { d.logger.Info(msg, args...) }
func (d *DefaultLogger) Warn(msg string, args ...any)  { d.logger.Warn(msg, args...) }
func (d *DefaultLogger) Error(msg string, args ...any) { d.logger.Error(msg, args...) }

func (d *DefaultLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	d.logger.DebugContext(ctx, msg, append(args, Fields(ctx)...)...)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	d.logger.InfoContext(ctx, msg, append(args, Fields(ctx)...)...)
}

func (d *DefaultLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	d.logger.WarnContext(ctx, msg, append(args, Fields(ctx)...)...)
}

type fieldsKey struct{}

// WithDocument tags records logged under ctx with doc=docID.
func WithDocument(ctx context.Context, docID string) context.Context {
	return withFields(ctx, "doc", docID)
}

// WithSession tags records logged under ctx with sid=sid.
func WithSession(ctx context.Context, sid uint64) context.Context {
	return withFields(ctx, "sid", sid)
}

func withFields(ctx context.Context, args ...any) context.Context {
	prev := Fields(ctx)
	next := make([]any, 0, len(prev)+len(args))
	next = append(append(next, prev...), args...)
	return context.WithValue(ctx, fieldsKey{}, next)
}

// Fields lists the key/value pairs attached to ctx.
func Fields(ctx context.Context) []any {
	f, _ := ctx.Value(fieldsKey{}).([]any)
	return f
}
