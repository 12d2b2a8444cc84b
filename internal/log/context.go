package log

import "context"

type ctxKey struct{}

// WithContext attaches l to ctx. Request middleware uses it to hand handlers
// a logger already carrying the request id and client address.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or Nop.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}
