package httpmw

import (
	"context"
	"net/http"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/keithlinneman/playdrop/internal/log"
)

type logLine struct {
	level string
	msg   string
	err   error
	kv    []any
}

// memLogger records every call. With() merges fields into the child so
// tests can assert on the full set a line was written with.
type memLogger struct {
	mu     *sync.Mutex
	lines  *[]logLine
	fields []any
}

func newMemLogger() *memLogger {
	return &memLogger{mu: &sync.Mutex{}, lines: &[]logLine{}}
}

func (l *memLogger) With(kv ...any) log.Logger {
	f := append(append([]any{}, l.fields...), kv...)
	return &memLogger{mu: l.mu, lines: l.lines, fields: f}
}

func (l *memLogger) add(level, msg string, err error, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]any{}, l.fields...), kv...)
	*l.lines = append(*l.lines, logLine{level: level, msg: msg, err: err, kv: all})
}

func (l *memLogger) Debug(_ context.Context, msg string, kv ...any) { l.add("debug", msg, nil, kv) }
func (l *memLogger) Info(_ context.Context, msg string, kv ...any)  { l.add("info", msg, nil, kv) }
func (l *memLogger) Warn(_ context.Context, msg string, kv ...any)  { l.add("warn", msg, nil, kv) }
func (l *memLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	l.add("error", msg, err, kv)
}
func (l *memLogger) Sync() error { return nil }

func (l *memLogger) all() []logLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logLine(nil), *l.lines...)
}

func field(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

// recordingContext returns a context holding a live, recording span.
func recordingContext(t *testing.T) (context.Context, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, _ := tp.Tracer("test").Start(context.Background(), "request")
	return ctx, sr
}

func withLogger(ctx context.Context, l log.Logger) context.Context { return log.WithContext(ctx, l) }

func logFromRequest(r *http.Request) log.Logger { return log.FromContext(r.Context()) }
