package httpmw

import (
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/playdrop/internal/log"
)

// WithLogger stores a request-scoped logger carrying the request id, client
// address, method and path. Query strings, user agents and other free-form
// client input are left out of logs.
//
// Must run inside RequestID and ClientIP so both values are available.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			client := ClientIPFromContext(ctx)
			peer := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peer); err == nil {
				peer = host
			}
			scheme := requestScheme(r)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"server.address", r.Host,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// AccessLogOptions controls which requests produce an access log line.
type AccessLogOptions struct {
	// SkipPaths are exact paths never logged (health checks).
	SkipPaths []string
	// QuietPrefix, if set, suppresses successful requests for static files
	// under it. Errors are still logged.
	QuietPrefix string
	// QuietExtensions are the static file extensions QuietPrefix applies to.
	QuietExtensions []string
}

// DefaultQuietExtensions are the asset types a typical upload pulls in by
// the dozen on every page load.
var DefaultQuietExtensions = []string{
	".css", ".js", ".mjs", ".map", ".wasm", ".png", ".jpg", ".jpeg", ".gif", ".webp",
	".svg", ".ico", ".woff", ".woff2", ".ttf", ".otf", ".mp3", ".ogg", ".wav",
}

// AccessLog writes one line per request after the handler returns, using the
// logger from the request context.
func AccessLog(opts AccessLogOptions) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}
	quiet := make(map[string]bool, len(opts.QuietExtensions))
	for _, e := range opts.QuietExtensions {
		quiet[strings.ToLower(e)] = true
	}
	quietPrefix := ""
	if p := strings.Trim(opts.QuietPrefix, "/"); p != "" {
		quietPrefix = "/" + p + "/"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newRecorder(w, r, start)

			next.ServeHTTP(rec, r)
			rec.finish()

			if skip[r.URL.Path] {
				return
			}
			status := rec.Status()
			if status < 400 && quietPrefix != "" && strings.HasPrefix(r.URL.Path, quietPrefix) &&
				quiet[strings.ToLower(path.Ext(r.URL.Path))] {
				return
			}

			var reqBytes int64
			if r.ContentLength > 0 {
				reqBytes = r.ContentLength
			}
			ctx := r.Context()
			log.FromContext(ctx).Info(ctx, "http request",
				"http.route", RoutePattern(r),
				"http.response.status_code", status,
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.request.body.size", reqBytes,
				"http.response.body.size", rec.bytes,
			)
		})
	}
}

// requestScheme prefers X-Forwarded-Proto, which ClientIP strips unless the
// peer is a trusted proxy.
func requestScheme(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		p = strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0]))
		if p == "http" || p == "https" {
			return p
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
