// Package httpmw holds the middleware for the public listener.
//
// httpserver.NewHandler composes it outermost first: security headers, panic
// recovery, request id, client ip, tracing, trace response headers, metrics,
// request logger, then the chi router with route annotation and the access
// log. The upload route adds rate limiting and MaxBody on top.
package httpmw
