package httpmw

import "net/http"

// MaxBody caps the request body at limit bytes. Reads past the cap fail with
// *http.MaxBytesError and the connection is closed after the response, so
// the handler decides how to report it (the upload API answers 413 JSON).
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
