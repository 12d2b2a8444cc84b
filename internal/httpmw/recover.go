package httpmw

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/playdrop/internal/log"
	"github.com/keithlinneman/playdrop/internal/xerrors"
)

// Recover turns a handler panic into a 500 and logs it with a stack.
// onPanic, if set, runs once per recovered panic.
// http.ErrAbortHandler is re-panicked so net/http aborts the connection.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				err := panicError(rec)
				if errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger.Error(r.Context(), err, "handler panic recovered",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				)
				if onPanic != nil {
					onPanic()
				}
				w.Header().Set("Cache-Control", "no-store")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		if errors.Is(err, http.ErrAbortHandler) {
			return err
		}
		return xerrors.Wrap(err, "panic")
	}
	return xerrors.Newf("panic: %v", rec)
}
