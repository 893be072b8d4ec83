package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	sentryhttp "github.com/getsentry/sentry-go/http"

	"github.com/homebase-app/homebase/internal/ctxkeys"
)

// Recover turns a panic into a 500 JSON response and an error log.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.Error("panic serving request",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", ctxkeys.RequestID(r.Context()),
				"stack", string(debug.Stack()),
			)
			writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}

// Sentry attaches a Sentry hub to each request and reports panics before
// re-raising them for Recover. Only useful when Sentry is initialised.
func Sentry(next http.Handler) http.Handler {
	return sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(next)
}
