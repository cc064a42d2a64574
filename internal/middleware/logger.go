package middleware

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
)

// LoggerMiddleware logs every request with its status, size and latency.
func LoggerMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			evt := logger.Debug()
			switch {
			case m.Code >= 500:
				evt = logger.Error()
			case m.Code >= 400:
				evt = logger.Info()
			}
			evt.
				Str("method", r.Method).
				Str("uri", r.URL.RequestURI()).
				Int("status", m.Code).
				Int64("bytes", m.Written).
				Dur("duration", m.Duration).
				Msgf("%s %s", r.Method, r.URL.Path)
		})
	}
}
