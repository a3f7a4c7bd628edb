package gateway

import (
	"net/http"
	"time"

	"github.com/Sternrassler/rsvp-client/pkg/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLogging tags each request with an X-Request-ID (kept when the
// caller sent one) and logs its outcome.
func withRequestLogging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(client.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(client.RequestIDHeader, requestID)
		}
		w.Header().Set(client.RequestIDHeader, requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		event := logger.Debug()
		if rec.status >= 500 {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", rec.status).
			Dur("duration", time.Since(start)).
			Str("request_id", requestID).
			Msg("Request handled")
	})
}
