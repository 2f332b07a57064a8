package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"campusqa/internal/observability"
)

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLoggingMiddleware logs every inbound request with a trace-enriched,
// redacted summary of its body, the same LoggerWithTrace/RedactJSON pairing
// the LLM and embedding clients use for their own outbound calls.
func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := observability.LoggerWithTrace(r.Context())

		var bodyPreview json.RawMessage
		if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
			raw, err := io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(raw))
			if err == nil && json.Valid(raw) {
				bodyPreview = observability.RedactJSON(raw)
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		event := log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start))
		if len(bodyPreview) > 0 {
			event = event.RawJSON("body", bodyPreview)
		}
		event.Msg("http_request")
	})
}
