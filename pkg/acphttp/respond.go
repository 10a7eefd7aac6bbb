// Package acphttp is the HTTP side of the protocol: response helpers,
// request logging and the Pipeline every protocol endpoint runs through.
package acphttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/shabazpatel/acp-infra/pkg/apperr"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = "Request-Id"
)

func RespondJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, `{"error":{"type":"api_error","code":"internal_error","message":"internal server error"}}`,
			http.StatusInternalServerError)
		return
	}
	writeBody(w, status, body)
}

// RespondError writes err in the protocol error envelope. Errors that are
// not protocol errors become a generic internal_error.
func RespondError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	RespondJSON(w, e.HTTPStatus(), apperr.Envelope{Error: e})
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func echoHeaders(w http.ResponseWriter, idempotencyKey, requestID string) {
	if idempotencyKey != "" {
		w.Header().Set(HeaderIdempotencyKey, idempotencyKey)
	}
	if requestID != "" {
		w.Header().Set(HeaderRequestID, requestID)
	}
}

// RequestLogger logs one line per request after it completes.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
