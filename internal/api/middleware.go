package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the id a request is logged under.
const RequestIDHeader = "X-Request-ID"

// statusRecorder remembers the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging logs one line per request with its outcome and duration.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
			r.Header.Set(RequestIDHeader, reqID)
		}
		w.Header().Set(RequestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := logger.Entry("api").WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"remote_addr": r.RemoteAddr,
			"request_id":  reqID,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case rec.status >= 500:
			entry.Warn("HTTP request")
		case r.URL.Path == "/health":
			entry.Debug("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	})
}

// Recovery turns a panicking handler into a 500 envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Entry("api").WithField("error", err).Error("panic recovered")
				writeJSON(w, http.StatusInternalServerError, envelopeError("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
