package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/metrics"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// AccessLogMiddleware tags each request with an ID, logs it, and records
// per-route metrics. The route label is the matched mux pattern so path
// parameters do not explode label cardinality.
func AccessLogMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	accessLogger := logger.With("component", "api_access")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(sw.statusCode)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		level := slog.LevelDebug
		if sw.statusCode >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		accessLogger.Log(r.Context(), level, "api request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", sw.statusCode,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.written = true
	}
	return sw.ResponseWriter.Write(b)
}
