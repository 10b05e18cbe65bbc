package observability

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// TraceMiddleware carries the caller's X-Trace-ID through the request, or
// assigns a fresh one, and echoes it on the response.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ContextWithTraceID(r.Context(), traceID)))
	})
}

// RequestMiddleware logs one http_request line per call and records the
// request counters. Server errors log at error level and client errors at
// warn level.
func RequestMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			route := routeLabel(r.URL.Path)
			observeHTTPRequest(r.Method, route, recorder.status, elapsed)
			LoggerWithTrace(r.Context(), logger).Log(r.Context(), levelForStatus(recorder.status), "http_request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", recorder.status),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.Int("bytes", recorder.bytes),
			)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

var apiRoutes = map[string]struct{}{
	"/":                 {},
	"/health":           {},
	"/ready":            {},
	"/metrics":          {},
	"/dbQuery":          {},
	"/dbQuery/plot":     {},
	"/dbQuery/show":     {},
	"/metaData":         {},
	"/metaData/drop":    {},
	"/metaData/restore": {},
}

// routeLabel maps paths outside the API route table to "other".
func routeLabel(path string) string {
	if _, ok := apiRoutes[path]; ok {
		return path
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}
