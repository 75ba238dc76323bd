package obs

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ResponseRecorder remembers the status and size of a response.
type ResponseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	started bool
}

// flushingRecorder keeps http.Flusher visible for streaming handlers.
type flushingRecorder struct {
	*ResponseRecorder
}

func (f flushingRecorder) Flush() {
	f.ResponseWriter.(http.Flusher).Flush()
}

// NewResponseRecorder wraps w. The returned writer implements http.Flusher
// exactly when w does.
func NewResponseRecorder(w http.ResponseWriter) (http.ResponseWriter, *ResponseRecorder) {
	rec := &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
	if _, ok := w.(http.Flusher); ok {
		return flushingRecorder{rec}, rec
	}
	return rec, rec
}

func (r *ResponseRecorder) WriteHeader(code int) {
	if r.started {
		return
	}
	r.status, r.started = code, true
	r.ResponseWriter.WriteHeader(code)
}

func (r *ResponseRecorder) Write(p []byte) (int, error) {
	r.started = true
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *ResponseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// StatusCode is the status sent, 200 if only the body was written.
func (r *ResponseRecorder) StatusCode() int { return r.status }

// RespBytes counts body bytes written.
func (r *ResponseRecorder) RespBytes() int64 { return r.written }

// WroteHeader reports whether anything was sent.
func (r *ResponseRecorder) WroteHeader() bool { return r.started }

// RequestContextMiddleware attaches a Correlation built from the W3C
// traceparent, X-Request-Id and X-User-Id headers, and echoes the request id.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
		corr := Correlation{
			RequestID:   strings.TrimSpace(r.Header.Get("X-Request-Id")),
			TraceID:     extractTraceID(traceparent),
			Traceparent: traceparent,
			UserID:      strings.TrimSpace(r.Header.Get("X-User-Id")),
		}
		if corr.RequestID == "" {
			corr.RequestID = corr.TraceID
		}
		if corr.RequestID == "" {
			corr.RequestID = newRequestID()
		}
		w.Header().Set("X-Request-Id", corr.RequestID)
		next.ServeHTTP(w, r.WithContext(WithCorrelation(r.Context(), corr)))
	})
}

// AccessLogMiddleware logs one http_access event per request: debug for
// success, warn for client errors, error for server errors.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped, rec := NewResponseRecorder(w)
		next.ServeHTTP(wrapped, r)

		lvl := slog.LevelDebug
		switch {
		case rec.StatusCode() >= 500:
			lvl = slog.LevelError
		case rec.StatusCode() >= 400:
			lvl = slog.LevelWarn
		}
		From(r.Context()).Log(r.Context(), lvl, "http_access",
			"pkg", pkg,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode(),
			"dur_ms", float64(time.Since(start).Microseconds())/1000,
			"req_bytes", max(r.ContentLength, 0),
			"resp_bytes", rec.RespBytes(),
		)
	})
}

// extractTraceID returns the trace-id of a version-00 style traceparent, or ""
// when it is malformed or all zeros.
func extractTraceID(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	id := strings.ToLower(strings.TrimSpace(parts[1]))
	if len(id) != 32 || strings.Trim(id, "0") == "" {
		return ""
	}
	if strings.IndexFunc(id, func(c rune) bool {
		return (c < '0' || c > '9') && (c < 'a' || c > 'f')
	}) >= 0 {
		return ""
	}
	return id
}
