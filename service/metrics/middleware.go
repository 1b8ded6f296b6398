package metrics

import (
	"net/http"
	"strings"
	"time"
)

// Instrument wraps a route so every request is counted under route, a fixed
// name such as "detail" that keeps label cardinality bounded. Event-stream
// responses are counted when they end but stay out of the duration
// histogram, since they live as long as the visitor's tab. A nil m
// returns next unchanged.
func Instrument(m *Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			status := rw.status
			if status == 0 {
				status = http.StatusOK
			}
			if rw.streaming {
				m.RecordHTTPStream(route, r.Method, status)
				return
			}
			m.RecordHTTPRequest(route, r.Method, status, time.Since(start).Seconds())
		})
	}
}

// statusRecorder remembers the first status written and whether the
// response is an event stream.
type statusRecorder struct {
	http.ResponseWriter
	status    int
	streaming bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
		w.streaming = strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}

// Flush keeps SSE handlers streaming through the wrapper.
func (w *statusRecorder) Flush() {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
