package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(204))
	assert.Equal(t, "3xx", statusCodeToString(302))
	assert.Equal(t, "4xx", statusCodeToString(404))
	assert.Equal(t, "5xx", statusCodeToString(502))
	assert.Equal(t, "unknown", statusCodeToString(99))
}

func TestRecordStaleResponse(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordStaleResponse("bundles")
	m.RecordStaleResponse("bundles")
	m.RecordStaleResponse("userops")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.staleResponsesTotal.WithLabelValues("bundles")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.staleResponsesTotal.WithLabelValues("userops")))
}

func TestRecordCacheLookup(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheLookup("latest_bundles", true)
	m.RecordCacheLookup("latest_bundles", false)
	m.RecordCacheLookup("latest_bundles", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.queryCacheTotal.WithLabelValues("latest_bundles", "hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.queryCacheTotal.WithLabelValues("latest_bundles", "miss")))
}

func TestInstrument_CapturesFirstStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	handler := Instrument(m, "detail")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/details/account/0xabc", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("detail", "GET", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpRequestDuration))
}

func TestInstrument_ImplicitOKOnWrite(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	handler := Instrument(m, "networks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/networks", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("networks", "GET", "2xx")))
}

func TestInstrument_StreamsSkipDurationAndFlush(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	handler := Instrument(m, "stream_notifications")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f, ok := w.(http.Flusher)
		if assert.True(t, ok) {
			f.Flush()
		}
		_, _ = w.Write([]byte("event: connected\ndata: {}\n\n"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream/notifications", nil))

	assert.True(t, rec.Flushed)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("stream_notifications", "GET", "2xx")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.httpRequestDuration))
}

func TestInstrument_NilMetricsPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	Instrument(nil, "home")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
