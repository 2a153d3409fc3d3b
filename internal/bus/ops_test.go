package bus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpsHealthz(t *testing.T) {
	o := NewOpsServer(0, prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	o.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestOpsMetricsScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.PublishTotal.Inc()
	m.PublishTotal.Inc()

	o := NewOpsServer(0, reg, nil)
	rec := httptest.NewRecorder()
	o.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "bus_publish_total 2")
	assert.Contains(t, body, "bus_inflight_requests")
	assert.Contains(t, body, "bus_publish_latency_ms")
}

func TestOpsRejectsWrites(t *testing.T) {
	o := NewOpsServer(0, prometheus.NewRegistry(), nil)

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		o.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestOpsUnknownRoute(t *testing.T) {
	o := NewOpsServer(0, prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	o.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
