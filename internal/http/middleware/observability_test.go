package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-agent/internal/logx"
)

func TestObservability_CountsRequests(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	obs := NewObservability(logx.Nop(), reg)

	h := obs.Handler()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(obs.requests.WithLabelValues("GET", "/ping", "418")))
}

func TestObservability_DefaultStatusIs200(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	obs := NewObservability(logx.Nop(), reg)

	h := obs.Handler()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, float64(1), testutil.ToFloat64(obs.requests.WithLabelValues("GET", "/ping", "200")))
}
