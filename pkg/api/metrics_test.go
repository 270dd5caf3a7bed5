package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/openintent-ai/openintent/pkg/telemetry"
)

func TestMetricsMiddleware_LabelsByRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.HandleFunc("/intents/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}).Methods("GET")

	req := httptest.NewRequest("GET", "/intents/abc-123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	got := testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/intents/{id}", "201"))
	assert.GreaterOrEqual(t, got, float64(1))
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.NotFoundHandler = metricsMiddleware(http.NotFoundHandler())
	r.HandleFunc("/intents/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	req := httptest.NewRequest("POST", "/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	got := testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues("POST", "unmatched", "404"))
	assert.GreaterOrEqual(t, got, float64(1))
}
