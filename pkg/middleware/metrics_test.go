package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/navikt/aap-inntekt/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordsKnownAndUnknownPaths(t *testing.T) {
	m := metrics.New()
	handler := Metrics(m, "/live")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/live" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))

	for _, path := range []string{"/live", "/live", "/wp-admin", "/.env"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/live", "200")); got != 2 {
		t.Errorf("/live count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "other", "404")); got != 2 {
		t.Errorf("other count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}
