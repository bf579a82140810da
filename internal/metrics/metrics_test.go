package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := roastJobsTotal
	Init()
	require.Same(t, first, roastJobsTotal)
}

func TestJobCounters(t *testing.T) {
	Init()
	before := testutil.ToFloat64(roastJobsTotal.WithLabelValues("complete"))
	ObserveJob("complete")
	require.InDelta(t, before+1, testutil.ToFloat64(roastJobsTotal.WithLabelValues("complete")), 0.001)

	swept := testutil.ToFloat64(roastSessionsSweptTotal)
	ObserveSwept(3)
	ObserveSwept(0)
	require.InDelta(t, swept+3, testutil.ToFloat64(roastSessionsSweptTotal), 0.001)

	inFlight := testutil.ToFloat64(roastJobsInFlight)
	IncJobsInFlight()
	require.InDelta(t, inFlight+1, testutil.ToFloat64(roastJobsInFlight), 0.001)
	DecJobsInFlight()
	require.InDelta(t, inFlight, testutil.ToFloat64(roastJobsInFlight), 0.001)

	ObserveStage("capture", 2*time.Second)
	require.Positive(t, testutil.CollectAndCount(roastStageDurationSeconds))
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/roast/{sessionId}/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	notFound := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))
	ok := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))

	for _, path := range []string{"/roast/abc/status", "/ok"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, notFound+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), 0.001)
	require.InDelta(t, ok+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 0.001)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
