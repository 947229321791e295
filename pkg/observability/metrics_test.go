package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Recorders(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordAuthAttempt("password", true)
	m.RecordAuthAttempt("password", false)
	m.RecordAuthAttempt("password", false)
	m.RecordCeremony("login", "finish", true)
	m.RecordTokenIssued("access")
	m.RecordCounterRegression()
	m.RecordCacheHit("session")
	m.RecordCacheMiss("session")
	m.RecordCacheError("session", "get")

	if got := testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("password", OutcomeFailure)); got != 2 {
		t.Errorf("Expected 2 failed password attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.PasskeyCeremoniesTotal.WithLabelValues("login", "finish", OutcomeSuccess)); got != 1 {
		t.Errorf("Expected 1 ceremony, got %v", got)
	}
	if got := testutil.ToFloat64(m.CounterRegressionTotal); got != 1 {
		t.Errorf("Expected 1 regression, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheErrorsTotal.WithLabelValues("session", "get")); got != 1 {
		t.Errorf("Expected 1 cache error, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordAuthAttempt("password", true)
	m.RecordCeremony("registration", "begin", false)
	m.RecordTokenIssued("refresh")
	m.RecordCounterRegression()
	m.RecordCacheHit("session")
	m.RecordCacheMiss("session")
	m.RecordCacheError("session", "set")
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/users/{id}", "418")); got != 2 {
		t.Errorf("Expected 2 requests under the route template, got %v", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordTokenIssued("access")

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()
	RegisterDBStats(registry, db, "turnstile")

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `turnstile_tokens_issued_total{kind="access"} 1`) {
		t.Errorf("Expected token counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(body, "go_sql_open_connections") {
		t.Error("Expected db stats in exposition")
	}
}
