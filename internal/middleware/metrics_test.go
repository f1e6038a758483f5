package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/cabinshare/internal/metrics"
)

func TestMetricsUsesRoutePattern(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/reservations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := RequestLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))(Metrics(m)(mux))

	for _, path := range []string{"/api/reservations/1", "/api/reservations/2", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `route="GET /api/reservations/{id}"`) {
		t.Errorf("route pattern label missing:\n%s", body)
	}
	if strings.Contains(body, "/api/reservations/1") {
		t.Error("raw path leaked into labels")
	}
}
