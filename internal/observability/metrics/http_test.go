package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/v1/batches/42", "/v1/batches/{id}"},
		{"/v1/batches/42/titles", "/v1/batches/{id}/titles"},
		{"/v1/tasks/0b4fae8c-9f94-4a3c-9a1d-2f4c7f0f8d11", "/v1/tasks/{task_id}"},
		{"/v1/titles", "/v1/titles"},
		{"/healthz", "/healthz"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPServerMetrics("server", registry)

	handler := m.Middleware("server", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/batches/7", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want passthrough 418", rec.Code)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "protesto_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == "418" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatalf("expected a requests_total sample with status 418")
	}
}
