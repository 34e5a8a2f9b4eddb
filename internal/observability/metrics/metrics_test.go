package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/documents/abc":             "/v1/documents/{id}",
		"/v1/documents/abc/tags/urgent": "/v1/documents/{id}/tags/{name}",
		"/v1/rules/dry-run":             "/v1/rules/dry-run",
		"/v1/deliveries/d1/retry":       "/v1/deliveries/{id}/retry",
		"/v1/documents":                 "/v1/documents",
		"/healthz":                      "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil))
	m.RecordUpload("api", "quota_exceeded", 10)

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `docflow_http_requests_total{method="GET",path="/v1/documents/{id}",service="api",status="404"} 1`) {
		t.Fatalf("request counter missing:\n%s", out)
	}
	if !strings.Contains(out, `docflow_ingest_uploads_total{outcome="quota_exceeded",service="api"} 1`) {
		t.Fatalf("upload counter missing:\n%s", out)
	}
}

func TestWorkerInstrumentAndSweeps(t *testing.T) {
	m := NewWorkerMetrics("worker")
	handler := m.Instrument(func(context.Context, domain.Event) error { return errors.New("boom") })
	_ = handler(context.Background(), domain.Event{Type: domain.EventDocumentUploaded, OccurredAt: time.Now().Add(-time.Second)})

	m.RecordSweep("cleanup", false, 3, 1, time.Second, nil)
	m.RecordSweep("cleanup", true, 0, 0, 0, nil)
	m.RecordRelay(4, nil)
	m.ObserveRetry("nats.publish")
	m.ObserveBreakerState("nats.publish", "open")

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`docflow_worker_events_total{event_type="document.uploaded",service="worker",status="error"} 1`,
		`docflow_sweep_runs_total{outcome="completed",service="worker",sweep="cleanup"} 1`,
		`docflow_sweep_runs_total{outcome="skipped",service="worker",sweep="cleanup"} 1`,
		`docflow_sweep_items_total{result="processed",service="worker",sweep="cleanup"} 3`,
		`docflow_outbox_relayed_total{service="worker",status="published"} 4`,
		`docflow_resilience_retries_total{operation="nats.publish",service="worker"} 1`,
		`docflow_resilience_breaker_open{operation="nats.publish",service="worker"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in:\n%s", want, out)
		}
	}
}
