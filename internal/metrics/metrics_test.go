package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/":                       "/",
		"/notes":                  "/notes",
		"/notes/abc-123":          "/notes/{id}",
		"/notes/abc-123/summary":  "/notes/{id}/summary",
		"/notes/search":           "/notes/search",
		"/notes/{id}":             "/notes/{id}",
		"/billing/invoices/INV-1": "/billing/invoices/{number}",
		"/environments/e1":        "/environments/{id}",
		"/system-status":          "/system-status",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecorders(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("get", "/notes/1", "200", 10*time.Millisecond)
	m.RecordAIRequest("openai", "chat", 0, errors.New("boom"))
	m.RecordCacheLookup("notes", true)
	m.RecordRateLimited("general")
	m.SetServiceHealth("database", true)
	m.RecordJobRun("purge-expired-tokens", nil)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/notes/{id}", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.aiRequests.WithLabelValues("openai", "chat", "error")); got != 1 {
		t.Errorf("ai requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.serviceHealth.WithLabelValues("database")); got != 1 {
		t.Errorf("service health = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordAIRequest("openai", "chat", time.Second, nil)
	m.RecordCacheLookup("notes", false)
	m.ConnectionOpened()
	m.ConnectionClosed()
}
