package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/ratelimit"
	"github.com/ggoodman/pipedrive-mcp-server-go/sse"
)

var _ sse.Metrics = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape status %d", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	return string(b)
}

func TestObservationsAppearInScrape(t *testing.T) {
	m := New()
	m.ObserveRequest("health", 200, 3*time.Millisecond)
	m.ObserveRequest("not_found", 404, time.Millisecond)
	m.ObserveDispatchWait(120 * time.Millisecond)
	m.ObserveDownstream("deals.list", 200, 300*time.Millisecond)
	m.ObserveCache("users", true)
	m.ObserveCache("users", false)

	out := scrape(t, m)
	for _, want := range []string{
		`pipedrive_mcp_http_requests_total{route="health",status="200"} 1`,
		`pipedrive_mcp_http_requests_total{route="not_found",status="404"} 1`,
		`pipedrive_mcp_dispatcher_wait_seconds_count 1`,
		`pipedrive_mcp_pipedrive_requests_total{op="deals.list",status="200"} 1`,
		`pipedrive_mcp_cache_lookups_total{op="users",result="hit"} 1`,
		`pipedrive_mcp_cache_lookups_total{op="users",result="miss"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("scrape missing %q", want)
		}
	}
}

func TestRegisteredGauges(t *testing.T) {
	m := New()
	d, err := ratelimit.New(ratelimit.Config{MaxConcurrent: 1})
	if err != nil {
		t.Fatal(err)
	}
	m.RegisterDispatcher(d)
	m.RegisterSessions(func() int { return 3 })

	out := scrape(t, m)
	for _, want := range []string{
		`pipedrive_mcp_dispatcher_queued 0`,
		`pipedrive_mcp_dispatcher_in_flight 0`,
		`pipedrive_mcp_dispatcher_admitted_total 0`,
		`pipedrive_mcp_sessions_open 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("scrape missing %q", want)
		}
	}
}
