package metric

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
)

var _ service.Recorder = (*Registry)(nil)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.SessionTransitions == nil || r.RequestsTotal == nil || r.RequestDuration == nil {
		t.Error("metrics not initialised")
	}
}

func TestHandler(t *testing.T) {
	body := scrape(t, NewRegistry().Handler())

	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
	if !strings.Contains(body, "process_") {
		t.Error("expected process metrics")
	}
}

func TestWatchCertificate(t *testing.T) {
	r := NewRegistry()
	expiry := time.Unix(1900000000, 0)
	if err := r.WatchCertificate(func() time.Time { return expiry }); err != nil {
		t.Fatalf("WatchCertificate() error = %v", err)
	}
	body := scrape(t, r.Handler())
	if !strings.Contains(body, "pairlink_tls_certificate_expiry_timestamp_seconds 1.9e+09") {
		t.Errorf("expiry gauge missing:\n%s", body)
	}

	expiry = expiry.Add(time.Hour)
	if !strings.Contains(scrape(t, r.Handler()), "pairlink_tls_certificate_expiry_timestamp_seconds 1.9000036e+09") {
		t.Error("expiry gauge not read at scrape time")
	}

	if err := r.WatchCertificate(time.Now); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestLifecycleMetrics(t *testing.T) {
	r := NewRegistry()

	r.Transition(domain.StateInitializing, domain.StateConnecting)
	r.Transition(domain.StateConnecting, domain.StateConnected)
	r.Transition(domain.StateConnecting, domain.StateConnected)
	r.PairingIssued()
	r.ReconnectScheduled(2 * time.Second)
	r.ReconnectScheduled(4 * time.Second)
	r.CredentialOp("save", nil)
	r.CredentialOp("load", errors.New("disk"))

	body := scrape(t, r.Handler())

	for _, want := range []string{
		`pairlink_session_transitions_total{from="CONNECTING",to="CONNECTED"} 2`,
		`pairlink_session_transitions_total{from="INITIALIZING",to="CONNECTING"} 1`,
		"pairlink_pairing_codes_issued_total 1",
		"pairlink_reconnects_scheduled_total 2",
		"pairlink_reconnect_delay_seconds_count 2",
		`pairlink_credential_operations_total{op="save",result="ok"} 1`,
		`pairlink_credential_operations_total{op="load",result="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestRequestMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordRequest("GET", "/sessions/{name}", "200")
	r.RecordRequest("POST", "/sessions", "202")
	r.ObserveRequestDuration("GET", "/sessions/{name}", 0.005)
	r.RecordAuthFailure("invalid_key")
	r.IncRateLimited()

	body := scrape(t, r.Handler())

	for _, want := range []string{
		`pairlink_requests_total{method="GET",route="/sessions/{name}",status="200"} 1`,
		`pairlink_requests_total{method="POST",route="/sessions",status="202"} 1`,
		"pairlink_request_duration_seconds_bucket",
		`pairlink_auth_failures_total{reason="invalid_key"} 1`,
		"pairlink_rate_limited_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

type fakeSource struct {
	counts  map[domain.State]int
	pending int
}

func (f fakeSource) CountByState() map[domain.State]int { return f.counts }
func (f fakeSource) PendingReconnects() int             { return f.pending }

func TestCollector(t *testing.T) {
	r := NewRegistry()
	src := fakeSource{
		counts: map[domain.State]int{
			domain.StateConnected:    3,
			domain.StateReconnecting: 1,
		},
		pending: 1,
	}
	r.Registerer().MustRegister(NewCollector(src))

	body := scrape(t, r.Handler())
	for _, want := range []string{
		`pairlink_sessions{state="CONNECTED"} 3`,
		`pairlink_sessions{state="RECONNECTING"} 1`,
		`pairlink_sessions{state="AWAITING_SCAN"} 0`,
		"pairlink_reconnects_pending 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}

	if n := testutil.CollectAndCount(NewCollector(src)); n != len(domain.AllStates)+1 {
		t.Errorf("CollectAndCount() = %d, want %d", n, len(domain.AllStates)+1)
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				r.Transition(domain.StateConnecting, domain.StateConnected)
				r.RecordRequest("GET", "/sessions", "200")
				r.ObserveRequestDuration("GET", "/sessions", 0.001)
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	got := testutil.ToFloat64(r.SessionTransitions.WithLabelValues("CONNECTING", "CONNECTED"))
	if got != 1000 {
		t.Errorf("transitions = %v, want 1000", got)
	}
}
