package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStoreAndExposition(t *testing.T) {
	ObserveStore("memory", "insert", time.Now(), nil)
	ObserveStore("memory", "insert", time.Now(), errors.New("boom"))
	GateDecisionsTotal.WithLabelValues("protected-api", "reject").Inc()

	if got := testutil.ToFloat64(GateDecisionsTotal.WithLabelValues("protected-api", "reject")); got < 1 {
		t.Fatalf("expected gate counter increment, got %v", got)
	}

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := recorder.Body.String()
	for _, name := range []string{
		`alertdesk_store_operation_duration_seconds_count{backend="memory",op="insert",outcome="error"}`,
		`alertdesk_gate_decisions_total{class="protected-api",verdict="reject"}`,
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	if Outcome(nil) != "ok" || Outcome(errors.New("x")) != "error" {
		t.Fatalf("unexpected outcome labels")
	}
}
